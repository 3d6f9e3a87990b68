package search

import (
	"context"
	"log"

	"quorum/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG
// FTS. It also receives goal changes from the consistency engine; indexing is
// fire-and-forget so index trouble never slows a write.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexGoal pushes a goal into the search index.
func (s *Service) IndexGoal(_ context.Context, g store.Goal) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := goalRecord(g)
	go func() {
		if err := s.meili.IndexGoal(record); err != nil {
			log.Printf("search: index goal %d: %v", record.ID, err)
		}
	}()
}

// RemoveGoal removes a goal from the search index.
func (s *Service) RemoveGoal(_ context.Context, goalID int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteGoal(goalID); err != nil {
			log.Printf("search: delete goal %d: %v", goalID, err)
		}
	}()
}

// ReindexAllFromPG reads every goal from PostgreSQL and pushes the set to
// Meilisearch. Called at boot when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllGoals(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexGoals(records); err != nil {
		log.Printf("search: reindex goals: %v", err)
	}
}

func goalRecord(g store.Goal) GoalRecord {
	return GoalRecord{
		ID:      g.ID,
		GrantID: g.GrantID,
		Name:    g.Name,
		Status:  g.Status,
		Source:  g.Source,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
