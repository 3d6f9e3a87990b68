package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the goals table with ts_rank ordering and
// ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "g.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.GrantID != 0 {
		where += " AND g.grant_id = $2"
		args = append(args, q.GrantID)
	}

	countSQL := fmt.Sprintf(`SELECT count(*) FROM goals g WHERE %s`, where)
	dataSQL := fmt.Sprintf(`
		SELECT g.id, g.grant_id, g.name,
			ts_headline('english', g.name, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			g.status, g.source
		FROM goals g
		WHERE %s
		ORDER BY ts_rank(g.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.GrantID, &r.Name, &r.Snippet, &r.Status, &r.Source); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllGoals returns every goal for full reindexing.
func (p *PgFTS) LoadAllGoals(ctx context.Context) ([]GoalRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, grant_id, name, status, source
		FROM goals
	`)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()

	records := make([]GoalRecord, 0)
	for rows.Next() {
		var r GoalRecord
		if err := rows.Scan(&r.ID, &r.GrantID, &r.Name, &r.Status, &r.Source); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return records, nil
}
