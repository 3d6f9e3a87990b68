package engine

import (
	"context"
	"fmt"
	"strings"

	"quorum/api/internal/store"
)

// EnsureGoalsForSession materializes one goal per recipient grant the session
// names, linking each to the (event, session, grant) triple. Existing links
// are left alone, and goals are reused by (grant, name) rather than
// duplicated. Runs after session create and update, inside the caller's
// transaction.
func (e *Engine) EnsureGoalsForSession(ctx context.Context, db Store, event store.TrainingEvent, session store.TrainingSession, actingUserID int64) error {
	payload, err := DecodePayload(session.Data)
	if err != nil {
		return fmt.Errorf("session %d: %w", session.ID, err)
	}
	goalText := strings.TrimSpace(payload.GoalText())
	recipients := payload.Recipients()
	if goalText == "" || len(recipients) == 0 {
		return nil
	}

	for _, recipient := range recipients {
		if recipient.GrantID == 0 {
			continue
		}
		exists, err := db.EventGoalExists(ctx, event.ID, session.ID, recipient.GrantID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		goal, err := db.FindGoalByGrantAndName(ctx, recipient.GrantID, goalText)
		if err != nil {
			return err
		}
		if goal == nil {
			created, err := db.CreateGoal(ctx, store.Goal{
				GrantID: recipient.GrantID,
				Name:    goalText,
				Status:  store.GoalStatusDraft,
				Source:  store.GoalSourceTrainingEvent,
				OnAR:    true,
			})
			if err != nil {
				return err
			}
			goal = &created
		}

		if err := db.CreateEventGoal(ctx, store.EventGoal{
			EventID:   event.ID,
			SessionID: session.ID,
			GrantID:   recipient.GrantID,
			GoalID:    goal.ID,
		}); err != nil {
			return err
		}

		if err := e.SyncCreator(ctx, db, goal.ID, event, actingUserID); err != nil {
			return err
		}
		e.index.IndexGoal(ctx, *goal)
	}
	return nil
}

// PruneSessionGoals retracts goal links this session created for grants it no
// longer names. currentGrants is the session's present recipient set; nil
// means the session was destroyed and every link is up for retraction.
//
// A goal cited by an activity report is never removed, and neither is one
// still linked from another session. Checks run per link since usage is
// independent per goal.
func (e *Engine) PruneSessionGoals(ctx context.Context, db Store, eventID, sessionID int64, currentGrants map[int64]bool) error {
	links, err := db.EventGoalsForSession(ctx, eventID, sessionID)
	if err != nil {
		return err
	}
	for _, link := range links {
		if currentGrants != nil && currentGrants[link.GrantID] {
			continue
		}
		pinned, err := db.GoalOnApprovedReport(ctx, link.GoalID)
		if err != nil {
			return err
		}
		if pinned {
			continue
		}
		if err := db.DeleteEventGoal(ctx, link.ID); err != nil {
			return err
		}
		linked, err := db.GoalLinkedElsewhere(ctx, link.GoalID, link.ID)
		if err != nil {
			return err
		}
		if linked {
			continue
		}
		if err := db.DeleteGoal(ctx, link.GoalID); err != nil {
			return err
		}
		e.index.RemoveGoal(ctx, link.GoalID)
	}
	return nil
}

// PropagateGoalName renames the goals this session created to the session's
// current goal text. This never runs implicitly on session update; the caller
// invokes it as a deliberate operation.
func (e *Engine) PropagateGoalName(ctx context.Context, db Store, eventID, sessionID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session %d: empty goal name", sessionID)
	}
	links, err := db.EventGoalsForSession(ctx, eventID, sessionID)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := db.RenameGoal(ctx, link.GoalID, name); err != nil {
			return err
		}
		if goal, err := db.GoalByID(ctx, link.GoalID); err == nil {
			e.index.IndexGoal(ctx, goal)
		}
	}
	return nil
}
