package engine

import (
	"context"
	"errors"
	"fmt"

	"quorum/api/internal/store"
)

// ErrEventIncomplete rejects an event transition to Complete while its
// sign-offs or sessions are still outstanding.
var ErrEventIncomplete = errors.New("event not ready to complete")

// ErrEventSealed rejects session writes once the parent event is Complete.
var ErrEventSealed = errors.New("event is complete")

// GuardSessionWrite blocks every session create, update, and destroy under a
// Complete parent event. Without it a sealed event's sessions stay editable,
// and a session destroy could retract goals the completed event asserted.
func (e *Engine) GuardSessionWrite(event store.TrainingEvent) error {
	data := decodeLenient(event.Data, "event", event.ID)
	if data.Status() == store.TrainingStatusComplete {
		return fmt.Errorf("event %d: %w", event.ID, ErrEventSealed)
	}
	return nil
}

// AfterSessionCreate runs the post-create consistency work: goal
// materialization, moving the parent event into progress, then the created
// notification. Notification dispatch runs last and cannot fail the write.
func (e *Engine) AfterSessionCreate(ctx context.Context, db Store, event store.TrainingEvent, session store.TrainingSession, actingUserID int64) error {
	if err := e.EnsureGoalsForSession(ctx, db, event, session, actingUserID); err != nil {
		return err
	}
	if err := e.markEventInProgress(ctx, db, event); err != nil {
		return err
	}
	e.AnnounceSessionCreated(ctx, event, session)
	return nil
}

// AfterSessionUpdate materializes goals for newly named grants, retracts
// links for grants the session dropped, then detects payload transitions. An
// idle event moves to In progress here too, not only on the first create.
func (e *Engine) AfterSessionUpdate(ctx context.Context, db Store, event store.TrainingEvent, prev, curr store.TrainingSession, actingUserID int64) error {
	if err := e.EnsureGoalsForSession(ctx, db, event, curr, actingUserID); err != nil {
		return err
	}
	if err := e.markEventInProgress(ctx, db, event); err != nil {
		return err
	}
	payload, err := DecodePayload(curr.Data)
	if err != nil {
		return fmt.Errorf("session %d: %w", curr.ID, err)
	}
	if err := e.PruneSessionGoals(ctx, db, event.ID, curr.ID, payload.GrantSet()); err != nil {
		return err
	}
	e.DetectSessionTransitions(ctx, event, prev, curr)
	return nil
}

// AfterSessionDestroy retracts every goal link the session held.
func (e *Engine) AfterSessionDestroy(ctx context.Context, db Store, event store.TrainingEvent, session store.TrainingSession) error {
	return e.PruneSessionGoals(ctx, db, event.ID, session.ID, nil)
}

// AfterEventUpdate runs notification detection only; event writes carry no
// integrity work beyond the completion validation done before the write.
func (e *Engine) AfterEventUpdate(ctx context.Context, prev, curr store.TrainingEvent) {
	e.DetectEventTransitions(ctx, prev, curr)
}

// ValidateEventComplete guards the transition to Complete: both sign-off
// flags set, at least one session, every session Complete. Violations abort
// the write.
func (e *Engine) ValidateEventComplete(ctx context.Context, db Store, prev, curr store.TrainingEvent) error {
	prevData := decodeLenient(prev.Data, "event", prev.ID)
	currData, err := DecodePayload(curr.Data)
	if err != nil {
		return fmt.Errorf("event %d: %w", curr.ID, err)
	}
	if currData.Status() != store.TrainingStatusComplete || prevData.Status() == store.TrainingStatusComplete {
		return nil
	}
	if !currData.OwnerComplete() || !currData.PocComplete() {
		return fmt.Errorf("event %d missing sign-off: %w", curr.ID, ErrEventIncomplete)
	}
	sessions, err := db.SessionsForEvent(ctx, curr.ID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("event %d has no sessions: %w", curr.ID, ErrEventIncomplete)
	}
	for _, session := range sessions {
		data := decodeLenient(session.Data, "session", session.ID)
		if data.Status() != store.TrainingStatusComplete {
			return fmt.Errorf("session %d not complete: %w", session.ID, ErrEventIncomplete)
		}
	}
	return nil
}

// markEventInProgress flips an idle event's payload status to In progress
// when its first session lands.
func (e *Engine) markEventInProgress(ctx context.Context, db Store, event store.TrainingEvent) error {
	payload, err := DecodePayload(event.Data)
	if err != nil {
		return fmt.Errorf("event %d: %w", event.ID, err)
	}
	status := payload.Status()
	if status == store.TrainingStatusInProgress || status == store.TrainingStatusComplete {
		return nil
	}
	payload.Set("status", store.TrainingStatusInProgress)
	encoded, err := payload.Encode()
	if err != nil {
		return fmt.Errorf("event %d: %w", event.ID, err)
	}
	return db.UpdateEventData(ctx, event.ID, encoded)
}
