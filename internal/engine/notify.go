package engine

import (
	"context"
	"log"

	"quorum/api/internal/store"
)

// Dispatcher receives the typed events the detector emits. Implementations
// deliver them however they like (mail, queue); a dispatch failure is logged
// here and never reaches the triggering transaction.
type Dispatcher interface {
	CollaboratorAdded(ctx context.Context, event store.TrainingEvent, userID int64) error
	PocAdded(ctx context.Context, event store.TrainingEvent, userID int64) error
	SessionCreated(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error
	SessionCompleted(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error
	SessionPocComplete(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error
	EventCompleted(ctx context.Context, event store.TrainingEvent) error
	PocSignOff(ctx context.Context, event store.TrainingEvent) error
}

// DetectEventTransitions compares the previous and current event snapshots
// and dispatches one notification per qualifying transition. Every check is a
// previous-versus-current comparison so an already-complete record saved
// again never re-fires.
func (e *Engine) DetectEventTransitions(ctx context.Context, prev, curr store.TrainingEvent) {
	for _, id := range curr.CollaboratorIDs {
		if id == curr.OwnerID || prev.CollaboratorIDs.Contains(id) {
			continue
		}
		if err := e.dispatcher.CollaboratorAdded(ctx, curr, id); err != nil {
			log.Printf("engine: notify collaborator %d on event %d: %v", id, curr.ID, err)
		}
	}
	for _, id := range curr.PocIDs {
		if prev.PocIDs.Contains(id) {
			continue
		}
		if err := e.dispatcher.PocAdded(ctx, curr, id); err != nil {
			log.Printf("engine: notify poc %d on event %d: %v", id, curr.ID, err)
		}
	}

	prevData := decodeLenient(prev.Data, "event", prev.ID)
	currData := decodeLenient(curr.Data, "event", curr.ID)
	if prevData.Status() != store.TrainingStatusComplete && currData.Status() == store.TrainingStatusComplete {
		if err := e.dispatcher.EventCompleted(ctx, curr); err != nil {
			log.Printf("engine: notify event %d complete: %v", curr.ID, err)
		}
	}
	if !prevData.PocComplete() && currData.PocComplete() {
		if err := e.dispatcher.PocSignOff(ctx, curr); err != nil {
			log.Printf("engine: notify poc sign-off on event %d: %v", curr.ID, err)
		}
	}
}

// DetectSessionTransitions does the same for a session's payload flags.
func (e *Engine) DetectSessionTransitions(ctx context.Context, event store.TrainingEvent, prev, curr store.TrainingSession) {
	prevData := decodeLenient(prev.Data, "session", prev.ID)
	currData := decodeLenient(curr.Data, "session", curr.ID)
	if prevData.Status() != store.TrainingStatusComplete && currData.Status() == store.TrainingStatusComplete {
		if err := e.dispatcher.SessionCompleted(ctx, event, curr); err != nil {
			log.Printf("engine: notify session %d complete: %v", curr.ID, err)
		}
	}
	if !prevData.PocComplete() && currData.PocComplete() {
		if err := e.dispatcher.SessionPocComplete(ctx, event, curr); err != nil {
			log.Printf("engine: notify poc sign-off on session %d: %v", curr.ID, err)
		}
	}
}

// AnnounceSessionCreated fires the session-created notification.
func (e *Engine) AnnounceSessionCreated(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) {
	if err := e.dispatcher.SessionCreated(ctx, event, session); err != nil {
		log.Printf("engine: notify session %d created: %v", session.ID, err)
	}
}

// decodeLenient never fails the caller; a malformed payload detects as empty.
func decodeLenient(raw []byte, entity string, id int64) Payload {
	payload, err := DecodePayload(raw)
	if err != nil {
		log.Printf("engine: decode %s %d payload: %v", entity, id, err)
		return Payload{}
	}
	return payload
}
