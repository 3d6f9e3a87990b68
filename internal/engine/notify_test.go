package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"quorum/api/internal/store"
)

func eventData(t *testing.T, fields map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	return data
}

func TestDetectEventTransitionsNewCollaborators(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()

	prev := store.TrainingEvent{ID: 7, OwnerID: 1, CollaboratorIDs: store.IDList{2}}
	curr := store.TrainingEvent{ID: 7, OwnerID: 1, CollaboratorIDs: store.IDList{2, 3, 1}}
	engine.DetectEventTransitions(context.Background(), prev, curr)

	// Only the genuinely new non-owner id fires.
	want := []string{fmtCall("collaborator-added", 7, 3)}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != want[0] {
		t.Fatalf("calls = %v, want %v", dispatcher.calls, want)
	}
}

func TestDetectEventTransitionsNewPocs(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()

	prev := store.TrainingEvent{ID: 7, PocIDs: store.IDList{5}}
	curr := store.TrainingEvent{ID: 7, PocIDs: store.IDList{5, 6}}
	engine.DetectEventTransitions(context.Background(), prev, curr)

	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != fmtCall("poc-added", 7, 6) {
		t.Fatalf("calls = %v", dispatcher.calls)
	}
}

func TestDetectEventTransitionsCompletionFiresOnce(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()

	idle := store.TrainingEvent{ID: 7, Data: eventData(t, map[string]any{"status": store.TrainingStatusInProgress})}
	complete := store.TrainingEvent{ID: 7, Data: eventData(t, map[string]any{"status": store.TrainingStatusComplete})}

	engine.DetectEventTransitions(context.Background(), idle, complete)
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != fmtCall("event-completed", 7, 0) {
		t.Fatalf("calls = %v", dispatcher.calls)
	}

	// Re-saving the already-complete event must not re-fire.
	engine.DetectEventTransitions(context.Background(), complete, complete)
	if len(dispatcher.calls) != 1 {
		t.Fatalf("calls after re-save = %v", dispatcher.calls)
	}
}

func TestDetectEventTransitionsPocSignOff(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()

	prev := store.TrainingEvent{ID: 7, Data: eventData(t, map[string]any{"pocComplete": false})}
	curr := store.TrainingEvent{ID: 7, Data: eventData(t, map[string]any{"pocComplete": true})}
	engine.DetectEventTransitions(context.Background(), prev, curr)

	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != fmtCall("poc-sign-off", 7, 0) {
		t.Fatalf("calls = %v", dispatcher.calls)
	}
}

func TestDetectSessionTransitions(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()
	event := store.TrainingEvent{ID: 7}

	prev := store.TrainingSession{ID: 5, EventID: 7, Data: eventData(t, map[string]any{"status": store.TrainingStatusInProgress})}
	curr := store.TrainingSession{ID: 5, EventID: 7, Data: eventData(t, map[string]any{
		"status":      store.TrainingStatusComplete,
		"pocComplete": true,
	})}
	engine.DetectSessionTransitions(context.Background(), event, prev, curr)

	want := []string{
		fmtCall("session-completed", 7, 5),
		fmtCall("session-poc-complete", 7, 5),
	}
	if len(dispatcher.calls) != 2 || dispatcher.calls[0] != want[0] || dispatcher.calls[1] != want[1] {
		t.Fatalf("calls = %v, want %v", dispatcher.calls, want)
	}
}

func TestDispatchFailureIsSwallowed(t *testing.T) {
	engine, dispatcher, _ := newTestEngine()
	dispatcher.err = errors.New("smtp down")

	prev := store.TrainingEvent{ID: 7}
	curr := store.TrainingEvent{ID: 7, CollaboratorIDs: store.IDList{3}}
	// Must not panic or propagate; failure is logged only.
	engine.DetectEventTransitions(context.Background(), prev, curr)

	if len(dispatcher.calls) != 1 {
		t.Fatalf("calls = %v", dispatcher.calls)
	}
}
