// Package engine keeps derived state consistent whenever reports, approvers,
// sessions, and events are written. Integrity work (calculated statuses, goal
// lifecycle, collaborator roles) runs inside the caller's transaction and
// propagates errors; sanitization and notification dispatch are best-effort
// and never fail a write.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log"

	"quorum/api/internal/sanitize"
	"quorum/api/internal/store"
)

// Store is the slice of the persistence surface the engine touches. The app
// layer passes a transaction-bound implementation into every entry point so
// all reconciliation joins the triggering write's transaction.
type Store interface {
	ReportByID(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error)
	ApproverStatuses(ctx context.Context, kind store.ReportKind, reportID int64) ([]*string, error)
	ClearApproverNotes(ctx context.Context, kind store.ReportKind, reportID int64) error
	ClearAdditionalNotes(ctx context.Context, kind store.ReportKind, reportID int64) error
	SetCalculatedStatus(ctx context.Context, kind store.ReportKind, reportID int64, status *string) error

	UpdateEventData(ctx context.Context, id int64, data json.RawMessage) error
	SessionsForEvent(ctx context.Context, eventID int64) ([]store.TrainingSession, error)

	FindGoalByGrantAndName(ctx context.Context, grantID int64, name string) (*store.Goal, error)
	CreateGoal(ctx context.Context, g store.Goal) (store.Goal, error)
	RenameGoal(ctx context.Context, goalID int64, name string) error
	DeleteGoal(ctx context.Context, goalID int64) error
	GoalByID(ctx context.Context, id int64) (store.Goal, error)

	EventGoalExists(ctx context.Context, eventID, sessionID, grantID int64) (bool, error)
	CreateEventGoal(ctx context.Context, link store.EventGoal) error
	EventGoalsForSession(ctx context.Context, eventID, sessionID int64) ([]store.EventGoal, error)
	DeleteEventGoal(ctx context.Context, id int64) error
	GoalLinkedElsewhere(ctx context.Context, goalID, excludeLinkID int64) (bool, error)
	GoalOnApprovedReport(ctx context.Context, goalID int64) (bool, error)

	CollaboratorTypeID(ctx context.Context, name string) (int64, error)
	GoalCollaboratorsByType(ctx context.Context, goalID, typeID int64) ([]store.GoalCollaborator, error)
	CreateGoalCollaborator(ctx context.Context, c store.GoalCollaborator) error
	UpdateGoalCollaboratorUser(ctx context.Context, id, userID int64) error
}

// GoalIndexer receives goal changes for the search index. Implementations
// are best-effort; the methods return nothing and must not block the caller
// on index availability.
type GoalIndexer interface {
	IndexGoal(ctx context.Context, g store.Goal)
	RemoveGoal(ctx context.Context, goalID int64)
}

type Engine struct {
	dispatcher Dispatcher
	index      GoalIndexer
}

func New(dispatcher Dispatcher, index GoalIndexer) *Engine {
	return &Engine{dispatcher: dispatcher, index: index}
}

// Report free-text fields and the payload fields sanitized on write.
var (
	eventPayloadFields   = []string{"eventName"}
	sessionPayloadFields = []string{"sessionName", "goal", "objective"}
)

// SanitizeReport cleans the report's free-text fields in place. Only fields
// that differ from the previous snapshot are touched; prev == nil means a
// create, where every field counts as changed.
func (e *Engine) SanitizeReport(prev, next *store.Report) {
	if prev == nil || prev.AdditionalNotes != next.AdditionalNotes {
		next.AdditionalNotes = sanitize.Clean(next.AdditionalNotes)
	}
	if prev == nil || prev.Context != next.Context {
		next.Context = sanitize.Clean(next.Context)
	}
}

// SanitizeApproverNote cleans the approver's note when it changed.
func (e *Engine) SanitizeApproverNote(prev, next *store.Approver) {
	if prev == nil || prev.Note != next.Note {
		next.Note = sanitize.Clean(next.Note)
	}
}

// SanitizeEventPayload cleans the named text fields inside the event's data
// payload. Decode failures are logged and leave the payload untouched.
func (e *Engine) SanitizeEventPayload(prev, next *store.TrainingEvent) {
	var prevData []byte
	if prev != nil {
		prevData = prev.Data
	}
	if cleaned, ok := sanitizePayloadFields(prevData, next.Data, eventPayloadFields, "event", next.ID); ok {
		next.Data = cleaned
	}
}

// SanitizeSessionPayload cleans the named text fields inside the session's
// data payload.
func (e *Engine) SanitizeSessionPayload(prev, next *store.TrainingSession) {
	var prevData []byte
	if prev != nil {
		prevData = prev.Data
	}
	if cleaned, ok := sanitizePayloadFields(prevData, next.Data, sessionPayloadFields, "session", next.ID); ok {
		next.Data = cleaned
	}
}

// sanitizePayloadFields decodes the payload, cleans the named fields that
// changed against the previous payload, and re-encodes the whole object. The
// second return is false when the payload should be left as it was.
func sanitizePayloadFields(prevRaw, nextRaw []byte, fields []string, entity string, id int64) ([]byte, bool) {
	next, err := DecodePayload(nextRaw)
	if err != nil {
		log.Printf("engine: sanitize %s %d: %v", entity, id, err)
		return nil, false
	}
	prev := Payload{}
	if len(prevRaw) > 0 {
		if decoded, err := DecodePayload(prevRaw); err == nil {
			prev = decoded
		}
	}
	changed := false
	for _, field := range fields {
		value, present := next[field]
		if !present {
			continue
		}
		if prevValue, ok := prev[field]; ok && sameJSONValue(prevValue, value) {
			continue
		}
		next.Set(field, sanitize.Clean(value))
		changed = true
	}
	if !changed && len(nextRaw) > 0 {
		return nextRaw, true
	}
	encoded, err := next.Encode()
	if err != nil {
		log.Printf("engine: sanitize %s %d: %v", entity, id, err)
		return nil, false
	}
	return encoded, true
}

// sameJSONValue compares decoded payload values by their re-encoded bytes.
// Values out of a decoded payload can be maps or slices, which == panics on.
func sameJSONValue(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(aj, bj)
}
