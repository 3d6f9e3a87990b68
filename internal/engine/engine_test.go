package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"quorum/api/internal/store"
)

func fmtCall(kind string, eventID, subjectID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, eventID, subjectID)
}

// fakeStore implements Store with per-method function fields; tests set only
// the calls they expect.
type fakeStore struct {
	reportByID             func(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error)
	approverStatuses       func(ctx context.Context, kind store.ReportKind, reportID int64) ([]*string, error)
	clearApproverNotes     func(ctx context.Context, kind store.ReportKind, reportID int64) error
	clearAdditionalNotes   func(ctx context.Context, kind store.ReportKind, reportID int64) error
	setCalculatedStatus    func(ctx context.Context, kind store.ReportKind, reportID int64, status *string) error
	updateEventData        func(ctx context.Context, id int64, data json.RawMessage) error
	sessionsForEvent       func(ctx context.Context, eventID int64) ([]store.TrainingSession, error)
	findGoalByGrantAndName func(ctx context.Context, grantID int64, name string) (*store.Goal, error)
	createGoal             func(ctx context.Context, g store.Goal) (store.Goal, error)
	renameGoal             func(ctx context.Context, goalID int64, name string) error
	deleteGoal             func(ctx context.Context, goalID int64) error
	goalByID               func(ctx context.Context, id int64) (store.Goal, error)
	eventGoalExists        func(ctx context.Context, eventID, sessionID, grantID int64) (bool, error)
	createEventGoal        func(ctx context.Context, link store.EventGoal) error
	eventGoalsForSession   func(ctx context.Context, eventID, sessionID int64) ([]store.EventGoal, error)
	deleteEventGoal        func(ctx context.Context, id int64) error
	goalLinkedElsewhere    func(ctx context.Context, goalID, excludeLinkID int64) (bool, error)
	goalOnApprovedReport   func(ctx context.Context, goalID int64) (bool, error)
	collaboratorTypeID     func(ctx context.Context, name string) (int64, error)
	goalCollaborators      func(ctx context.Context, goalID, typeID int64) ([]store.GoalCollaborator, error)
	createGoalCollaborator func(ctx context.Context, c store.GoalCollaborator) error
	updateGoalCollabUser   func(ctx context.Context, id, userID int64) error
}

func (f *fakeStore) ReportByID(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error) {
	return f.reportByID(ctx, kind, id)
}

func (f *fakeStore) ApproverStatuses(ctx context.Context, kind store.ReportKind, reportID int64) ([]*string, error) {
	return f.approverStatuses(ctx, kind, reportID)
}

func (f *fakeStore) ClearApproverNotes(ctx context.Context, kind store.ReportKind, reportID int64) error {
	return f.clearApproverNotes(ctx, kind, reportID)
}

func (f *fakeStore) ClearAdditionalNotes(ctx context.Context, kind store.ReportKind, reportID int64) error {
	return f.clearAdditionalNotes(ctx, kind, reportID)
}

func (f *fakeStore) SetCalculatedStatus(ctx context.Context, kind store.ReportKind, reportID int64, status *string) error {
	return f.setCalculatedStatus(ctx, kind, reportID, status)
}

func (f *fakeStore) UpdateEventData(ctx context.Context, id int64, data json.RawMessage) error {
	return f.updateEventData(ctx, id, data)
}

func (f *fakeStore) SessionsForEvent(ctx context.Context, eventID int64) ([]store.TrainingSession, error) {
	return f.sessionsForEvent(ctx, eventID)
}

func (f *fakeStore) FindGoalByGrantAndName(ctx context.Context, grantID int64, name string) (*store.Goal, error) {
	return f.findGoalByGrantAndName(ctx, grantID, name)
}

func (f *fakeStore) CreateGoal(ctx context.Context, g store.Goal) (store.Goal, error) {
	return f.createGoal(ctx, g)
}

func (f *fakeStore) RenameGoal(ctx context.Context, goalID int64, name string) error {
	return f.renameGoal(ctx, goalID, name)
}

func (f *fakeStore) DeleteGoal(ctx context.Context, goalID int64) error {
	return f.deleteGoal(ctx, goalID)
}

func (f *fakeStore) GoalByID(ctx context.Context, id int64) (store.Goal, error) {
	return f.goalByID(ctx, id)
}

func (f *fakeStore) EventGoalExists(ctx context.Context, eventID, sessionID, grantID int64) (bool, error) {
	return f.eventGoalExists(ctx, eventID, sessionID, grantID)
}

func (f *fakeStore) CreateEventGoal(ctx context.Context, link store.EventGoal) error {
	return f.createEventGoal(ctx, link)
}

func (f *fakeStore) EventGoalsForSession(ctx context.Context, eventID, sessionID int64) ([]store.EventGoal, error) {
	return f.eventGoalsForSession(ctx, eventID, sessionID)
}

func (f *fakeStore) DeleteEventGoal(ctx context.Context, id int64) error {
	return f.deleteEventGoal(ctx, id)
}

func (f *fakeStore) GoalLinkedElsewhere(ctx context.Context, goalID, excludeLinkID int64) (bool, error) {
	return f.goalLinkedElsewhere(ctx, goalID, excludeLinkID)
}

func (f *fakeStore) GoalOnApprovedReport(ctx context.Context, goalID int64) (bool, error) {
	return f.goalOnApprovedReport(ctx, goalID)
}

func (f *fakeStore) CollaboratorTypeID(ctx context.Context, name string) (int64, error) {
	return f.collaboratorTypeID(ctx, name)
}

func (f *fakeStore) GoalCollaboratorsByType(ctx context.Context, goalID, typeID int64) ([]store.GoalCollaborator, error) {
	return f.goalCollaborators(ctx, goalID, typeID)
}

func (f *fakeStore) CreateGoalCollaborator(ctx context.Context, c store.GoalCollaborator) error {
	return f.createGoalCollaborator(ctx, c)
}

func (f *fakeStore) UpdateGoalCollaboratorUser(ctx context.Context, id, userID int64) error {
	return f.updateGoalCollabUser(ctx, id, userID)
}

// fakeDispatcher records every dispatched event as "kind:id" strings.
type fakeDispatcher struct {
	calls []string
	err   error
}

func (f *fakeDispatcher) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeDispatcher) CollaboratorAdded(_ context.Context, event store.TrainingEvent, userID int64) error {
	return f.record(fmtCall("collaborator-added", event.ID, userID))
}

func (f *fakeDispatcher) PocAdded(_ context.Context, event store.TrainingEvent, userID int64) error {
	return f.record(fmtCall("poc-added", event.ID, userID))
}

func (f *fakeDispatcher) SessionCreated(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return f.record(fmtCall("session-created", event.ID, session.ID))
}

func (f *fakeDispatcher) SessionCompleted(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return f.record(fmtCall("session-completed", event.ID, session.ID))
}

func (f *fakeDispatcher) SessionPocComplete(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return f.record(fmtCall("session-poc-complete", event.ID, session.ID))
}

func (f *fakeDispatcher) EventCompleted(_ context.Context, event store.TrainingEvent) error {
	return f.record(fmtCall("event-completed", event.ID, 0))
}

func (f *fakeDispatcher) PocSignOff(_ context.Context, event store.TrainingEvent) error {
	return f.record(fmtCall("poc-sign-off", event.ID, 0))
}

// fakeIndexer records goal ids handed to the search index.
type fakeIndexer struct {
	indexed []int64
	removed []int64
}

func (f *fakeIndexer) IndexGoal(_ context.Context, g store.Goal) {
	f.indexed = append(f.indexed, g.ID)
}

func (f *fakeIndexer) RemoveGoal(_ context.Context, goalID int64) {
	f.removed = append(f.removed, goalID)
}

func newTestEngine() (*Engine, *fakeDispatcher, *fakeIndexer) {
	dispatcher := &fakeDispatcher{}
	indexer := &fakeIndexer{}
	return New(dispatcher, indexer), dispatcher, indexer
}

func strptr(s string) *string { return &s }
