package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"quorum/api/internal/config"
	"quorum/api/internal/engine"
	"quorum/api/internal/store"
)

type fakeStore struct {
	ensureUser                 func(ctx context.Context, displayName, email string) (store.User, error)
	userByID                   func(ctx context.Context, id int64) (store.User, error)
	createReport               func(ctx context.Context, kind store.ReportKind, r store.Report) (store.Report, error)
	reportByID                 func(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error)
	updateReport               func(ctx context.Context, kind store.ReportKind, r store.Report) error
	setCalculatedStatus        func(ctx context.Context, kind store.ReportKind, reportID int64, status *string) error
	clearApproverNotes         func(ctx context.Context, kind store.ReportKind, reportID int64) error
	clearAdditionalNotes       func(ctx context.Context, kind store.ReportKind, reportID int64) error
	upsertApprover             func(ctx context.Context, kind store.ReportKind, a store.Approver) (store.Approver, error)
	approverByID               func(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error)
	approversForReport         func(ctx context.Context, kind store.ReportKind, reportID int64) ([]store.Approver, error)
	approverStatuses           func(ctx context.Context, kind store.ReportKind, reportID int64) ([]*string, error)
	softDeleteApprover         func(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error)
	restoreApprover            func(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error)
	createEvent                func(ctx context.Context, ev store.TrainingEvent) (store.TrainingEvent, error)
	eventByID                  func(ctx context.Context, id int64) (store.TrainingEvent, error)
	updateEvent                func(ctx context.Context, ev store.TrainingEvent) error
	updateEventData            func(ctx context.Context, id int64, data json.RawMessage) error
	createSession              func(ctx context.Context, s store.TrainingSession) (store.TrainingSession, error)
	sessionByID                func(ctx context.Context, id int64) (store.TrainingSession, error)
	updateSession              func(ctx context.Context, s store.TrainingSession) error
	deleteSession              func(ctx context.Context, id int64) error
	sessionsForEvent           func(ctx context.Context, eventID int64) ([]store.TrainingSession, error)
	goalByID                   func(ctx context.Context, id int64) (store.Goal, error)
	findGoalByGrantAndName     func(ctx context.Context, grantID int64, name string) (*store.Goal, error)
	createGoal                 func(ctx context.Context, g store.Goal) (store.Goal, error)
	renameGoal                 func(ctx context.Context, goalID int64, name string) error
	deleteGoal                 func(ctx context.Context, goalID int64) error
	listGoalsForGrant          func(ctx context.Context, grantID int64) ([]store.Goal, error)
	eventGoalExists            func(ctx context.Context, eventID, sessionID, grantID int64) (bool, error)
	createEventGoal            func(ctx context.Context, link store.EventGoal) error
	eventGoalsForSession       func(ctx context.Context, eventID, sessionID int64) ([]store.EventGoal, error)
	deleteEventGoal            func(ctx context.Context, id int64) error
	goalLinkedElsewhere        func(ctx context.Context, goalID, excludeLinkID int64) (bool, error)
	goalOnApprovedReport       func(ctx context.Context, goalID int64) (bool, error)
	createReportGoal           func(ctx context.Context, reportID, goalID int64) error
	collaboratorTypeID         func(ctx context.Context, name string) (int64, error)
	goalCollaboratorsByType    func(ctx context.Context, goalID, typeID int64) ([]store.GoalCollaborator, error)
	createGoalCollaborator     func(ctx context.Context, c store.GoalCollaborator) error
	updateGoalCollaboratorUser func(ctx context.Context, id, userID int64) error
}

func (f *fakeStore) EnsureUser(ctx context.Context, displayName, email string) (store.User, error) {
	if f.ensureUser == nil {
		return store.User{}, nil
	}
	return f.ensureUser(ctx, displayName, email)
}

func (f *fakeStore) UserByID(ctx context.Context, id int64) (store.User, error) {
	if f.userByID == nil {
		return store.User{}, nil
	}
	return f.userByID(ctx, id)
}

func (f *fakeStore) CreateReport(ctx context.Context, kind store.ReportKind, r store.Report) (store.Report, error) {
	if f.createReport == nil {
		return r, nil
	}
	return f.createReport(ctx, kind, r)
}

func (f *fakeStore) ReportByID(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error) {
	if f.reportByID == nil {
		return store.Report{}, sql.ErrNoRows
	}
	return f.reportByID(ctx, kind, id)
}

func (f *fakeStore) UpdateReport(ctx context.Context, kind store.ReportKind, r store.Report) error {
	if f.updateReport == nil {
		return nil
	}
	return f.updateReport(ctx, kind, r)
}

func (f *fakeStore) SetCalculatedStatus(ctx context.Context, kind store.ReportKind, reportID int64, status *string) error {
	if f.setCalculatedStatus == nil {
		return nil
	}
	return f.setCalculatedStatus(ctx, kind, reportID, status)
}

func (f *fakeStore) ClearApproverNotes(ctx context.Context, kind store.ReportKind, reportID int64) error {
	if f.clearApproverNotes == nil {
		return nil
	}
	return f.clearApproverNotes(ctx, kind, reportID)
}

func (f *fakeStore) ClearAdditionalNotes(ctx context.Context, kind store.ReportKind, reportID int64) error {
	if f.clearAdditionalNotes == nil {
		return nil
	}
	return f.clearAdditionalNotes(ctx, kind, reportID)
}

func (f *fakeStore) UpsertApprover(ctx context.Context, kind store.ReportKind, a store.Approver) (store.Approver, error) {
	if f.upsertApprover == nil {
		return a, nil
	}
	return f.upsertApprover(ctx, kind, a)
}

func (f *fakeStore) ApproverByID(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error) {
	if f.approverByID == nil {
		return store.Approver{}, sql.ErrNoRows
	}
	return f.approverByID(ctx, kind, id)
}

func (f *fakeStore) ApproversForReport(ctx context.Context, kind store.ReportKind, reportID int64) ([]store.Approver, error) {
	if f.approversForReport == nil {
		return nil, nil
	}
	return f.approversForReport(ctx, kind, reportID)
}

func (f *fakeStore) ApproverStatuses(ctx context.Context, kind store.ReportKind, reportID int64) ([]*string, error) {
	if f.approverStatuses == nil {
		return nil, nil
	}
	return f.approverStatuses(ctx, kind, reportID)
}

func (f *fakeStore) SoftDeleteApprover(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error) {
	if f.softDeleteApprover == nil {
		return store.Approver{}, sql.ErrNoRows
	}
	return f.softDeleteApprover(ctx, kind, id)
}

func (f *fakeStore) RestoreApprover(ctx context.Context, kind store.ReportKind, id int64) (store.Approver, error) {
	if f.restoreApprover == nil {
		return store.Approver{}, sql.ErrNoRows
	}
	return f.restoreApprover(ctx, kind, id)
}

func (f *fakeStore) CreateEvent(ctx context.Context, ev store.TrainingEvent) (store.TrainingEvent, error) {
	if f.createEvent == nil {
		return ev, nil
	}
	return f.createEvent(ctx, ev)
}

func (f *fakeStore) EventByID(ctx context.Context, id int64) (store.TrainingEvent, error) {
	if f.eventByID == nil {
		return store.TrainingEvent{}, sql.ErrNoRows
	}
	return f.eventByID(ctx, id)
}

func (f *fakeStore) UpdateEvent(ctx context.Context, ev store.TrainingEvent) error {
	if f.updateEvent == nil {
		return nil
	}
	return f.updateEvent(ctx, ev)
}

func (f *fakeStore) UpdateEventData(ctx context.Context, id int64, data json.RawMessage) error {
	if f.updateEventData == nil {
		return nil
	}
	return f.updateEventData(ctx, id, data)
}

func (f *fakeStore) CreateSession(ctx context.Context, s store.TrainingSession) (store.TrainingSession, error) {
	if f.createSession == nil {
		return s, nil
	}
	return f.createSession(ctx, s)
}

func (f *fakeStore) SessionByID(ctx context.Context, id int64) (store.TrainingSession, error) {
	if f.sessionByID == nil {
		return store.TrainingSession{}, sql.ErrNoRows
	}
	return f.sessionByID(ctx, id)
}

func (f *fakeStore) UpdateSession(ctx context.Context, s store.TrainingSession) error {
	if f.updateSession == nil {
		return nil
	}
	return f.updateSession(ctx, s)
}

func (f *fakeStore) DeleteSession(ctx context.Context, id int64) error {
	if f.deleteSession == nil {
		return nil
	}
	return f.deleteSession(ctx, id)
}

func (f *fakeStore) SessionsForEvent(ctx context.Context, eventID int64) ([]store.TrainingSession, error) {
	if f.sessionsForEvent == nil {
		return nil, nil
	}
	return f.sessionsForEvent(ctx, eventID)
}

func (f *fakeStore) GoalByID(ctx context.Context, id int64) (store.Goal, error) {
	if f.goalByID == nil {
		return store.Goal{}, sql.ErrNoRows
	}
	return f.goalByID(ctx, id)
}

func (f *fakeStore) FindGoalByGrantAndName(ctx context.Context, grantID int64, name string) (*store.Goal, error) {
	if f.findGoalByGrantAndName == nil {
		return nil, nil
	}
	return f.findGoalByGrantAndName(ctx, grantID, name)
}

func (f *fakeStore) CreateGoal(ctx context.Context, g store.Goal) (store.Goal, error) {
	if f.createGoal == nil {
		return g, nil
	}
	return f.createGoal(ctx, g)
}

func (f *fakeStore) RenameGoal(ctx context.Context, goalID int64, name string) error {
	if f.renameGoal == nil {
		return nil
	}
	return f.renameGoal(ctx, goalID, name)
}

func (f *fakeStore) DeleteGoal(ctx context.Context, goalID int64) error {
	if f.deleteGoal == nil {
		return nil
	}
	return f.deleteGoal(ctx, goalID)
}

func (f *fakeStore) ListGoalsForGrant(ctx context.Context, grantID int64) ([]store.Goal, error) {
	if f.listGoalsForGrant == nil {
		return nil, nil
	}
	return f.listGoalsForGrant(ctx, grantID)
}

func (f *fakeStore) EventGoalExists(ctx context.Context, eventID, sessionID, grantID int64) (bool, error) {
	if f.eventGoalExists == nil {
		return false, nil
	}
	return f.eventGoalExists(ctx, eventID, sessionID, grantID)
}

func (f *fakeStore) CreateEventGoal(ctx context.Context, link store.EventGoal) error {
	if f.createEventGoal == nil {
		return nil
	}
	return f.createEventGoal(ctx, link)
}

func (f *fakeStore) EventGoalsForSession(ctx context.Context, eventID, sessionID int64) ([]store.EventGoal, error) {
	if f.eventGoalsForSession == nil {
		return nil, nil
	}
	return f.eventGoalsForSession(ctx, eventID, sessionID)
}

func (f *fakeStore) DeleteEventGoal(ctx context.Context, id int64) error {
	if f.deleteEventGoal == nil {
		return nil
	}
	return f.deleteEventGoal(ctx, id)
}

func (f *fakeStore) GoalLinkedElsewhere(ctx context.Context, goalID, excludeLinkID int64) (bool, error) {
	if f.goalLinkedElsewhere == nil {
		return false, nil
	}
	return f.goalLinkedElsewhere(ctx, goalID, excludeLinkID)
}

func (f *fakeStore) GoalOnApprovedReport(ctx context.Context, goalID int64) (bool, error) {
	if f.goalOnApprovedReport == nil {
		return false, nil
	}
	return f.goalOnApprovedReport(ctx, goalID)
}

func (f *fakeStore) CreateReportGoal(ctx context.Context, reportID, goalID int64) error {
	if f.createReportGoal == nil {
		return nil
	}
	return f.createReportGoal(ctx, reportID, goalID)
}

func (f *fakeStore) CollaboratorTypeID(ctx context.Context, name string) (int64, error) {
	if f.collaboratorTypeID == nil {
		return 1, nil
	}
	return f.collaboratorTypeID(ctx, name)
}

func (f *fakeStore) GoalCollaboratorsByType(ctx context.Context, goalID, typeID int64) ([]store.GoalCollaborator, error) {
	if f.goalCollaboratorsByType == nil {
		return nil, nil
	}
	return f.goalCollaboratorsByType(ctx, goalID, typeID)
}

func (f *fakeStore) CreateGoalCollaborator(ctx context.Context, c store.GoalCollaborator) error {
	if f.createGoalCollaborator == nil {
		return nil
	}
	return f.createGoalCollaborator(ctx, c)
}

func (f *fakeStore) UpdateGoalCollaboratorUser(ctx context.Context, id, userID int64) error {
	if f.updateGoalCollaboratorUser == nil {
		return nil
	}
	return f.updateGoalCollaboratorUser(ctx, id, userID)
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(f)
}

type fakeDispatcher struct {
	calls []string
}

func (d *fakeDispatcher) CollaboratorAdded(_ context.Context, event store.TrainingEvent, userID int64) error {
	d.calls = append(d.calls, fmt.Sprintf("collaborator-added:%d:%d", event.ID, userID))
	return nil
}

func (d *fakeDispatcher) PocAdded(_ context.Context, event store.TrainingEvent, userID int64) error {
	d.calls = append(d.calls, fmt.Sprintf("poc-added:%d:%d", event.ID, userID))
	return nil
}

func (d *fakeDispatcher) SessionCreated(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	d.calls = append(d.calls, fmt.Sprintf("session-created:%d:%d", event.ID, session.ID))
	return nil
}

func (d *fakeDispatcher) SessionCompleted(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	d.calls = append(d.calls, fmt.Sprintf("session-completed:%d:%d", event.ID, session.ID))
	return nil
}

func (d *fakeDispatcher) SessionPocComplete(_ context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	d.calls = append(d.calls, fmt.Sprintf("session-poc-complete:%d:%d", event.ID, session.ID))
	return nil
}

func (d *fakeDispatcher) EventCompleted(_ context.Context, event store.TrainingEvent) error {
	d.calls = append(d.calls, fmt.Sprintf("event-completed:%d", event.ID))
	return nil
}

func (d *fakeDispatcher) PocSignOff(_ context.Context, event store.TrainingEvent) error {
	d.calls = append(d.calls, fmt.Sprintf("poc-sign-off:%d", event.ID))
	return nil
}

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

func newTestService(fs *fakeStore) (*Service, *fakeDispatcher) {
	dispatcher := &fakeDispatcher{}
	eng := engine.New(dispatcher, &fakeIndexer{})
	cfg := config.Config{TokenSecret: "test-secret", TokenTTL: time.Hour}
	return New(cfg, fs, eng, nil), dispatcher
}

func strptr(s string) *string { return &s }

func TestLoginIssuesParsableToken(t *testing.T) {
	fs := &fakeStore{
		ensureUser: func(_ context.Context, displayName, email string) (store.User, error) {
			return store.User{ID: 42, DisplayName: displayName, Email: email}, nil
		},
	}
	svc, _ := newTestService(fs)

	session, err := svc.Login(context.Background(), "Jess Park", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.UserID != 42 || session.Token == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if parsed.UserID != 42 || parsed.UserName != "Jess Park" {
		t.Fatalf("unexpected parsed session: %+v", parsed)
	}
}

func TestLoginRequiresName(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	_, err := svc.Login(context.Background(), "  ", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestCreateReportSanitizesNotes(t *testing.T) {
	var created store.Report
	fs := &fakeStore{
		createReport: func(_ context.Context, _ store.ReportKind, r store.Report) (store.Report, error) {
			created = r
			return r, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateReport(context.Background(), store.KindActivity, ReportInput{
		AdditionalNotes: strptr(`<p>fine</p><script>alert(1)</script>`),
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if strings.Contains(created.AdditionalNotes, "<script>") {
		t.Fatalf("script tag survived sanitization: %q", created.AdditionalNotes)
	}
	if !strings.Contains(created.AdditionalNotes, "<p>fine</p>") {
		t.Fatalf("benign markup stripped: %q", created.AdditionalNotes)
	}
	if created.SubmissionStatus != store.ReportStatusDraft {
		t.Fatalf("expected draft default, got %q", created.SubmissionStatus)
	}
}

func TestUpdateReportResetsCalculatedStatusOnSubmissionChange(t *testing.T) {
	approved := store.ApproverStatusApproved
	var updated store.Report
	fs := &fakeStore{
		reportByID: func(_ context.Context, _ store.ReportKind, id int64) (store.Report, error) {
			return store.Report{ID: id, SubmissionStatus: store.ReportStatusSubmitted, CalculatedStatus: &approved}, nil
		},
		updateReport: func(_ context.Context, _ store.ReportKind, r store.Report) error {
			updated = r
			return nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.UpdateReport(context.Background(), store.KindActivity, 7, ReportInput{
		SubmissionStatus: strptr(store.ReportStatusDraft),
	})
	if err != nil {
		t.Fatalf("update report: %v", err)
	}
	if updated.CalculatedStatus != nil {
		t.Fatalf("calculated status should reset when leaving submission, got %q", *updated.CalculatedStatus)
	}
}

func TestPutApproverReconcilesInsideTransaction(t *testing.T) {
	approved := store.ApproverStatusApproved
	var calls []string
	var setStatus *string
	fs := &fakeStore{
		reportByID: func(_ context.Context, _ store.ReportKind, id int64) (store.Report, error) {
			return store.Report{ID: id, SubmissionStatus: store.ReportStatusSubmitted}, nil
		},
		upsertApprover: func(_ context.Context, _ store.ReportKind, a store.Approver) (store.Approver, error) {
			calls = append(calls, "upsert")
			a.ID = 11
			return a, nil
		},
		approverStatuses: func(_ context.Context, _ store.ReportKind, _ int64) ([]*string, error) {
			return []*string{&approved}, nil
		},
		clearApproverNotes: func(_ context.Context, _ store.ReportKind, _ int64) error {
			calls = append(calls, "clear-notes")
			return nil
		},
		clearAdditionalNotes: func(_ context.Context, _ store.ReportKind, _ int64) error {
			calls = append(calls, "clear-additional")
			return nil
		},
		setCalculatedStatus: func(_ context.Context, _ store.ReportKind, _ int64, status *string) error {
			calls = append(calls, "set-status")
			setStatus = status
			return nil
		},
	}
	svc, _ := newTestService(fs)

	saved, err := svc.PutApprover(context.Background(), store.KindCollab, 3, ApproverInput{
		UserID: 9,
		Status: &approved,
	})
	if err != nil {
		t.Fatalf("put approver: %v", err)
	}
	if saved.ID != 11 {
		t.Fatalf("expected upserted approver back, got %+v", saved)
	}
	want := []string{"upsert", "clear-notes", "clear-additional", "set-status"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("call order = %v, want %v", calls, want)
	}
	if setStatus == nil || *setStatus != store.ApproverStatusApproved {
		t.Fatalf("calculated status not set to approved: %v", setStatus)
	}
}

func TestPutApproverRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	_, err := svc.PutApprover(context.Background(), store.KindActivity, 1, ApproverInput{
		UserID: 2,
		Status: strptr("maybe"),
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestRemoveApproverRecomputesFromRemaining(t *testing.T) {
	needsAction := store.ApproverStatusNeedsAction
	var setStatus *string
	fs := &fakeStore{
		softDeleteApprover: func(_ context.Context, _ store.ReportKind, id int64) (store.Approver, error) {
			return store.Approver{ID: id, ReportID: 5}, nil
		},
		reportByID: func(_ context.Context, _ store.ReportKind, id int64) (store.Report, error) {
			return store.Report{ID: id, SubmissionStatus: store.ReportStatusSubmitted}, nil
		},
		approverStatuses: func(_ context.Context, _ store.ReportKind, _ int64) ([]*string, error) {
			return []*string{&needsAction}, nil
		},
		setCalculatedStatus: func(_ context.Context, _ store.ReportKind, _ int64, status *string) error {
			setStatus = status
			return nil
		},
	}
	svc, _ := newTestService(fs)

	if err := svc.RemoveApprover(context.Background(), store.KindActivity, 8); err != nil {
		t.Fatalf("remove approver: %v", err)
	}
	if setStatus == nil || *setStatus != store.ReportStatusNeedsAction {
		t.Fatalf("expected needs_action after removal, got %v", setStatus)
	}
}

func TestCreateSessionRunsGoalSyncAndAnnounce(t *testing.T) {
	var createdGoals []store.Goal
	var eventData json.RawMessage
	fs := &fakeStore{
		eventByID: func(_ context.Context, id int64) (store.TrainingEvent, error) {
			return store.TrainingEvent{
				ID:      id,
				OwnerID: 1,
				PocIDs:  store.IDList{4},
				Data:    json.RawMessage(`{"status":"Not started"}`),
			}, nil
		},
		createSession: func(_ context.Context, s store.TrainingSession) (store.TrainingSession, error) {
			s.ID = 77
			return s, nil
		},
		createGoal: func(_ context.Context, g store.Goal) (store.Goal, error) {
			g.ID = int64(len(createdGoals)) + 100
			createdGoals = append(createdGoals, g)
			return g, nil
		},
		updateEventData: func(_ context.Context, _ int64, data json.RawMessage) error {
			eventData = data
			return nil
		},
	}
	svc, dispatcher := newTestService(fs)

	data := json.RawMessage(`{"goal":"Improve onboarding","recipients":[{"grantId":7}]}`)
	created, err := svc.CreateSession(context.Background(), 2, data, 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID != 77 {
		t.Fatalf("unexpected session: %+v", created)
	}
	if len(createdGoals) != 1 || createdGoals[0].GrantID != 7 || createdGoals[0].Name != "Improve onboarding" {
		t.Fatalf("goal sync did not create the named goal: %+v", createdGoals)
	}
	if eventData == nil || !strings.Contains(string(eventData), store.TrainingStatusInProgress) {
		t.Fatalf("event should move to in-progress on first session: %s", eventData)
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != "session-created:2:77" {
		t.Fatalf("unexpected dispatches: %v", dispatcher.calls)
	}
}

func TestUpdateEventRejectsIncompleteCompletion(t *testing.T) {
	updateCalled := false
	fs := &fakeStore{
		eventByID: func(_ context.Context, id int64) (store.TrainingEvent, error) {
			return store.TrainingEvent{ID: id, OwnerID: 1, Data: json.RawMessage(`{"status":"In progress"}`)}, nil
		},
		sessionsForEvent: func(_ context.Context, _ int64) ([]store.TrainingSession, error) {
			return []store.TrainingSession{
				{ID: 1, Data: json.RawMessage(`{"status":"In progress"}`)},
			}, nil
		},
		updateEvent: func(_ context.Context, _ store.TrainingEvent) error {
			updateCalled = true
			return nil
		},
	}
	svc, _ := newTestService(fs)

	patch := json.RawMessage(`{"status":"Complete","ownerComplete":true,"pocComplete":true}`)
	_, err := svc.UpdateEvent(context.Background(), 3, EventInput{Data: patch})
	if !errors.Is(err, engine.ErrEventIncomplete) {
		t.Fatalf("expected ErrEventIncomplete, got %v", err)
	}
	if updateCalled {
		t.Fatal("event update should not persist when completion is rejected")
	}
}

func TestSessionWritesRejectedUnderCompleteEvent(t *testing.T) {
	fs := &fakeStore{
		eventByID: func(_ context.Context, id int64) (store.TrainingEvent, error) {
			return store.TrainingEvent{ID: id, OwnerID: 1, Data: json.RawMessage(`{"status":"Complete"}`)}, nil
		},
		sessionByID: func(_ context.Context, id int64) (store.TrainingSession, error) {
			return store.TrainingSession{ID: id, EventID: 3, Data: json.RawMessage(`{}`)}, nil
		},
		createSession: func(_ context.Context, _ store.TrainingSession) (store.TrainingSession, error) {
			t.Fatal("session created under a complete event")
			return store.TrainingSession{}, nil
		},
		updateSession: func(_ context.Context, _ store.TrainingSession) error {
			t.Fatal("session updated under a complete event")
			return nil
		},
		deleteSession: func(_ context.Context, _ int64) error {
			t.Fatal("session deleted under a complete event")
			return nil
		},
	}
	svc, _ := newTestService(fs)

	if _, err := svc.CreateSession(context.Background(), 3, json.RawMessage(`{}`), 1); !errors.Is(err, engine.ErrEventSealed) {
		t.Fatalf("create error = %v, want ErrEventSealed", err)
	}
	if _, err := svc.UpdateSession(context.Background(), 5, json.RawMessage(`{}`), 1); !errors.Is(err, engine.ErrEventSealed) {
		t.Fatalf("update error = %v, want ErrEventSealed", err)
	}
	if err := svc.DeleteSession(context.Background(), 5); !errors.Is(err, engine.ErrEventSealed) {
		t.Fatalf("delete error = %v, want ErrEventSealed", err)
	}
}

func TestPropagateSessionGoalNameRequiresGoalText(t *testing.T) {
	fs := &fakeStore{
		sessionByID: func(_ context.Context, id int64) (store.TrainingSession, error) {
			return store.TrainingSession{ID: id, EventID: 2, Data: json.RawMessage(`{"sessionName":"S1"}`)}, nil
		},
	}
	svc, _ := newTestService(fs)

	err := svc.PropagateSessionGoalName(context.Background(), 5)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestLinkReportGoalUnknownReport(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	err := svc.LinkReportGoal(context.Background(), 1, 2)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestListGoalsRequiresGrant(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	_, err := svc.ListGoals(context.Background(), 0)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}
