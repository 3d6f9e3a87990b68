package store

import (
	"context"
	"encoding/json"
)

// Store is the persistence surface the rest of the application depends on.
// InTx hands the callback a Store bound to a single transaction; every write
// that triggers consistency work runs through one of those.
type Store interface {
	EnsureUser(ctx context.Context, displayName, email string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)

	CreateReport(ctx context.Context, kind ReportKind, r Report) (Report, error)
	ReportByID(ctx context.Context, kind ReportKind, id int64) (Report, error)
	UpdateReport(ctx context.Context, kind ReportKind, r Report) error
	SetCalculatedStatus(ctx context.Context, kind ReportKind, reportID int64, status *string) error
	ClearApproverNotes(ctx context.Context, kind ReportKind, reportID int64) error
	ClearAdditionalNotes(ctx context.Context, kind ReportKind, reportID int64) error

	UpsertApprover(ctx context.Context, kind ReportKind, a Approver) (Approver, error)
	ApproverByID(ctx context.Context, kind ReportKind, id int64) (Approver, error)
	ApproversForReport(ctx context.Context, kind ReportKind, reportID int64) ([]Approver, error)
	ApproverStatuses(ctx context.Context, kind ReportKind, reportID int64) ([]*string, error)
	SoftDeleteApprover(ctx context.Context, kind ReportKind, id int64) (Approver, error)
	RestoreApprover(ctx context.Context, kind ReportKind, id int64) (Approver, error)

	CreateEvent(ctx context.Context, ev TrainingEvent) (TrainingEvent, error)
	EventByID(ctx context.Context, id int64) (TrainingEvent, error)
	UpdateEvent(ctx context.Context, ev TrainingEvent) error
	UpdateEventData(ctx context.Context, id int64, data json.RawMessage) error
	CreateSession(ctx context.Context, s TrainingSession) (TrainingSession, error)
	SessionByID(ctx context.Context, id int64) (TrainingSession, error)
	UpdateSession(ctx context.Context, s TrainingSession) error
	DeleteSession(ctx context.Context, id int64) error
	SessionsForEvent(ctx context.Context, eventID int64) ([]TrainingSession, error)

	GoalByID(ctx context.Context, id int64) (Goal, error)
	FindGoalByGrantAndName(ctx context.Context, grantID int64, name string) (*Goal, error)
	CreateGoal(ctx context.Context, g Goal) (Goal, error)
	RenameGoal(ctx context.Context, goalID int64, name string) error
	DeleteGoal(ctx context.Context, goalID int64) error
	ListGoalsForGrant(ctx context.Context, grantID int64) ([]Goal, error)

	EventGoalExists(ctx context.Context, eventID, sessionID, grantID int64) (bool, error)
	CreateEventGoal(ctx context.Context, link EventGoal) error
	EventGoalsForSession(ctx context.Context, eventID, sessionID int64) ([]EventGoal, error)
	DeleteEventGoal(ctx context.Context, id int64) error
	GoalLinkedElsewhere(ctx context.Context, goalID, excludeLinkID int64) (bool, error)
	GoalOnApprovedReport(ctx context.Context, goalID int64) (bool, error)
	CreateReportGoal(ctx context.Context, reportID, goalID int64) error

	CollaboratorTypeID(ctx context.Context, name string) (int64, error)
	GoalCollaboratorsByType(ctx context.Context, goalID, typeID int64) ([]GoalCollaborator, error)
	CreateGoalCollaborator(ctx context.Context, c GoalCollaborator) error
	UpdateGoalCollaboratorUser(ctx context.Context, id, userID int64) error

	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(Store) error) error
}
