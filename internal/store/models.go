package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Report lifecycle statuses. CalculatedStatus only carries a value while the
// report is submitted; before that it is NULL.
const (
	ReportStatusDraft       = "draft"
	ReportStatusDeleted     = "deleted"
	ReportStatusSubmitted   = "submitted"
	ReportStatusNeedsAction = "needs_action"
	ReportStatusApproved    = "approved"
)

// Individual approver statuses. A NULL status means the approver has not
// acted yet.
const (
	ApproverStatusApproved    = "approved"
	ApproverStatusNeedsAction = "needs_action"
)

// Training event/session statuses, stored inside the data payload.
const (
	TrainingStatusNotStarted = "Not started"
	TrainingStatusInProgress = "In progress"
	TrainingStatusComplete   = "Complete"
	TrainingStatusSuspended  = "Suspended"
)

const (
	GoalStatusDraft         = "Draft"
	GoalSourceTrainingEvent = "Training event"
)

const (
	CollaboratorTypeCreator = "Creator"
	CollaboratorTypeLinker  = "Linker"
)

// ReportKind selects which concrete report tables an operation runs against.
type ReportKind string

const (
	KindActivity ReportKind = "activity"
	KindCollab   ReportKind = "collab"
)

// IDList is an int64 slice stored as a JSONB array.
type IDList []int64

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode id list: %w", err)
	}
	return string(encoded), nil
}

func (l *IDList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan id list: unsupported type %T", src)
	}
	var out []int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan id list: %w", err)
	}
	*l = out
	return nil
}

// Contains reports whether id is present in the list.
func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

type User struct {
	ID          int64
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Report struct {
	ID               int64
	SubmissionStatus string
	CalculatedStatus *string
	AdditionalNotes  string
	Context          string
	Data             json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Approver struct {
	ID        int64
	ReportID  int64
	UserID    int64
	Status    *string
	Note      string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TrainingEvent struct {
	ID              int64
	OwnerID         int64
	RegionID        int64
	CollaboratorIDs IDList
	PocIDs          IDList
	Data            json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TrainingSession struct {
	ID        int64
	EventID   int64
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Goal struct {
	ID           int64
	GrantID      int64
	Name         string
	Status       string
	Source       string
	OnAR         bool
	OnApprovedAR bool
	CreatedAt    time.Time
}

// EventGoal links a goal to the session that asserted it. One row exists per
// (event, session, grant) while a live session names that grant.
type EventGoal struct {
	ID        int64
	EventID   int64
	SessionID int64
	GrantID   int64
	GoalID    int64
}

type GoalCollaborator struct {
	ID                 int64
	GoalID             int64
	UserID             int64
	CollaboratorTypeID int64
}

// ReportGoal marks a goal as cited by an activity report. Any row pins the
// goal against retraction.
type ReportGoal struct {
	ID       int64
	ReportID int64
	GoalID   int64
}
