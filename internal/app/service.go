package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quorum/api/internal/auth"
	"quorum/api/internal/config"
	"quorum/api/internal/engine"
	"quorum/api/internal/search"
	"quorum/api/internal/store"
)

type Session struct {
	Token     string
	UserID    int64
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

// ReportInput carries a report create/patch body. Nil pointer fields are
// left unchanged on update.
type ReportInput struct {
	SubmissionStatus *string         `json:"submissionStatus"`
	AdditionalNotes  *string         `json:"additionalNotes"`
	Context          *string         `json:"context"`
	Data             json.RawMessage `json:"data"`
}

type ApproverInput struct {
	UserID int64   `json:"userId"`
	Status *string `json:"status"`
	Note   string  `json:"note"`
}

type EventInput struct {
	OwnerID         *int64          `json:"ownerId"`
	RegionID        *int64          `json:"regionId"`
	CollaboratorIDs []int64         `json:"collaboratorIds"`
	PocIDs          []int64         `json:"pocIds"`
	Data            json.RawMessage `json:"data"`
}

var allowedSubmissionStatuses = map[string]struct{}{
	store.ReportStatusDraft:     {},
	store.ReportStatusSubmitted: {},
	store.ReportStatusDeleted:   {},
}

var allowedApproverStatuses = map[string]struct{}{
	store.ApproverStatusApproved:    {},
	store.ApproverStatusNeedsAction: {},
}

// Service runs every write through the consistency engine inside one
// transaction per request.
type Service struct {
	cfg    config.Config
	store  store.Store
	engine *engine.Engine
	search *search.Service
}

func New(cfg config.Config, dataStore store.Store, eng *engine.Engine, searchService *search.Service) *Service {
	return &Service{cfg: cfg, store: dataStore, engine: eng, search: searchService}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login ensures the user exists and issues a signed token for them.
func (s *Service) Login(ctx context.Context, name, email string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, validationError("name is required")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		email = strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@quorum.local"
	}

	user, err := s.store.EnsureUser(ctx, name, email)
	if err != nil {
		return Session{}, fmt.Errorf("ensure user: %w", err)
	}

	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	claims := auth.Claims{
		UserID: user.ID,
		Name:   user.DisplayName,
		JTI:    auth.NewJTI(),
		Exp:    expiresAt.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), claims)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.UserID,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func parseKind(raw string) (store.ReportKind, error) {
	switch store.ReportKind(raw) {
	case store.KindActivity:
		return store.KindActivity, nil
	case store.KindCollab:
		return store.KindCollab, nil
	default:
		return "", notFoundError("unknown report kind")
	}
}

func (s *Service) CreateReport(ctx context.Context, kind store.ReportKind, input ReportInput) (store.Report, error) {
	report := store.Report{SubmissionStatus: store.ReportStatusDraft}
	if err := applyReportInput(&report, input); err != nil {
		return store.Report{}, err
	}
	report.CalculatedStatus = nil
	s.engine.SanitizeReport(nil, &report)
	return s.store.CreateReport(ctx, kind, report)
}

func (s *Service) GetReport(ctx context.Context, kind store.ReportKind, id int64) (store.Report, error) {
	return s.store.ReportByID(ctx, kind, id)
}

func (s *Service) UpdateReport(ctx context.Context, kind store.ReportKind, id int64, input ReportInput) (store.Report, error) {
	var updated store.Report
	err := s.store.InTx(ctx, func(tx store.Store) error {
		prev, err := tx.ReportByID(ctx, kind, id)
		if err != nil {
			return err
		}
		next := prev
		if err := applyReportInput(&next, input); err != nil {
			return err
		}
		// The calculated status only exists while the report is submitted;
		// entering or leaving submission resets it until approvers act.
		if next.SubmissionStatus != prev.SubmissionStatus {
			next.CalculatedStatus = nil
		}
		s.engine.SanitizeReport(&prev, &next)
		if err := tx.UpdateReport(ctx, kind, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	return updated, err
}

func applyReportInput(report *store.Report, input ReportInput) error {
	if input.SubmissionStatus != nil {
		if _, ok := allowedSubmissionStatuses[*input.SubmissionStatus]; !ok {
			return validationError("invalid submission status")
		}
		report.SubmissionStatus = *input.SubmissionStatus
	}
	if input.AdditionalNotes != nil {
		report.AdditionalNotes = *input.AdditionalNotes
	}
	if input.Context != nil {
		report.Context = *input.Context
	}
	if input.Data != nil {
		report.Data = input.Data
	}
	return nil
}

// PutApprover creates or updates the approver row for (report, user) and
// reconciles the report's calculated status in the same transaction.
func (s *Service) PutApprover(ctx context.Context, kind store.ReportKind, reportID int64, input ApproverInput) (store.Approver, error) {
	if input.UserID == 0 {
		return store.Approver{}, validationError("userId is required")
	}
	if input.Status != nil {
		if _, ok := allowedApproverStatuses[*input.Status]; !ok {
			return store.Approver{}, validationError("invalid approver status")
		}
	}

	var saved store.Approver
	err := s.store.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.ReportByID(ctx, kind, reportID); err != nil {
			return err
		}
		approver := store.Approver{
			ReportID: reportID,
			UserID:   input.UserID,
			Status:   input.Status,
			Note:     input.Note,
		}
		s.engine.SanitizeApproverNote(nil, &approver)
		var err error
		saved, err = tx.UpsertApprover(ctx, kind, approver)
		if err != nil {
			return err
		}
		return s.engine.ReconcileApproval(ctx, tx, kind, reportID, saved.Status)
	})
	return saved, err
}

// RemoveApprover soft-deletes the approver and recomputes the calculated
// status from the remaining set.
func (s *Service) RemoveApprover(ctx context.Context, kind store.ReportKind, approverID int64) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		removed, err := tx.SoftDeleteApprover(ctx, kind, approverID)
		if err != nil {
			return err
		}
		return s.engine.ReconcileApprovalAfterRemoval(ctx, tx, kind, removed.ReportID)
	})
}

func (s *Service) RestoreApprover(ctx context.Context, kind store.ReportKind, approverID int64) (store.Approver, error) {
	var restored store.Approver
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		restored, err = tx.RestoreApprover(ctx, kind, approverID)
		if err != nil {
			return err
		}
		return s.engine.ReconcileApproval(ctx, tx, kind, restored.ReportID, restored.Status)
	})
	return restored, err
}

func (s *Service) ListApprovers(ctx context.Context, kind store.ReportKind, reportID int64) ([]store.Approver, error) {
	return s.store.ApproversForReport(ctx, kind, reportID)
}

func (s *Service) CreateEvent(ctx context.Context, input EventInput) (store.TrainingEvent, error) {
	event := store.TrainingEvent{}
	applyEventInput(&event, input)
	if event.OwnerID == 0 {
		return store.TrainingEvent{}, validationError("ownerId is required")
	}
	s.engine.SanitizeEventPayload(nil, &event)
	return s.store.CreateEvent(ctx, event)
}

func (s *Service) GetEvent(ctx context.Context, id int64) (store.TrainingEvent, error) {
	return s.store.EventByID(ctx, id)
}

// UpdateEvent applies the patch, validates completion, and runs notification
// detection after the write. All inside one transaction.
func (s *Service) UpdateEvent(ctx context.Context, id int64, input EventInput) (store.TrainingEvent, error) {
	var updated store.TrainingEvent
	err := s.store.InTx(ctx, func(tx store.Store) error {
		prev, err := tx.EventByID(ctx, id)
		if err != nil {
			return err
		}
		next := prev
		applyEventInput(&next, input)
		s.engine.SanitizeEventPayload(&prev, &next)
		if err := s.engine.ValidateEventComplete(ctx, tx, prev, next); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, next); err != nil {
			return err
		}
		s.engine.AfterEventUpdate(ctx, prev, next)
		updated = next
		return nil
	})
	return updated, err
}

func applyEventInput(event *store.TrainingEvent, input EventInput) {
	if input.OwnerID != nil {
		event.OwnerID = *input.OwnerID
	}
	if input.RegionID != nil {
		event.RegionID = *input.RegionID
	}
	if input.CollaboratorIDs != nil {
		event.CollaboratorIDs = store.IDList(input.CollaboratorIDs)
	}
	if input.PocIDs != nil {
		event.PocIDs = store.IDList(input.PocIDs)
	}
	if input.Data != nil {
		event.Data = input.Data
	}
}

func (s *Service) CreateSession(ctx context.Context, eventID int64, data json.RawMessage, actingUserID int64) (store.TrainingSession, error) {
	var created store.TrainingSession
	err := s.store.InTx(ctx, func(tx store.Store) error {
		event, err := tx.EventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if err := s.engine.GuardSessionWrite(event); err != nil {
			return err
		}
		session := store.TrainingSession{EventID: eventID, Data: data}
		s.engine.SanitizeSessionPayload(nil, &session)
		created, err = tx.CreateSession(ctx, session)
		if err != nil {
			return err
		}
		return s.engine.AfterSessionCreate(ctx, tx, event, created, actingUserID)
	})
	return created, err
}

func (s *Service) GetSession(ctx context.Context, id int64) (store.TrainingSession, error) {
	return s.store.SessionByID(ctx, id)
}

func (s *Service) UpdateSession(ctx context.Context, id int64, data json.RawMessage, actingUserID int64) (store.TrainingSession, error) {
	var updated store.TrainingSession
	err := s.store.InTx(ctx, func(tx store.Store) error {
		prev, err := tx.SessionByID(ctx, id)
		if err != nil {
			return err
		}
		event, err := tx.EventByID(ctx, prev.EventID)
		if err != nil {
			return err
		}
		if err := s.engine.GuardSessionWrite(event); err != nil {
			return err
		}
		next := prev
		next.Data = data
		s.engine.SanitizeSessionPayload(&prev, &next)
		if err := tx.UpdateSession(ctx, next); err != nil {
			return err
		}
		if err := s.engine.AfterSessionUpdate(ctx, tx, event, prev, next, actingUserID); err != nil {
			return err
		}
		updated = next
		return nil
	})
	return updated, err
}

func (s *Service) DeleteSession(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		session, err := tx.SessionByID(ctx, id)
		if err != nil {
			return err
		}
		event, err := tx.EventByID(ctx, session.EventID)
		if err != nil {
			return err
		}
		if err := s.engine.GuardSessionWrite(event); err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, id); err != nil {
			return err
		}
		return s.engine.AfterSessionDestroy(ctx, tx, event, session)
	})
}

// PropagateSessionGoalName renames the goals this session created to its
// current goal text. Invoked explicitly, never as a side effect of a session
// save.
func (s *Service) PropagateSessionGoalName(ctx context.Context, sessionID int64) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		session, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		payload, err := engine.DecodePayload(session.Data)
		if err != nil {
			return fmt.Errorf("session %d: %w", sessionID, err)
		}
		name := strings.TrimSpace(payload.GoalText())
		if name == "" {
			return validationError("session has no goal text")
		}
		return s.engine.PropagateGoalName(ctx, tx, session.EventID, session.ID, name)
	})
}

func (s *Service) ListGoals(ctx context.Context, grantID int64) ([]store.Goal, error) {
	if grantID == 0 {
		return nil, validationError("grantId is required")
	}
	goals, err := s.store.ListGoalsForGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []store.Goal{}
	}
	return goals, nil
}

func (s *Service) SearchGoals(q search.Query) search.Response {
	return s.search.Search(q)
}

// LinkReportGoal marks a goal as cited by an activity report, pinning it
// against retraction.
func (s *Service) LinkReportGoal(ctx context.Context, reportID, goalID int64) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.ReportByID(ctx, store.KindActivity, reportID); err != nil {
			return err
		}
		if _, err := tx.GoalByID(ctx, goalID); err != nil {
			return err
		}
		return tx.CreateReportGoal(ctx, reportID, goalID)
	})
}
