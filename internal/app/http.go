package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/api/internal/auth"
	"quorum/api/internal/engine"
	"quorum/api/internal/search"
	"quorum/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Name, body.Email)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userName":  session.UserName,
			"userId":    session.UserID,
			"expiresAt": session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := search.Query{
			Text: strings.TrimSpace(r.URL.Query().Get("q")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("grantId")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "grantId must be an integer", nil)
				return
			}
			q.GrantID = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "limit must be an integer", nil)
				return
			}
			q.Limit = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "offset must be an integer", nil)
				return
			}
			q.Offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.SearchGoals(q))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/goals" {
		grantID := int64(0)
		if raw := strings.TrimSpace(r.URL.Query().Get("grantId")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "grantId must be an integer", nil)
				return
			}
			grantID = parsed
		}
		goals, err := s.service.ListGoals(r.Context(), grantID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		views := make([]map[string]any, 0, len(goals))
		for _, g := range goals {
			views = append(views, goalView(g))
		}
		writeJSON(w, http.StatusOK, map[string]any{"goals": views})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}

	switch parts[1] {
	case "reports":
		s.handleReports(w, r, session, parts)
		return
	case "events":
		s.handleEvents(w, r, session, parts)
		return
	case "sessions":
		s.handleSessions(w, r, session, parts)
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

// handleReports routes /api/reports/{kind}/... for both report kinds.
func (s *HTTPServer) handleReports(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}
	kind, err := parseKind(parts[2])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	// POST /api/reports/{kind}
	if r.Method == http.MethodPost && len(parts) == 3 {
		var input ReportInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		report, err := s.service.CreateReport(r.Context(), kind, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, reportView(kind, report))
		return
	}

	if len(parts) < 4 {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}
	reportID, ok := pathID(w, parts[3])
	if !ok {
		return
	}

	// GET /api/reports/{kind}/{id}
	if r.Method == http.MethodGet && len(parts) == 4 {
		report, err := s.service.GetReport(r.Context(), kind, reportID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, reportView(kind, report))
		return
	}

	// PATCH /api/reports/{kind}/{id}
	if r.Method == http.MethodPatch && len(parts) == 4 {
		var input ReportInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		report, err := s.service.UpdateReport(r.Context(), kind, reportID, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, reportView(kind, report))
		return
	}

	// GET /api/reports/{kind}/{id}/approvers
	if r.Method == http.MethodGet && len(parts) == 5 && parts[4] == "approvers" {
		approvers, err := s.service.ListApprovers(r.Context(), kind, reportID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		views := make([]map[string]any, 0, len(approvers))
		for _, a := range approvers {
			views = append(views, approverView(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"approvers": views})
		return
	}

	// PUT /api/reports/{kind}/{id}/approvers
	if r.Method == http.MethodPut && len(parts) == 5 && parts[4] == "approvers" {
		var input ApproverInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		approver, err := s.service.PutApprover(r.Context(), kind, reportID, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, approverView(approver))
		return
	}

	// DELETE /api/reports/{kind}/{id}/approvers/{approverID}
	if r.Method == http.MethodDelete && len(parts) == 6 && parts[4] == "approvers" {
		approverID, ok := pathID(w, parts[5])
		if !ok {
			return
		}
		if err := s.service.RemoveApprover(r.Context(), kind, approverID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// POST /api/reports/{kind}/{id}/approvers/{approverID}/restore
	if r.Method == http.MethodPost && len(parts) == 7 && parts[4] == "approvers" && parts[6] == "restore" {
		approverID, ok := pathID(w, parts[5])
		if !ok {
			return
		}
		approver, err := s.service.RestoreApprover(r.Context(), kind, approverID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, approverView(approver))
		return
	}

	// POST /api/reports/activity/{id}/goals
	if r.Method == http.MethodPost && len(parts) == 5 && parts[4] == "goals" && kind == store.KindActivity {
		var body struct {
			GoalID int64 `json:"goalId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if body.GoalID == 0 {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "goalId is required", nil)
			return
		}
		if err := s.service.LinkReportGoal(r.Context(), reportID, body.GoalID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	// POST /api/events
	if r.Method == http.MethodPost && len(parts) == 2 {
		var input EventInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if input.OwnerID == nil {
			input.OwnerID = &session.UserID
		}
		event, err := s.service.CreateEvent(r.Context(), input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, eventView(event))
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}
	eventID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	// GET /api/events/{id}
	if r.Method == http.MethodGet && len(parts) == 3 {
		event, err := s.service.GetEvent(r.Context(), eventID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, eventView(event))
		return
	}

	// PATCH /api/events/{id}
	if r.Method == http.MethodPatch && len(parts) == 3 {
		var input EventInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		event, err := s.service.UpdateEvent(r.Context(), eventID, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, eventView(event))
		return
	}

	// POST /api/events/{id}/sessions
	if r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "sessions" {
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		created, err := s.service.CreateSession(r.Context(), eventID, body.Data, session.UserID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, sessionView(created))
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
		return
	}
	sessionID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	// GET /api/sessions/{id}
	if r.Method == http.MethodGet && len(parts) == 3 {
		trainingSession, err := s.service.GetSession(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(trainingSession))
		return
	}

	// PATCH /api/sessions/{id}
	if r.Method == http.MethodPatch && len(parts) == 3 {
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateSession(r.Context(), sessionID, body.Data, session.UserID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(updated))
		return
	}

	// DELETE /api/sessions/{id}
	if r.Method == http.MethodDelete && len(parts) == 3 {
		if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// POST /api/sessions/{id}/propagate-goal-name
	if r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "propagate-goal-name" {
		if err := s.service.PropagateSessionGoalName(r.Context(), sessionID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

func reportView(kind store.ReportKind, report store.Report) map[string]any {
	return map[string]any{
		"id":               report.ID,
		"kind":             string(kind),
		"submissionStatus": report.SubmissionStatus,
		"calculatedStatus": report.CalculatedStatus,
		"additionalNotes":  report.AdditionalNotes,
		"context":          report.Context,
		"data":             rawView(report.Data),
		"createdAt":        report.CreatedAt.Unix(),
		"updatedAt":        report.UpdatedAt.Unix(),
	}
}

func approverView(approver store.Approver) map[string]any {
	view := map[string]any{
		"id":       approver.ID,
		"reportId": approver.ReportID,
		"userId":   approver.UserID,
		"status":   approver.Status,
		"note":     approver.Note,
	}
	if approver.DeletedAt != nil {
		view["deletedAt"] = approver.DeletedAt.Unix()
	}
	return view
}

func eventView(event store.TrainingEvent) map[string]any {
	return map[string]any{
		"id":              event.ID,
		"ownerId":         event.OwnerID,
		"regionId":        event.RegionID,
		"collaboratorIds": []int64(event.CollaboratorIDs),
		"pocIds":          []int64(event.PocIDs),
		"data":            rawView(event.Data),
		"createdAt":       event.CreatedAt.Unix(),
		"updatedAt":       event.UpdatedAt.Unix(),
	}
}

func sessionView(session store.TrainingSession) map[string]any {
	return map[string]any{
		"id":        session.ID,
		"eventId":   session.EventID,
		"data":      rawView(session.Data),
		"createdAt": session.CreatedAt.Unix(),
		"updatedAt": session.UpdatedAt.Unix(),
	}
}

func goalView(goal store.Goal) map[string]any {
	return map[string]any{
		"id":           goal.ID,
		"grantId":      goal.GrantID,
		"name":         goal.Name,
		"status":       goal.Status,
		"source":       goal.Source,
		"onApprovedAr": goal.OnApprovedAR,
	}
}

func rawView(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func pathID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, codeServer, "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, codeNotFound, "Not found", nil
	}
	if errors.Is(err, engine.ErrEventIncomplete) || errors.Is(err, engine.ErrEventSealed) {
		return http.StatusUnprocessableEntity, codeValidation, err.Error(), nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, codeServer, "Server error", nil
}
