package store

import (
	"context"
	"database/sql"
	"fmt"
)

// reportTables maps a ReportKind onto its concrete table pair. The
// consistency engine is generic over the kind; only this file knows the
// physical layout.
type reportTables struct {
	reports   string
	approvers string
}

func tablesForKind(kind ReportKind) (reportTables, error) {
	switch kind {
	case KindActivity:
		return reportTables{reports: "activity_reports", approvers: "activity_report_approvers"}, nil
	case KindCollab:
		return reportTables{reports: "collab_reports", approvers: "collab_report_approvers"}, nil
	default:
		return reportTables{}, fmt.Errorf("unknown report kind %q", kind)
	}
}

func (s *PostgresStore) CreateReport(ctx context.Context, kind ReportKind, r Report) (Report, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Report{}, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (submission_status, calculated_status, additional_notes, context, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, t.reports)
	if err := s.q.QueryRowContext(ctx, query,
		r.SubmissionStatus, r.CalculatedStatus, r.AdditionalNotes, r.Context, payloadArg(r.Data)).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Report{}, fmt.Errorf("insert %s report: %w", kind, err)
	}
	return r, nil
}

func (s *PostgresStore) ReportByID(ctx context.Context, kind ReportKind, id int64) (Report, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Report{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, submission_status, calculated_status, additional_notes, context, data,
			created_at, updated_at
		FROM %s WHERE id = $1
	`, t.reports)
	var r Report
	var data []byte
	if err := s.q.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.SubmissionStatus, &r.CalculatedStatus, &r.AdditionalNotes, &r.Context,
		&data, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Report{}, err
	}
	r.Data = data
	return r, nil
}

func (s *PostgresStore) UpdateReport(ctx context.Context, kind ReportKind, r Report) error {
	t, err := tablesForKind(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET submission_status = $2, calculated_status = $3, additional_notes = $4,
			context = $5, data = $6, updated_at = NOW()
		WHERE id = $1
	`, t.reports)
	result, err := s.q.ExecContext(ctx, query,
		r.ID, r.SubmissionStatus, r.CalculatedStatus, r.AdditionalNotes, r.Context, payloadArg(r.Data))
	if err != nil {
		return fmt.Errorf("update %s report: %w", kind, err)
	}
	return requireRow(result, "report", r.ID)
}

func (s *PostgresStore) SetCalculatedStatus(ctx context.Context, kind ReportKind, reportID int64, status *string) error {
	t, err := tablesForKind(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET calculated_status = $2, updated_at = NOW() WHERE id = $1`, t.reports)
	result, err := s.q.ExecContext(ctx, query, reportID, status)
	if err != nil {
		return fmt.Errorf("set calculated status: %w", err)
	}
	return requireRow(result, "report", reportID)
}

func (s *PostgresStore) ClearApproverNotes(ctx context.Context, kind ReportKind, reportID int64) error {
	t, err := tablesForKind(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET note = '', updated_at = NOW() WHERE report_id = $1 AND deleted_at IS NULL`,
		t.approvers)
	if _, err := s.q.ExecContext(ctx, query, reportID); err != nil {
		return fmt.Errorf("clear approver notes: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearAdditionalNotes(ctx context.Context, kind ReportKind, reportID int64) error {
	t, err := tablesForKind(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET additional_notes = '', updated_at = NOW() WHERE id = $1`, t.reports)
	if _, err := s.q.ExecContext(ctx, query, reportID); err != nil {
		return fmt.Errorf("clear additional notes: %w", err)
	}
	return nil
}

// UpsertApprover creates the approver row for (report, user) or updates its
// status and note, un-deleting a previously removed row.
func (s *PostgresStore) UpsertApprover(ctx context.Context, kind ReportKind, a Approver) (Approver, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Approver{}, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (report_id, user_id, status, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (report_id, user_id) DO UPDATE
			SET status = EXCLUDED.status, note = EXCLUDED.note,
				deleted_at = NULL, updated_at = NOW()
		RETURNING id, report_id, user_id, status, note, deleted_at, created_at, updated_at
	`, t.approvers)
	if err := s.q.QueryRowContext(ctx, query, a.ReportID, a.UserID, a.Status, a.Note).Scan(
		&a.ID, &a.ReportID, &a.UserID, &a.Status, &a.Note,
		&a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Approver{}, fmt.Errorf("upsert approver: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ApproverByID(ctx context.Context, kind ReportKind, id int64) (Approver, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Approver{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, report_id, user_id, status, note, deleted_at, created_at, updated_at
		FROM %s WHERE id = $1
	`, t.approvers)
	var a Approver
	if err := s.q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ReportID, &a.UserID, &a.Status, &a.Note,
		&a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Approver{}, err
	}
	return a, nil
}

func (s *PostgresStore) ApproversForReport(ctx context.Context, kind ReportKind, reportID int64) ([]Approver, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, report_id, user_id, status, note, deleted_at, created_at, updated_at
		FROM %s WHERE report_id = $1 AND deleted_at IS NULL ORDER BY id
	`, t.approvers)
	rows, err := s.q.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	defer rows.Close()

	var approvers []Approver
	for rows.Next() {
		var a Approver
		if err := rows.Scan(&a.ID, &a.ReportID, &a.UserID, &a.Status, &a.Note,
			&a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan approver: %w", err)
		}
		approvers = append(approvers, a)
	}
	return approvers, rows.Err()
}

// ApproverStatuses returns the status of every live approver for the report,
// NULLs included: the calculator distinguishes pending from acted.
func (s *PostgresStore) ApproverStatuses(ctx context.Context, kind ReportKind, reportID int64) ([]*string, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT status FROM %s WHERE report_id = $1 AND deleted_at IS NULL ORDER BY id`,
		t.approvers)
	rows, err := s.q.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("list approver statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*string
	for rows.Next() {
		var status *string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan approver status: %w", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

func (s *PostgresStore) SoftDeleteApprover(ctx context.Context, kind ReportKind, id int64) (Approver, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Approver{}, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, report_id, user_id, status, note, deleted_at, created_at, updated_at
	`, t.approvers)
	var a Approver
	if err := s.q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ReportID, &a.UserID, &a.Status, &a.Note,
		&a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Approver{}, err
		}
		return Approver{}, fmt.Errorf("delete approver: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) RestoreApprover(ctx context.Context, kind ReportKind, id int64) (Approver, error) {
	t, err := tablesForKind(kind)
	if err != nil {
		return Approver{}, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
		RETURNING id, report_id, user_id, status, note, deleted_at, created_at, updated_at
	`, t.approvers)
	var a Approver
	if err := s.q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ReportID, &a.UserID, &a.Status, &a.Note,
		&a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Approver{}, err
		}
		return Approver{}, fmt.Errorf("restore approver: %w", err)
	}
	return a, nil
}
