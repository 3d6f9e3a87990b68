package engine

import (
	"context"
	"fmt"

	"quorum/api/internal/store"
)

// ReconcileApproval recomputes the report's calculated status after an
// approver was created, updated, or restored. approverStatus is the acting
// approver's own status; a needs-action vote dominates.
//
// Errors propagate: a wrong calculated status must abort the transaction.
func (e *Engine) ReconcileApproval(ctx context.Context, db Store, kind store.ReportKind, reportID int64, approverStatus *string) error {
	return e.reconcile(ctx, db, kind, reportID, func(all []*string) string {
		return CalculateStatus(approverStatus, all)
	})
}

// ReconcileApprovalAfterRemoval recomputes from the remaining approver set
// after one was removed; there is no acting approver to dominate.
func (e *Engine) ReconcileApprovalAfterRemoval(ctx context.Context, db Store, kind store.ReportKind, reportID int64) error {
	return e.reconcile(ctx, db, kind, reportID, CalculateStatusFromApprovals)
}

func (e *Engine) reconcile(ctx context.Context, db Store, kind store.ReportKind, reportID int64, compute func([]*string) string) error {
	report, err := db.ReportByID(ctx, kind, reportID)
	if err != nil {
		return fmt.Errorf("load %s report %d: %w", kind, reportID, err)
	}
	// Approvers may exist before submission; the calculated status only
	// means anything for a submitted report.
	if report.SubmissionStatus != store.ReportStatusSubmitted {
		return nil
	}

	statuses, err := db.ApproverStatuses(ctx, kind, reportID)
	if err != nil {
		return fmt.Errorf("load approver statuses for %s report %d: %w", kind, reportID, err)
	}
	next := compute(statuses)

	previous := ""
	if report.CalculatedStatus != nil {
		previous = *report.CalculatedStatus
	}
	if next == previous {
		return nil
	}

	// The approved transition clears every approver note and the report's
	// additional notes exactly once. Notes re-added while the report stays
	// approved survive later no-op recomputes.
	if next == store.ReportStatusApproved && previous != store.ReportStatusApproved {
		if err := db.ClearApproverNotes(ctx, kind, reportID); err != nil {
			return fmt.Errorf("clear approver notes for %s report %d: %w", kind, reportID, err)
		}
		if err := db.ClearAdditionalNotes(ctx, kind, reportID); err != nil {
			return fmt.Errorf("clear additional notes for %s report %d: %w", kind, reportID, err)
		}
	}

	if err := db.SetCalculatedStatus(ctx, kind, reportID, &next); err != nil {
		return fmt.Errorf("write calculated status for %s report %d: %w", kind, reportID, err)
	}
	return nil
}
