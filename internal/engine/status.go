package engine

import "quorum/api/internal/store"

// CalculateStatus maps one approver's own status plus the full approver set
// onto the report's calculated status. A needs-action vote from the acting
// approver dominates without inspecting the rest.
func CalculateStatus(current *string, all []*string) string {
	if current != nil && *current == store.ApproverStatusNeedsAction {
		return store.ReportStatusNeedsAction
	}
	return CalculateStatusFromApprovals(all)
}

// CalculateStatusFromApprovals derives the report status from the approver
// set alone. Pure and total: every list, including the empty one, has a
// defined result.
//
// A single needs-action vote dominates, even when other approvers are still
// pending. An empty set or any pending approver otherwise keeps the report
// submitted, and only a unanimous approved set approves it.
func CalculateStatusFromApprovals(all []*string) string {
	for _, status := range all {
		if status != nil && *status == store.ApproverStatusNeedsAction {
			return store.ReportStatusNeedsAction
		}
	}
	if len(all) == 0 {
		return store.ReportStatusSubmitted
	}
	for _, status := range all {
		if status == nil {
			return store.ReportStatusSubmitted
		}
	}
	for _, status := range all {
		if *status != store.ApproverStatusApproved {
			return store.ReportStatusSubmitted
		}
	}
	return store.ReportStatusApproved
}
