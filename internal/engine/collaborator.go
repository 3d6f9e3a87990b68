package engine

import (
	"context"
	"fmt"

	"quorum/api/internal/store"
)

// SyncCreator keeps exactly one Creator collaborator row on the goal,
// pointing at the event's first point of contact, or at the acting user when
// the event has none. Repeated calls with the same inputs write nothing after
// the first.
func (e *Engine) SyncCreator(ctx context.Context, db Store, goalID int64, event store.TrainingEvent, actingUserID int64) error {
	target := actingUserID
	if len(event.PocIDs) > 0 {
		target = event.PocIDs[0]
	}
	if target == 0 {
		return nil
	}

	typeID, err := db.CollaboratorTypeID(ctx, store.CollaboratorTypeCreator)
	if err != nil {
		return err
	}
	existing, err := db.GoalCollaboratorsByType(ctx, goalID, typeID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return db.CreateGoalCollaborator(ctx, store.GoalCollaborator{
			GoalID:             goalID,
			UserID:             target,
			CollaboratorTypeID: typeID,
		})
	}
	if existing[0].UserID == target {
		return nil
	}
	if err := db.UpdateGoalCollaboratorUser(ctx, existing[0].ID, target); err != nil {
		return fmt.Errorf("reassign creator on goal %d: %w", goalID, err)
	}
	return nil
}
