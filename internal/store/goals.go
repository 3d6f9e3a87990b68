package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) GoalByID(ctx context.Context, id int64) (Goal, error) {
	const query = `
		SELECT id, grant_id, name, status, source, on_ar, on_approved_ar, created_at
		FROM goals WHERE id = $1
	`
	var g Goal
	if err := s.q.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.GrantID, &g.Name, &g.Status, &g.Source,
		&g.OnAR, &g.OnApprovedAR, &g.CreatedAt); err != nil {
		return Goal{}, err
	}
	return g, nil
}

// FindGoalByGrantAndName returns nil when no goal with that exact name exists
// for the grant.
func (s *PostgresStore) FindGoalByGrantAndName(ctx context.Context, grantID int64, name string) (*Goal, error) {
	const query = `
		SELECT id, grant_id, name, status, source, on_ar, on_approved_ar, created_at
		FROM goals WHERE grant_id = $1 AND name = $2
	`
	var g Goal
	err := s.q.QueryRowContext(ctx, query, grantID, name).Scan(
		&g.ID, &g.GrantID, &g.Name, &g.Status, &g.Source,
		&g.OnAR, &g.OnApprovedAR, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find goal: %w", err)
	}
	return &g, nil
}

// CreateGoal inserts the goal, or returns the existing row when another
// transaction already created the same (grant_id, name). The no-op update
// makes RETURNING yield the surviving row either way.
func (s *PostgresStore) CreateGoal(ctx context.Context, g Goal) (Goal, error) {
	const query = `
		INSERT INTO goals (grant_id, name, status, source, on_ar, on_approved_ar)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (grant_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, status, source, on_ar, on_approved_ar, created_at
	`
	if err := s.q.QueryRowContext(ctx, query,
		g.GrantID, g.Name, g.Status, g.Source, g.OnAR, g.OnApprovedAR).
		Scan(&g.ID, &g.Status, &g.Source, &g.OnAR, &g.OnApprovedAR, &g.CreatedAt); err != nil {
		return Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) RenameGoal(ctx context.Context, goalID int64, name string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE goals SET name = $2 WHERE id = $1`, goalID, name)
	if err != nil {
		return fmt.Errorf("rename goal: %w", err)
	}
	return requireRow(result, "goal", goalID)
}

func (s *PostgresStore) DeleteGoal(ctx context.Context, goalID int64) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM goal_collaborators WHERE goal_id = $1`, goalID); err != nil {
		return fmt.Errorf("delete goal collaborators: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM goals WHERE id = $1`, goalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGoalsForGrant(ctx context.Context, grantID int64) ([]Goal, error) {
	const query = `
		SELECT id, grant_id, name, status, source, on_ar, on_approved_ar, created_at
		FROM goals WHERE grant_id = $1 ORDER BY id
	`
	rows, err := s.q.QueryContext(ctx, query, grantID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.GrantID, &g.Name, &g.Status, &g.Source,
			&g.OnAR, &g.OnApprovedAR, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) EventGoalExists(ctx context.Context, eventID, sessionID, grantID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM event_goals
			WHERE event_id = $1 AND session_id = $2 AND grant_id = $3
		)
	`
	var exists bool
	if err := s.q.QueryRowContext(ctx, query, eventID, sessionID, grantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event goal: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateEventGoal(ctx context.Context, link EventGoal) error {
	const query = `
		INSERT INTO event_goals (event_id, session_id, grant_id, goal_id)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.q.ExecContext(ctx, query,
		link.EventID, link.SessionID, link.GrantID, link.GoalID); err != nil {
		return fmt.Errorf("insert event goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) EventGoalsForSession(ctx context.Context, eventID, sessionID int64) ([]EventGoal, error) {
	const query = `
		SELECT id, event_id, session_id, grant_id, goal_id
		FROM event_goals WHERE event_id = $1 AND session_id = $2 ORDER BY id
	`
	rows, err := s.q.QueryContext(ctx, query, eventID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list event goals: %w", err)
	}
	defer rows.Close()

	var links []EventGoal
	for rows.Next() {
		var link EventGoal
		if err := rows.Scan(&link.ID, &link.EventID, &link.SessionID,
			&link.GrantID, &link.GoalID); err != nil {
			return nil, fmt.Errorf("scan event goal: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) DeleteEventGoal(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM event_goals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event goal: %w", err)
	}
	return nil
}

// GoalLinkedElsewhere reports whether any other event_goals row still points
// at the goal. A linked goal must survive retraction of one session.
func (s *PostgresStore) GoalLinkedElsewhere(ctx context.Context, goalID, excludeLinkID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM event_goals WHERE goal_id = $1 AND id <> $2
		)
	`
	var linked bool
	if err := s.q.QueryRowContext(ctx, query, goalID, excludeLinkID).Scan(&linked); err != nil {
		return false, fmt.Errorf("check goal links: %w", err)
	}
	return linked, nil
}

// GoalOnApprovedReport reports whether the goal is cited by any activity
// report or flagged on_approved_ar. Either pins it against retraction.
func (s *PostgresStore) GoalOnApprovedReport(ctx context.Context, goalID int64) (bool, error) {
	const query = `
		SELECT g.on_approved_ar OR EXISTS (
			SELECT 1 FROM report_goals rg WHERE rg.goal_id = g.id
		)
		FROM goals g WHERE g.id = $1
	`
	var pinned bool
	err := s.q.QueryRowContext(ctx, query, goalID).Scan(&pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check goal usage: %w", err)
	}
	return pinned, nil
}

func (s *PostgresStore) CreateReportGoal(ctx context.Context, reportID, goalID int64) error {
	const query = `
		INSERT INTO report_goals (report_id, goal_id)
		VALUES ($1, $2)
		ON CONFLICT (report_id, goal_id) DO NOTHING
	`
	if _, err := s.q.ExecContext(ctx, query, reportID, goalID); err != nil {
		return fmt.Errorf("insert report goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) CollaboratorTypeID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM collaborator_types WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup collaborator type %q: %w", name, err)
	}
	return id, nil
}

func (s *PostgresStore) GoalCollaboratorsByType(ctx context.Context, goalID, typeID int64) ([]GoalCollaborator, error) {
	const query = `
		SELECT id, goal_id, user_id, collaborator_type_id
		FROM goal_collaborators
		WHERE goal_id = $1 AND collaborator_type_id = $2 ORDER BY id
	`
	rows, err := s.q.QueryContext(ctx, query, goalID, typeID)
	if err != nil {
		return nil, fmt.Errorf("list goal collaborators: %w", err)
	}
	defer rows.Close()

	var collaborators []GoalCollaborator
	for rows.Next() {
		var c GoalCollaborator
		if err := rows.Scan(&c.ID, &c.GoalID, &c.UserID, &c.CollaboratorTypeID); err != nil {
			return nil, fmt.Errorf("scan goal collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

func (s *PostgresStore) CreateGoalCollaborator(ctx context.Context, c GoalCollaborator) error {
	const query = `
		INSERT INTO goal_collaborators (goal_id, user_id, collaborator_type_id)
		VALUES ($1, $2, $3)
	`
	if _, err := s.q.ExecContext(ctx, query, c.GoalID, c.UserID, c.CollaboratorTypeID); err != nil {
		return fmt.Errorf("insert goal collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateGoalCollaboratorUser(ctx context.Context, id, userID int64) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE goal_collaborators SET user_id = $2 WHERE id = $1`, id, userID)
	if err != nil {
		return fmt.Errorf("update goal collaborator: %w", err)
	}
	return requireRow(result, "goal collaborator", id)
}
