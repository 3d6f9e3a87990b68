package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same query code
// serves pooled and transactional access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// DB exposes the underlying pool for components that run their own queries
// (search fallback).
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithTx returns a store whose queries run on the given transaction.
func (s *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: s.db, q: tx}
}

// InTx opens a transaction, hands the callback a tx-bound store, and commits
// when the callback returns nil. Any error rolls the whole transaction back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(s.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUser(ctx context.Context, displayName, email string) (User, error) {
	const findUser = `SELECT id, display_name, email, created_at FROM users WHERE email = $1`
	var user User
	err := s.q.QueryRowContext(ctx, findUser, email).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	const insertUser = `
		INSERT INTO users (display_name, email)
		VALUES ($1, $2)
		RETURNING id, display_name, email, created_at
	`
	if err := s.q.QueryRowContext(ctx, insertUser, displayName, email).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.q.QueryRowContext(ctx,
		`SELECT id, display_name, email, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev TrainingEvent) (TrainingEvent, error) {
	const query = `
		INSERT INTO training_events (owner_id, region_id, collaborator_ids, poc_ids, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	if err := s.q.QueryRowContext(ctx, query,
		ev.OwnerID, ev.RegionID, ev.CollaboratorIDs, ev.PocIDs, payloadArg(ev.Data)).
		Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return TrainingEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) EventByID(ctx context.Context, id int64) (TrainingEvent, error) {
	const query = `
		SELECT id, owner_id, region_id, collaborator_ids, poc_ids, data, created_at, updated_at
		FROM training_events WHERE id = $1
	`
	var ev TrainingEvent
	var data []byte
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.OwnerID, &ev.RegionID, &ev.CollaboratorIDs, &ev.PocIDs,
		&data, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return TrainingEvent{}, err
	}
	ev.Data = data
	return ev, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, ev TrainingEvent) error {
	const query = `
		UPDATE training_events
		SET owner_id = $2, region_id = $3, collaborator_ids = $4, poc_ids = $5,
			data = $6, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.q.ExecContext(ctx, query,
		ev.ID, ev.OwnerID, ev.RegionID, ev.CollaboratorIDs, ev.PocIDs, payloadArg(ev.Data))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(result, "event", ev.ID)
}

func (s *PostgresStore) UpdateEventData(ctx context.Context, id int64, data json.RawMessage) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE training_events SET data = $2, updated_at = NOW() WHERE id = $1`,
		id, payloadArg(data))
	if err != nil {
		return fmt.Errorf("update event data: %w", err)
	}
	return requireRow(result, "event", id)
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess TrainingSession) (TrainingSession, error) {
	const query = `
		INSERT INTO training_sessions (event_id, data)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`
	if err := s.q.QueryRowContext(ctx, query, sess.EventID, payloadArg(sess.Data)).
		Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return TrainingSession{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) SessionByID(ctx context.Context, id int64) (TrainingSession, error) {
	var sess TrainingSession
	var data []byte
	err := s.q.QueryRowContext(ctx,
		`SELECT id, event_id, data, created_at, updated_at FROM training_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.EventID, &data, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return TrainingSession{}, err
	}
	sess.Data = data
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess TrainingSession) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE training_sessions SET data = $2, updated_at = NOW() WHERE id = $1`,
		sess.ID, payloadArg(sess.Data))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRow(result, "session", sess.ID)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM training_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) SessionsForEvent(ctx context.Context, eventID int64) ([]TrainingSession, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, event_id, data, created_at, updated_at
		 FROM training_sessions WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []TrainingSession
	for rows.Next() {
		var sess TrainingSession
		var data []byte
		if err := rows.Scan(&sess.ID, &sess.EventID, &data, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Data = data
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// payloadArg normalizes an opaque payload for a JSONB column; NULL payloads
// are stored as empty objects.
func payloadArg(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	return []byte(data)
}

func requireRow(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, sql.ErrNoRows)
	}
	return nil
}
