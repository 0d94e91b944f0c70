package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/session"
)

const sessionColumns = `id, org_id, chat_session_ref, status, director_state, safety_state,
	metadata, current_objective, last_director_run_id, last_safety_run_id,
	created_at, updated_at, closed_at`

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	metaJSON, err := mapJSON(sess.Metadata)
	if err != nil {
		return err
	}
	if sess.Status == "" {
		sess.Status = session.StatusActive
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO orchestrator_sessions (org_id, chat_session_ref, status, director_state, safety_state, metadata, current_objective)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		sess.OrgID, sess.ChatSessionRef, string(sess.Status),
		[]byte(session.NormalizeState(sess.DirectorState)),
		[]byte(session.NormalizeState(sess.SafetyState)),
		metaJSON, sess.CurrentObjective)

	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sess.DirectorState = session.NormalizeState(sess.DirectorState)
	sess.SafetyState = session.NormalizeState(sess.SafetyState)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM orchestrator_sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrSessionNotFound, "get session %s", id)
	}
	return sess, nil
}

// UpdateSessionState applies a partial patch under a row lock, so concurrent
// patches to the same session serialize instead of clobbering each other.
func (s *Store) UpdateSessionState(ctx context.Context, id string, patch session.StateUpdate) (*session.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM orchestrator_sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrSessionNotFound, "update session %s", id)
	}

	sess.Apply(patch)

	metaJSON, err := mapJSON(sess.Metadata)
	if err != nil {
		return nil, err
	}
	err = tx.QueryRow(ctx,
		`UPDATE orchestrator_sessions
		 SET status = $2, director_state = $3, safety_state = $4, metadata = $5,
		     current_objective = $6, last_director_run_id = $7, last_safety_run_id = $8,
		     closed_at = $9, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		id, string(sess.Status), []byte(sess.DirectorState), []byte(sess.SafetyState),
		metaJSON, sess.CurrentObjective, sess.LastDirectorRunID, sess.LastSafetyRunID,
		nullTime(sess.ClosedAt),
	).Scan(&sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session update: %w", err)
	}
	return sess, nil
}

func scanSession(row scannable) (*session.Session, error) {
	var sess session.Session
	var directorState, safetyState, metaJSON []byte
	var closedAt *time.Time

	err := row.Scan(&sess.ID, &sess.OrgID, &sess.ChatSessionRef, &sess.Status,
		&directorState, &safetyState, &metaJSON, &sess.CurrentObjective,
		&sess.LastDirectorRunID, &sess.LastSafetyRunID,
		&sess.CreatedAt, &sess.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	sess.DirectorState = session.NormalizeState(json.RawMessage(directorState))
	sess.SafetyState = session.NormalizeState(json.RawMessage(safetyState))
	if err := unmarshalMap(metaJSON, &sess.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	sess.ClosedAt = timeOrZero(closedAt)
	return &sess, nil
}
