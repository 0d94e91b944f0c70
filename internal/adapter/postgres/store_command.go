package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
)

const commandColumns = `id, org_id, session_id, command_type, payload, status, priority,
	issued_by, scheduled_for, started_at, completed_at, failed_at,
	result, last_error, metadata, created_at, updated_at`

// EnqueueCommand creates the command row and its job row in one transaction.
// Any storage failure surfaces as domain.ErrEnqueueFailed so callers can
// report a single enqueue error regardless of which insert broke.
func (s *Store) EnqueueCommand(ctx context.Context, req command.EnqueueRequest) (*command.EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEnqueueFailed, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %s", domain.ErrEnqueueFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	priority := req.Priority
	if priority == 0 {
		priority = command.DefaultPriority
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	metaJSON, err := mapJSON(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEnqueueFailed, err)
	}

	res := &command.EnqueueResult{SessionID: req.SessionID, Status: command.StatusQueued}

	err = tx.QueryRow(ctx,
		`INSERT INTO orchestrator_commands (org_id, session_id, command_type, payload, status, priority, issued_by, scheduled_for, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, now()), $9)
		 RETURNING id, scheduled_for`,
		req.OrgID, req.SessionID, req.CommandType, []byte(payload),
		string(command.StatusQueued), priority, req.IssuedBy, nullTime(req.ScheduledFor), metaJSON,
	).Scan(&res.CommandID, &res.ScheduledFor)
	if err != nil {
		return nil, fmt.Errorf("%w: insert command: %s", domain.ErrEnqueueFailed, err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orchestrator_jobs (org_id, command_id, worker, domain_agent, status, scheduled_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5)
		 RETURNING id`,
		req.OrgID, res.CommandID, string(req.Worker), req.DomainAgent, res.ScheduledFor,
	).Scan(&res.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: insert job: %s", domain.ErrEnqueueFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %s", domain.ErrEnqueueFailed, err)
	}
	return res, nil
}

func (s *Store) GetCommand(ctx context.Context, id string) (*command.Command, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commandColumns+` FROM orchestrator_commands WHERE id = $1`, id)

	cmd, err := scanCommand(row)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrCommandNotFound, "get command %s", id)
	}
	return cmd, nil
}

func (s *Store) ListCommandsForSession(ctx context.Context, sessionID string) ([]command.Command, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commandColumns+` FROM orchestrator_commands
		 WHERE session_id = $1 ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list commands for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var commands []command.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// UpdateCommandStatus writes a status patch. Lifecycle legality is checked
// by the service layer before it calls here; the store only rejects writes
// against a row that no longer exists.
func (s *Store) UpdateCommandStatus(ctx context.Context, id string, patch command.StatusUpdate) error {
	metaJSON, err := mapJSON(patch.Metadata)
	if err != nil {
		return err
	}
	var result any
	if len(patch.Result) > 0 {
		result = []byte(patch.Result)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE orchestrator_commands
		 SET status = $2,
		     started_at = COALESCE($3::timestamptz, started_at),
		     completed_at = COALESCE($4::timestamptz, completed_at),
		     failed_at = COALESCE($5::timestamptz, failed_at),
		     result = COALESCE($6::jsonb, result),
		     last_error = COALESCE($7::text, last_error),
		     metadata = COALESCE($8::jsonb, metadata),
		     updated_at = now()
		 WHERE id = $1`,
		id, string(patch.Status), patch.StartedAt, patch.CompletedAt, patch.FailedAt,
		result, patch.LastError, metaJSON)
	if err != nil {
		return fmt.Errorf("update command status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update command status %s: %w", id, domain.ErrCommandNotFound)
	}
	return nil
}

func scanCommand(row scannable) (*command.Command, error) {
	var cmd command.Command
	var payload, result, metaJSON []byte
	var startedAt, completedAt, failedAt *time.Time

	err := row.Scan(&cmd.ID, &cmd.OrgID, &cmd.SessionID, &cmd.CommandType, &payload,
		&cmd.Status, &cmd.Priority, &cmd.IssuedBy, &cmd.ScheduledFor,
		&startedAt, &completedAt, &failedAt, &result, &cmd.LastError, &metaJSON,
		&cmd.CreatedAt, &cmd.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cmd.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		cmd.Result = json.RawMessage(result)
	}
	if err := unmarshalMap(metaJSON, &cmd.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal command metadata: %w", err)
	}
	cmd.StartedAt = timeOrZero(startedAt)
	cmd.CompletedAt = timeOrZero(completedAt)
	cmd.FailedAt = timeOrZero(failedAt)
	return &cmd, nil
}
