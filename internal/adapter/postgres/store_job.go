package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/job"
)

const jobColumns = `id, org_id, command_id, worker, domain_agent, status, attempts,
	scheduled_at, started_at, completed_at, failed_at, last_error, metadata,
	created_at, updated_at`

// GetEarliestJobForCommand returns the oldest job for a command. Jobs are
// created 1:1 with commands, but if duplicates ever exist the earliest row
// is the authoritative one.
func (s *Store) GetEarliestJobForCommand(ctx context.Context, commandID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM orchestrator_jobs
		 WHERE command_id = $1 ORDER BY created_at ASC LIMIT 1`, commandID)

	j, err := scanJob(row)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrJobNotFound, "get job for command %s", commandID)
	}
	return j, nil
}

// ListPendingJobs returns due pending jobs for one worker kind. An empty
// orgID means all orgs, which is what the in-process pollers use.
func (s *Store) ListPendingJobs(ctx context.Context, orgID string, worker job.WorkerKind, limit int) ([]job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM orchestrator_jobs
		 WHERE ($1::text = '' OR org_id::text = $1) AND worker = $2 AND status = 'pending' AND scheduled_at <= now()
		 ORDER BY scheduled_at ASC LIMIT $3`,
		orgID, string(worker), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending %s jobs: %w", worker, err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ClaimJob atomically moves a pending job to running. The compare-and-set
// on status guarantees at most one claimant wins; a second claim of the
// same job returns domain.ErrJobClaimConflict.
func (s *Store) ClaimJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE orchestrator_jobs
		 SET status = 'running', attempts = attempts + 1, started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+jobColumns, jobID)

	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim job %s: %w", jobID, err)
	}

	// Lost the race, or no such job. Distinguish for the caller.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM orchestrator_jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrJobNotFound, "claim job %s", jobID)
	}
	return nil, fmt.Errorf("claim job %s (status %s): %w", jobID, status, domain.ErrJobClaimConflict)
}

// UpdateJobStatus writes a status patch after checking the transition is
// legal against the stored row.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, patch job.StatusUpdate) error {
	metaJSON, err := mapJSON(patch.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var current job.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM orchestrator_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		return wrapSentinel(err, domain.ErrJobNotFound, "update job status %s", id)
	}
	if !current.CanTransition(patch.Status) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, current, patch.Status, domain.ErrIllegalTransition)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orchestrator_jobs
		 SET status = $2,
		     started_at = COALESCE($3::timestamptz, started_at),
		     completed_at = COALESCE($4::timestamptz, completed_at),
		     failed_at = COALESCE($5::timestamptz, failed_at),
		     last_error = COALESCE($6::text, last_error),
		     metadata = COALESCE($7::jsonb, metadata),
		     updated_at = now()
		 WHERE id = $1`,
		id, string(patch.Status), patch.StartedAt, patch.CompletedAt, patch.FailedAt,
		patch.LastError, metaJSON)
	if err != nil {
		return fmt.Errorf("update job status %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

func scanJob(row scannable) (*job.Job, error) {
	var j job.Job
	var metaJSON []byte
	var startedAt, completedAt, failedAt *time.Time

	err := row.Scan(&j.ID, &j.OrgID, &j.CommandID, &j.Worker, &j.DomainAgent,
		&j.Status, &j.Attempts, &j.ScheduledAt, &startedAt, &completedAt, &failedAt,
		&j.LastError, &metaJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(metaJSON, &j.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal job metadata: %w", err)
	}
	j.StartedAt = timeOrZero(startedAt)
	j.CompletedAt = timeOrZero(completedAt)
	j.FailedAt = timeOrZero(failedAt)
	return &j, nil
}
