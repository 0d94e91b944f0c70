// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/session"
)

// Store is the port interface for database operations. All reads and writes
// are org-scoped; the storage engine must provide atomic create-with-child
// (command+job), upsert-by-natural-key, and filtered update.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	UpdateSessionState(ctx context.Context, id string, patch session.StateUpdate) (*session.Session, error)

	// Commands
	EnqueueCommand(ctx context.Context, req command.EnqueueRequest) (*command.EnqueueResult, error)
	GetCommand(ctx context.Context, id string) (*command.Command, error)
	ListCommandsForSession(ctx context.Context, sessionID string) ([]command.Command, error)
	UpdateCommandStatus(ctx context.Context, id string, patch command.StatusUpdate) error

	// Jobs
	GetEarliestJobForCommand(ctx context.Context, commandID string) (*job.Job, error)
	ListPendingJobs(ctx context.Context, orgID string, worker job.WorkerKind, limit int) ([]job.Job, error)
	ClaimJob(ctx context.Context, jobID string) (*job.Job, error)
	UpdateJobStatus(ctx context.Context, id string, patch job.StatusUpdate) error

	// Connectors
	UpsertConnector(ctx context.Context, req connector.RegisterRequest) (string, error)
	GetConnectorByName(ctx context.Context, orgID, name string) (*connector.Record, error)
	ListOrgConnectors(ctx context.Context, orgID string) ([]connector.Record, error)

	// Domain records (upsert-by-natural-key, one table per worker)
	UpsertTaxFiling(ctx context.Context, f *records.TaxFiling) (*records.TaxFiling, error)
	UpsertAPInvoice(ctx context.Context, inv *records.APInvoice) (*records.APInvoice, error)
	UpsertRiskEntry(ctx context.Context, r *records.RiskEntry) (*records.RiskEntry, error)
	UpsertAuditWalkthrough(ctx context.Context, w *records.AuditWalkthrough) (*records.AuditWalkthrough, error)
	UpsertBoardPack(ctx context.Context, b *records.BoardPack) (*records.BoardPack, error)
	UpsertRegulatoryFiling(ctx context.Context, f *records.RegulatoryFiling) (*records.RegulatoryFiling, error)
}
