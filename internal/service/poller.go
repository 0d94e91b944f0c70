package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/job"
)

// PollerService runs one polling loop per worker kind, sweeping due pending
// jobs into the dispatcher. The loops consume only facade operations, the
// same surface an external poller would use; the claim compare-and-set makes
// concurrent pollers safe, so losing a claim race is routine, not an error.
type PollerService struct {
	orc      *OrchestratorService
	dispatch *DispatchService
	cfg      config.Poller
}

// NewPollerService creates a PollerService.
func NewPollerService(orc *OrchestratorService, dispatch *DispatchService, cfg config.Poller) *PollerService {
	return &PollerService{orc: orc, dispatch: dispatch, cfg: cfg}
}

// Run blocks until ctx is canceled, polling every configured interval.
func (s *PollerService) Run(ctx context.Context) error {
	kinds := []job.WorkerKind{job.WorkerDirector, job.WorkerSafety, job.WorkerDomain}

	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error {
			return s.loop(ctx, kind)
		})
	}
	return g.Wait()
}

func (s *PollerService) loop(ctx context.Context, kind job.WorkerKind) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.Info("poller started", "worker", kind, "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", "worker", kind)
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx, kind)
		}
	}
}

func (s *PollerService) sweep(ctx context.Context, kind job.WorkerKind) {
	envs, err := s.orc.ListPendingEnvelopes(ctx, "", kind, s.cfg.BatchLimit)
	if err != nil {
		slog.Error("list pending envelopes failed", "worker", kind, "error", err)
		return
	}

	for _, env := range envs {
		if err := s.dispatch.Dispatch(ctx, env.Job.ID); err != nil {
			if errors.Is(err, domain.ErrJobClaimConflict) {
				slog.Debug("job claimed elsewhere", "job_id", env.Job.ID)
				continue
			}
			slog.Error("dispatch failed", "job_id", env.Job.ID, "worker", kind, "error", err)
		}
	}
}
