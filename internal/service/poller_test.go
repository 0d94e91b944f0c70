package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/job"
)

func TestPollerSweepsDueJobs(t *testing.T) {
	h := newHarness(t, "not a plan", approvedReview)
	sessID := h.newSession(t, "Close the quarter")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "director.plan",
		Worker:      job.WorkerDirector,
	})

	poller := NewPollerService(h.orc, h.dispatch, config.Poller{
		Enabled:    true,
		Interval:   5 * time.Millisecond,
		BatchLimit: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		cmd := h.command(t, res.CommandID)
		if cmd.Status.IsTerminal() {
			if cmd.Status != command.StatusFailed {
				t.Errorf("command status = %s, want failed", cmd.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never dispatched the due job")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestPollerIgnoresFutureJobs(t *testing.T) {
	h := newHarness(t, "not a plan", approvedReview)
	sessID := h.newSession(t, "Close the quarter")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:        testOrg,
		SessionID:    sessID,
		CommandType:  "director.plan",
		Worker:       job.WorkerDirector,
		ScheduledFor: time.Now().Add(time.Hour),
	})

	jobs, err := h.store.ListPendingJobs(context.Background(), testOrg, job.WorkerDirector, 10)
	if err != nil {
		t.Fatalf("list pending jobs: %v", err)
	}
	for _, j := range jobs {
		if j.ID == res.JobID {
			t.Fatal("future-scheduled job is already due")
		}
	}
}
