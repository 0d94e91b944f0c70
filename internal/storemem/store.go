// Package storemem provides an in-memory database.Store used by unit tests
// and local experiments. It mirrors the postgres store's semantics: atomic
// enqueue, compare-and-set job claims, and upsert-by-natural-key records.
package storemem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/session"
)

// Store is an in-memory implementation of database.Store.
type Store struct {
	mu       sync.Mutex
	nextID   int
	sessions map[string]*session.Session
	commands map[string]*command.Command
	jobs     map[string]*job.Job
	conns    map[string]*connector.Record // keyed org/name

	TaxFilings         map[string]*records.TaxFiling
	APInvoices         map[string]*records.APInvoice
	RiskEntries        map[string]*records.RiskEntry
	AuditWalkthroughs  map[string]*records.AuditWalkthrough
	BoardPacks         map[string]*records.BoardPack
	RegulatoryFilings  map[string]*records.RegulatoryFiling
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:          make(map[string]*session.Session),
		commands:          make(map[string]*command.Command),
		jobs:              make(map[string]*job.Job),
		conns:             make(map[string]*connector.Record),
		TaxFilings:        make(map[string]*records.TaxFiling),
		APInvoices:        make(map[string]*records.APInvoice),
		RiskEntries:       make(map[string]*records.RiskEntry),
		AuditWalkthroughs: make(map[string]*records.AuditWalkthrough),
		BoardPacks:        make(map[string]*records.BoardPack),
		RegulatoryFilings: make(map[string]*records.RegulatoryFiling),
	}
}

func (s *Store) id(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.id("sess")
	}
	if sess.Status == "" {
		sess.Status = session.StatusActive
	}
	sess.DirectorState = session.NormalizeState(sess.DirectorState)
	sess.SafetyState = session.NormalizeState(sess.SafetyState)
	now := time.Now().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrSessionNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) UpdateSessionState(_ context.Context, id string, patch session.StateUpdate) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("update session %s: %w", id, domain.ErrSessionNotFound)
	}
	sess.Apply(patch)
	sess.UpdatedAt = time.Now().UTC()
	cp := *sess
	return &cp, nil
}

// RemoveSession drops a session row, leaving its commands and jobs behind.
// Tests use it to stage referential breakage that the SQL store can reach
// through out-of-band deletes.
func (s *Store) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// --- Commands ---

func (s *Store) EnqueueCommand(_ context.Context, req command.EnqueueRequest) (*command.EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEnqueueFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	scheduled := req.ScheduledFor
	if scheduled.IsZero() {
		scheduled = now
	}
	priority := req.Priority
	if priority == 0 {
		priority = command.DefaultPriority
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	cmd := &command.Command{
		ID:           s.id("cmd"),
		OrgID:        req.OrgID,
		SessionID:    req.SessionID,
		CommandType:  req.CommandType,
		Payload:      payload,
		Status:       command.StatusQueued,
		Priority:     priority,
		IssuedBy:     req.IssuedBy,
		ScheduledFor: scheduled,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.commands[cmd.ID] = cmd

	j := &job.Job{
		ID:          s.id("job"),
		OrgID:       req.OrgID,
		CommandID:   cmd.ID,
		Worker:      req.Worker,
		DomainAgent: req.DomainAgent,
		Status:      job.StatusPending,
		ScheduledAt: scheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[j.ID] = j

	return &command.EnqueueResult{
		CommandID:    cmd.ID,
		JobID:        j.ID,
		SessionID:    req.SessionID,
		Status:       command.StatusQueued,
		ScheduledFor: scheduled,
	}, nil
}

func (s *Store) GetCommand(_ context.Context, id string) (*command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.commands[id]
	if !ok {
		return nil, fmt.Errorf("get command %s: %w", id, domain.ErrCommandNotFound)
	}
	cp := *cmd
	return &cp, nil
}

func (s *Store) ListCommandsForSession(_ context.Context, sessionID string) ([]command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []command.Command
	for _, cmd := range s.commands {
		if cmd.SessionID == sessionID {
			out = append(out, *cmd)
		}
	}
	// Newest first, mirroring the created_at DESC order of the SQL store.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateCommandStatus(_ context.Context, id string, patch command.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.commands[id]
	if !ok {
		return fmt.Errorf("update command %s: %w", id, domain.ErrCommandNotFound)
	}
	cmd.Status = patch.Status
	if patch.StartedAt != nil {
		cmd.StartedAt = *patch.StartedAt
	}
	if patch.CompletedAt != nil {
		cmd.CompletedAt = *patch.CompletedAt
	}
	if patch.FailedAt != nil {
		cmd.FailedAt = *patch.FailedAt
	}
	if len(patch.Result) > 0 {
		cmd.Result = patch.Result
	}
	if patch.LastError != nil {
		cmd.LastError = *patch.LastError
	}
	if patch.Metadata != nil {
		cmd.Metadata = patch.Metadata
	}
	cmd.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Jobs ---

func (s *Store) GetEarliestJobForCommand(_ context.Context, commandID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest *job.Job
	for _, j := range s.jobs {
		if j.CommandID != commandID {
			continue
		}
		if earliest == nil || j.CreatedAt.Before(earliest.CreatedAt) || (j.CreatedAt.Equal(earliest.CreatedAt) && j.ID < earliest.ID) {
			earliest = j
		}
	}
	if earliest == nil {
		return nil, fmt.Errorf("job for command %s: %w", commandID, domain.ErrJobNotFound)
	}
	cp := *earliest
	return &cp, nil
}

func (s *Store) ListPendingJobs(_ context.Context, orgID string, worker job.WorkerKind, limit int) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []job.Job
	for _, j := range s.jobs {
		if j.Status != job.StatusPending || j.Worker != worker {
			continue
		}
		if orgID != "" && j.OrgID != orgID {
			continue
		}
		if j.ScheduledAt.After(now) {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ClaimJob(_ context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("claim job %s: %w", jobID, domain.ErrJobNotFound)
	}
	if j.Status != job.StatusPending {
		return nil, fmt.Errorf("claim job %s (status %s): %w", jobID, j.Status, domain.ErrJobClaimConflict)
	}
	j.Status = job.StatusRunning
	j.Attempts++
	j.StartedAt = time.Now().UTC()
	j.UpdatedAt = j.StartedAt
	cp := *j
	return &cp, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id string, patch job.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, domain.ErrJobNotFound)
	}
	if !j.Status.CanTransition(patch.Status) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, j.Status, patch.Status, domain.ErrIllegalTransition)
	}
	j.Status = patch.Status
	if patch.StartedAt != nil {
		j.StartedAt = *patch.StartedAt
	}
	if patch.CompletedAt != nil {
		j.CompletedAt = *patch.CompletedAt
	}
	if patch.FailedAt != nil {
		j.FailedAt = *patch.FailedAt
	}
	if patch.LastError != nil {
		j.LastError = *patch.LastError
	}
	if patch.Metadata != nil {
		j.Metadata = patch.Metadata
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Connectors ---

func connKey(orgID, name string) string { return orgID + "/" + name }

func (s *Store) UpsertConnector(_ context.Context, req connector.RegisterRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := connKey(req.OrgID, req.Name)
	status := req.Status
	if status == "" {
		status = connector.StatusPending
	}

	if rec, ok := s.conns[key]; ok {
		rec.Type = req.Type
		rec.Status = status
		rec.Config = req.Config
		if req.Metadata != nil {
			rec.Metadata = req.Metadata
		}
		rec.UpdatedAt = now
		return rec.ID, nil
	}

	rec := &connector.Record{
		ID:        s.id("conn"),
		OrgID:     req.OrgID,
		Type:      req.Type,
		Name:      req.Name,
		Status:    status,
		Config:    req.Config,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conns[key] = rec
	return rec.ID, nil
}

func (s *Store) GetConnectorByName(_ context.Context, orgID, name string) (*connector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conns[connKey(orgID, name)]
	if !ok {
		return nil, fmt.Errorf("get connector %s/%s: %w", orgID, name, domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListOrgConnectors(_ context.Context, orgID string) ([]connector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []connector.Record
	for _, rec := range s.conns {
		if rec.OrgID == orgID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- Domain records ---

func (s *Store) UpsertTaxFiling(_ context.Context, f *records.TaxFiling) (*records.TaxFiling, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.OrgID + "/" + f.Jurisdiction + "/" + f.Period
	cp := *f
	if prev, ok := s.TaxFilings[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("taxf"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.TaxFilings[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpsertAPInvoice(_ context.Context, inv *records.APInvoice) (*records.APInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.OrgID + "/" + inv.Vendor + "/" + inv.InvoiceNumber
	cp := *inv
	if prev, ok := s.APInvoices[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("apinv"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.APInvoices[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpsertRiskEntry(_ context.Context, r *records.RiskEntry) (*records.RiskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.OrgID + "/" + r.RiskRef
	cp := *r
	if prev, ok := s.RiskEntries[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("risk"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.RiskEntries[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpsertAuditWalkthrough(_ context.Context, w *records.AuditWalkthrough) (*records.AuditWalkthrough, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := w.OrgID + "/" + w.Engagement + "/" + w.Process
	cp := *w
	if prev, ok := s.AuditWalkthroughs[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("walk"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.AuditWalkthroughs[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpsertBoardPack(_ context.Context, b *records.BoardPack) (*records.BoardPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := b.OrgID + "/" + b.Period
	cp := *b
	if prev, ok := s.BoardPacks[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("pack"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.BoardPacks[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpsertRegulatoryFiling(_ context.Context, f *records.RegulatoryFiling) (*records.RegulatoryFiling, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.OrgID + "/" + f.Regulator + "/" + f.Period
	cp := *f
	if prev, ok := s.RegulatoryFilings[key]; ok {
		cp.ID, cp.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		cp.ID, cp.CreatedAt = s.id("regf"), time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.RegulatoryFilings[key] = &cp
	out := cp
	return &out, nil
}
