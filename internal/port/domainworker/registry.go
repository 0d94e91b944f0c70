package domainworker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/work"
)

// ErrUnregisteredDomain indicates no worker is registered for a domain key.
var ErrUnregisteredDomain = errors.New("unregistered domain")

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a domain worker factory available by domain key.
// It is typically called from an init() function in the worker package.
func Register(domain string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[domain]; exists {
		panic(fmt.Sprintf("domainworker: duplicate registration for %q", domain))
	}
	factories[domain] = factory
}

// New creates a Worker for the given domain using the registered factory.
func New(domain string, deps Deps) (Worker, error) {
	mu.RLock()
	factory, ok := factories[domain]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("domain %q: %w", domain, ErrUnregisteredDomain)
	}
	return factory(deps), nil
}

// Domains returns the registered domain keys, sorted.
func Domains() []string {
	mu.RLock()
	defer mu.RUnlock()

	keys := make([]string, 0, len(factories))
	for k := range factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unregister removes a registration. Exposed for tests only.
func Unregister(domain string) {
	mu.Lock()
	defer mu.Unlock()
	delete(factories, domain)
}

// Run executes a worker with panic containment: a panicking worker yields a
// needs_hitl result instead of crashing the dispatcher.
func Run(ctx context.Context, w Worker, orgID string, p *work.Payload) (res *work.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = work.NeedsHITL(fmt.Sprintf("%s: panic: %v", w.Domain(), r),
				fmt.Sprintf("Worker %q failed unexpectedly; a human reviewer has the details.", w.Domain()))
		}
	}()
	return w.Execute(ctx, orgID, p)
}

// Gate runs the shared connector-gating phase: it loads the organization's
// stored records for the worker's required connectors and returns either the
// records (all ready) or the standard gate escalation. No external call may
// be attempted when the second return is non-nil.
func Gate(ctx context.Context, deps Deps, orgID string, p *work.Payload, required []work.Requirement) (map[string]*connector.Record, *work.Result) {
	stored := make(map[string]*connector.Record, len(required))
	for _, req := range required {
		rec, err := deps.Store.GetConnectorByName(ctx, orgID, req.Name)
		if err == nil {
			stored[req.Name] = rec
		}
		// A lookup error leaves the entry absent, which gates exactly
		// like a missing record.
	}

	if missing := work.MissingConnectors(p, stored, required); len(missing) > 0 {
		return nil, work.GateResult(missing)
	}
	return stored, nil
}
