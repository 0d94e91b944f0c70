// Package domainworker defines the domain worker port and the static
// registration table that maps a domain key to its implementation.
package domainworker

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/database"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// Deps carries the shared dependencies every domain worker is built with.
type Deps struct {
	Store   database.Store
	Cfg     *config.Config
	Breaker *resilience.Breaker
}

// Worker executes finance command payloads for one domain. Implementations
// follow the shared four-phase protocol: connector gating, config
// resolution, intent dispatch, failure containment. Execute never returns
// an error; external failures degrade to a needs_hitl result.
type Worker interface {
	// Domain returns the unique domain key (e.g. "tax", "payables").
	Domain() string

	// Required lists the connectors this domain depends on.
	Required() []work.Requirement

	// Execute runs one payload for the given organization.
	Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result
}

// Factory is a constructor function that creates a new Worker instance.
type Factory func(deps Deps) Worker
