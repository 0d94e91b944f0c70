package main

// Blank imports activate self-registering providers: one per domain
// worker, one per escalation notifier. Add new domains and channels here
// as they are implemented.

import (
	_ "github.com/ledgerline/ledgerline/internal/worker/audit"
	_ "github.com/ledgerline/ledgerline/internal/worker/cfo"
	_ "github.com/ledgerline/ledgerline/internal/worker/payables"
	_ "github.com/ledgerline/ledgerline/internal/worker/regfiling"
	_ "github.com/ledgerline/ledgerline/internal/worker/riskctl"
	_ "github.com/ledgerline/ledgerline/internal/worker/tax"

	_ "github.com/ledgerline/ledgerline/internal/adapter/discord"
	_ "github.com/ledgerline/ledgerline/internal/adapter/email"
	_ "github.com/ledgerline/ledgerline/internal/adapter/slack"
)
