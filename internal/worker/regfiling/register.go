package regfiling

import "github.com/ledgerline/ledgerline/internal/port/domainworker"

func init() {
	domainworker.Register(Domain, New)
}
