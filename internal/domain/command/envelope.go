package command

import (
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/session"
)

// Envelope is the joined {command, session, job} triple assembled before
// planning, safety review, or execution. Envelope assembly fails closed:
// a missing session or job is an error, never a partial envelope.
type Envelope struct {
	Command *Command         `json:"command"`
	Session *session.Session `json:"session"`
	Job     *job.Job         `json:"job"`
}
