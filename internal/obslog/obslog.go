// Package obslog wraps zerolog with the small set of fields every log line
// in this service carries: the responder HCID a pipeline is talking to, and
// the transaction it's running. Spec §1 treats logging itself as an
// out-of-scope external collaborator; this wrapper is the ambient
// structured-logging layer every component writes through regardless.
package obslog

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger, console-formatted for local runs and
// plain JSON otherwise.
func New(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// WithResponder returns a child logger scoped to one pipeline's responder.
func WithResponder(log zerolog.Logger, hcid, name string) zerolog.Logger {
	return log.With().Str("responder_hcid", hcid).Str("responder_name", name).Logger()
}

// WithTransaction returns a child logger scoped to one transaction path.
func WithTransaction(log zerolog.Logger, path string) zerolog.Logger {
	return log.With().Str("transaction", path).Logger()
}
