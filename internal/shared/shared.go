// package shared defines helpers used across the module: logging, ids,
// and the error taxonomy.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a [log.Logger] writing to w, defaulting to [os.Stderr].
// Timestamps and caller reporting are on; setting YOUSPOTTER_DEBUG in the
// environment lowers the level to debug.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
	if os.Getenv("YOUSPOTTER_DEBUG") != "" {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// WithLogger creates a child [log.Logger] carrying the key-value pairs on
// every entry.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] string, used for cycle ids and
// OAuth state tokens.
func GenerateID() string {
	return uuid.New().String()
}
