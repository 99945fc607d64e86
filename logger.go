package nettrace

import (
	"io"

	"github.com/sirupsen/logrus"
)

// log is package-level so every internal caller (Parse and its helpers)
// shares one sink; SetLogger lets an embedding application route nettrace's
// diagnostics into its own structured logging, the way the teacher wires
// a *logrus.Logger through its command tree instead of using the global
// logrus instance directly. The zero value discards output: a library
// must not default to writing to an embedding process's stderr.
var log = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SetLogger replaces the logger nettrace uses for non-fatal diagnostics.
// Parse never logs at a level above Warn: anything that affects the
// result is already in ParseResult.Errors.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	log = l
}

func logger() *logrus.Logger { return log }
