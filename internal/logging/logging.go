// Package logging wires up the structured logger every other package
// takes as a narrow interface. Grounded on the teacher's bracketed
// component-prefix convention (`[REPLICATION] ...` in
// internal/replication/replica.go), upgraded to logrus structured
// fields per SPEC_FULL.md §2 — the only logging library anywhere in
// the retrieved pack.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger. verbose gates Debug-level command
// tracing (session.Config.Verbose, spec.md §6); everything else is
// Info and above.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Component returns a child entry tagged with a "component" field,
// replacing the teacher's bracketed prefix convention
// (`[REPLICATION]`) with a structured field of the same name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
