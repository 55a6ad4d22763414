// Package logging wraps charmbracelet/log with the module-scoped child
// logger convention used throughout this simulator, mirroring the
// original's MODULE_ID_STR-prefixed SC_REPORT_* calls.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a root logger writing to stderr. When quiet is true, info
// level is suppressed (warnings and fatals still print) — an ambient CLI
// nicety, not a modeled behaviour.
func New(quiet bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if quiet {
		l.SetLevel(log.WarnLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// Module returns a child logger tagged with the owning module's name, the
// Go equivalent of the original's per-module MODULE_ID_STR prefix.
func Module(root *log.Logger, name string) *log.Logger {
	return root.With("module", name)
}
