// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package logger defines the logging surface that components accept in
// their configuration. A loggo.Logger satisfies it, as does the check
// logger used by the test suites.
package logger

import (
	"github.com/juju/loggo/v2"
)

// Logger is the logging interface injected into workers and servers.
type Logger interface {
	Criticalf(string, ...any)
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
	Tracef(string, ...any)

	IsTraceEnabled() bool
}

// GetLogger returns the named module logger, rooted under "dispatch".
func GetLogger(name string) Logger {
	return loggo.GetLogger("dispatch." + name)
}

var _ Logger = loggo.Logger{}
