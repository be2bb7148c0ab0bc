// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"log"
	"os"
)

// Logger is the minimal surface rawspec needs for diagnostic output during
// Open and decode. It is satisfied by *log.Logger directly, so callers that
// already standardized on the standard library's logger need no adapter.
type Logger interface {
	Printf(format string, args ...any)
}

// defaultLogger is used whenever Options.Logger is nil. It writes to stderr
// with a package-scoped prefix; anomalies are opt-in to silence via
// NopLogger rather than discarded by default.
var defaultLogger Logger = log.New(os.Stderr, "rawspec: ", log.LstdFlags)

// nopLogger discards everything; used when a caller explicitly wants silence
// rather than the default stderr logger.
type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger { return nopLogger{} }
