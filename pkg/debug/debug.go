// Package debug provides opt-in trace output for tree builds.
//
// Tracing is switched on with the SLIDETREE_DEBUG environment variable:
//
//	SLIDETREE_DEBUG=1 slidetree photos.txt
//
// When off (the default) every function returns immediately.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  zerolog.Logger
)

func init() {
	logger = newLogger(os.Stderr)
	enabled = os.Getenv("SLIDETREE_DEBUG") != ""
}

func newLogger(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000000", NoColor: true}
	return zerolog.New(cw).With().Timestamp().Str("component", "debug").Logger()
}

// Enabled reports whether tracing is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled switches tracing on or off.
func SetEnabled(e bool) {
	mu.Lock()
	enabled = e
	mu.Unlock()
}

// SetOutput redirects trace output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w)
	mu.Unlock()
}

func current() (zerolog.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return logger, enabled
}

// Log writes a printf-style trace line.
func Log(format string, args ...any) {
	l, on := current()
	if !on {
		return
	}
	l.Debug().Msgf(format, args...)
}

// LogTiming records how long a named step took.
func LogTiming(name string, d time.Duration) {
	l, on := current()
	if !on {
		return
	}
	l.Debug().Dur("took", d).Msg(name)
}

// LogEnterExit traces entry and exit of a function:
//
//	defer debug.LogEnterExit("merge")()
func LogEnterExit(name string) func() {
	l, on := current()
	if !on {
		return func() {}
	}
	l.Debug().Msg("-> " + name)
	start := time.Now()
	return func() {
		l.Debug().Dur("took", time.Since(start)).Msg("<- " + name)
	}
}

// Section writes a header line to group related output.
func Section(name string) {
	l, on := current()
	if !on {
		return
	}
	l.Debug().Msgf("=== %s ===", name)
}

// Dump writes a value with its type.
func Dump(name string, v any) {
	l, on := current()
	if !on {
		return
	}
	l.Debug().Msgf("%s: %T = %+v", name, v, v)
}

// Assert panics when cond is false. Only active while tracing.
func Assert(cond bool, msg string) {
	l, on := current()
	if !on || cond {
		return
	}
	l.Error().Msg("assertion failed: " + msg)
	panic(fmt.Sprintf("debug assertion failed: %s", msg))
}

// AssertNoError panics when err is non-nil. Only active while tracing.
func AssertNoError(err error, context string) {
	l, on := current()
	if !on || err == nil {
		return
	}
	l.Error().Err(err).Msg("assertion failed: " + context)
	panic(fmt.Sprintf("debug assertion failed: %s: %v", context, err))
}
