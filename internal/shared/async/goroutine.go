// Package async provides panic-safe goroutine helpers used by every
// background task in the broker (foreground poll, timers, workflow
// pipeline) so a single panicking task cannot take down the process.
package async

import (
	"fmt"
)

// PanicLogger is the minimal logging surface Go/Recover need. The real
// logger (internal/shared/logging) satisfies this.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a new goroutine, recovering any panic and logging it
// under the given name instead of crashing the process.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is meant to be deferred directly inside a goroutine body when
// the caller wants recovery without the Go wrapper managing the
// goroutine itself.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error("goroutine panic [%s]: %v", name, r)
		} else {
			fmt.Printf("goroutine panic [%s]: %v\n", name, r)
		}
	}
}
