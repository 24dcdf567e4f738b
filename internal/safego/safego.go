// Package safego launches background goroutines that must not be able to
// crash the service. The entitlement server runs several for the lifetime of
// the process (the invitation stats refresher, the policy file watcher), and
// a panic in any of them would otherwise take the API down with it.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine, recovering and logging any panic with its
// stack. The goroutine dies quietly after a panic, so long-running loops
// should be structured to be restartable rather than assumed immortal.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
