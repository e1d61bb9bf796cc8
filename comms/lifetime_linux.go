//go:build linux

package comms

import "golang.org/x/sys/unix"

// SetParentDeathSignal arranges for the calling (secondary/runner)
// process to receive SIGKILL when its parent dies, so a crashed primary
// can't leave an orphaned runner behind (§4.2 "Lifetime"). Must be called
// from the runner process itself at startup, before the parent might
// exit.
func SetParentDeathSignal() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0)
}
