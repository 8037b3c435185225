//go:build linux

package iouring

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error taxonomy for the operation lifecycle engine, layered on top of the
// Ring's own ErrRingClosed/ErrSQFull.
var (
	// ErrUnsupported is returned from Driver init when the kernel lacks a
	// required feature (fast-poll, registered buffer rings).
	ErrUnsupported = errors.New("uringrt: kernel does not support a required feature")

	// ErrConflict is returned when a buffer group id is already registered.
	ErrConflict = errors.New("uringrt: buffer group already registered")

	// ErrProtocolViolation marks a state-machine transition fired from an
	// impossible source state. It is a bug in the caller or the dispatcher,
	// never a runtime condition to recover from.
	ErrProtocolViolation = errors.New("uringrt: protocol violation")

	// ErrUnknownKey is returned by the Operation Table when a key does not
	// name a live slot.
	ErrUnknownKey = errors.New("uringrt: unknown operation key")
)

// OsError wraps a negative result from a kernel completion record.
type OsError struct {
	Errno unix.Errno
}

func (e *OsError) Error() string {
	return fmt.Sprintf("uringrt: completion failed: %v", e.Errno)
}

func (e *OsError) Unwrap() error {
	return e.Errno
}

// resultToError converts a raw completion result into an error, or nil on
// success. Negative results carry a kernel errno; non-negative results are
// successful byte/fd counts.
func resultToError(res int32) error {
	if res >= 0 {
		return nil
	}
	return &OsError{Errno: unix.Errno(-res)}
}

// benignWaitError reports whether err is a benign interruption of Wait()
// (EBUSY, EINTR) that should be swallowed and treated as zero completions.
func benignWaitError(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EINTR)
}
