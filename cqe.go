//go:build linux

package iouring

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// PeekCQE returns the next completion queue entry without blocking.
// Returns userData, result, flags, and whether a CQE was available.
// This is the zero-allocation path Driver.Wait's drain loop (driver.go)
// uses after its first WaitCQE to pull every completion already sitting
// in the kernel's ring.
func (r *Ring) PeekCQE() (userData uint64, res int32, flags uint32, ok bool) {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)

	if head == tail {
		return 0, 0, 0, false
	}

	idx := head & r.cqMask
	cqe := &r.cqes[idx]

	return cqe.UserData, cqe.Res, cqe.Flags, true
}

// SeenCQE advances the CQ head, marking the current CQE as consumed.
// Must be called after processing a CQE from PeekCQE.
func (r *Ring) SeenCQE() {
	head := atomic.LoadUint32(r.cqHead)
	atomic.StoreUint32(r.cqHead, head+1)
}

// WaitCQE implements the blocking half of the Completion Dispatcher's
// wait() contract (spec §4.4): blocks at most until one completion is
// available. Does NOT advance the CQ head — call SeenCQE after
// processing. unix.EBUSY and unix.EINTR are returned as-is; Driver.Wait
// treats both as a benign empty drain (spec §7's "benign interruption").
func (r *Ring) WaitCQE() (userData uint64, res int32, flags uint32, err error) {
	if r.closed.Load() {
		return 0, 0, 0, ErrRingClosed
	}

	if userData, res, flags, ok := r.PeekCQE(); ok {
		return userData, res, flags, nil
	}

	if _, err := r.SubmitAndWait(1); err != nil {
		return 0, 0, 0, err
	}

	if userData, res, flags, ok := r.PeekCQE(); ok {
		return userData, res, flags, nil
	}

	// io_uring_enter returned but no CQE is visible yet: report EAGAIN
	// rather than inventing a result. Driver.Wait does not count EAGAIN as
	// benign and returns it to its caller.
	return 0, 0, 0, unix.EAGAIN
}
