//go:build linux

package iouring

import (
	"sync/atomic"
	"unsafe"

	"github.com/halvorsen-io/uringrt/internal/sys"
)

// getSQE returns the next available SQE. Caller must hold sqLock.
//
// Per the Ring Submitter contract (spec §4.3): "if the submission queue
// is full, flush pending submissions to the kernel first". A full local
// view means SQEntries() descriptors (256 at the Driver's default ring
// size) have been prepared since the last flush; in
// the single-threaded Driver that only happens when a large burst of
// Submit calls lands between two Wait calls (spec §8's boundary scenario
// 6: submitting 257 operations without draining triggers in-line
// flushes). getSQE retries once after the flush before giving up.
func (r *Ring) getSQE() *sys.SQE {
	if sqe := r.tryGetSQE(); sqe != nil {
		return sqe
	}
	if _, err := r.flushLocked(); err != nil {
		return nil
	}
	return r.tryGetSQE()
}

func (r *Ring) tryGetSQE() *sys.SQE {
	head := atomic.LoadUint32(r.sqHead)
	tail := atomic.LoadUint32(r.sqTail) + r.sqPending
	if tail-head >= r.sqEntries {
		return nil
	}

	idx := tail & r.sqMask
	sqe := &r.sqes[idx]
	sqe.Reset()

	r.sqArray[idx] = uint32(idx)
	r.sqPending++

	return sqe
}

// PrepNop prepares a NOP operation. The Driver itself never issues one;
// tests use it as the cheapest possible round-trip through the ring.
func (r *Ring) PrepNop(userData uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_NOP)
	sqe.UserData = userData
	return nil
}

// PrepRead prepares a read operation, backing ReadOp (ops.go).
// Reads up to len(buf) bytes from fd at offset into buf.
func (r *Ring) PrepRead(fd int, buf []byte, offset uint64, userData uint64) error {
	if len(buf) == 0 {
		return nil
	}

	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_READ)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.Off = offset
	sqe.UserData = userData
	return nil
}

// PrepWrite prepares a write operation, backing WriteOp (ops.go).
// Writes len(buf) bytes from buf to fd at offset.
func (r *Ring) PrepWrite(fd int, buf []byte, offset uint64, userData uint64) error {
	if len(buf) == 0 {
		return nil
	}

	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_WRITE)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.Off = offset
	sqe.UserData = userData
	return nil
}

// PrepCancel prepares an async cancel operation, the sole fire-and-forget
// descriptor this engine issues (spec §4.3/§6): Handle.Close stamps it
// with SentinelUserData so the Completion Dispatcher discards its
// completion outright rather than looking up a slot.
// targetUserData is the user-data of the operation to cancel.
func (r *Ring) PrepCancel(targetUserData uint64, flags uint32, userData uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_ASYNC_CANCEL)
	sqe.Fd = -1
	sqe.Addr = targetUserData
	sqe.OpFlags = flags
	sqe.UserData = userData
	return nil
}

// PrepAcceptMultishot prepares a multishot accept operation, backing
// AcceptOp (ops.go). Each accepted connection generates a non-terminal
// CQE (IORING_CQE_F_MORE set); the Operation Slot buffers them as
// MultiPending until a terminal completion (e.g. from cancellation)
// arrives.
func (r *Ring) PrepAcceptMultishot(fd int, addr unsafe.Pointer, addrLen *uint32, flags uint32, userData uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_ACCEPT)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(addr))
	sqe.Off = uint64(uintptr(unsafe.Pointer(addrLen)))
	sqe.OpFlags = flags
	sqe.Ioprio = uint16(sys.IORING_ACCEPT_MULTISHOT)
	sqe.UserData = userData
	return nil
}

// PrepRecvMultishot prepares a multishot recv operation that selects its
// receive buffer from the given buffer group (IOSQE_BUFFER_SELECT),
// backing RecvOp (ops.go). This is the one opcode that actually drives a
// completion through the Buffer Pool path of the Completion Dispatcher
// (spec §4.4 step 2's "selected-buffer index" branch): each non-terminal
// CQE carries a kernel-chosen buffer index in its flags, which the
// dispatcher converts into a BorrowedBuffer.
func (r *Ring) PrepRecvMultishot(fd int, bufGroup uint16, flags int, userData uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_RECV)
	sqe.Fd = int32(fd)
	sqe.Flags = sys.IOSQE_BUFFER_SELECT
	sqe.Ioprio = sys.IORING_RECV_MULTISHOT
	sqe.SetBufGroup(bufGroup)
	sqe.OpFlags = uint32(flags)
	sqe.UserData = userData
	return nil
}

// PrepShutdown prepares a shutdown operation, backing ShutdownOp (ops.go),
// grounded directly on original_source/src/driver/shutdown.rs.
// how is SHUT_RD, SHUT_WR, or SHUT_RDWR.
func (r *Ring) PrepShutdown(fd int, how int, userData uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()

	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}

	sqe.Opcode = uint8(sys.IORING_OP_SHUTDOWN)
	sqe.Fd = int32(fd)
	sqe.Len = uint32(how)
	sqe.UserData = userData
	return nil
}
