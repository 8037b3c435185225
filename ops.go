//go:build linux

package iouring

// Package-level operation wrappers.
//
// spec.md puts per-opcode wrappers (accept/connect/read/write/shutdown/
// timeout) out of scope as external collaborators driven through the
// core's Submit/Payload contract. This file supplies small, testable
// reference implementations of exactly the opcodes original_source shows
// being driven through the engine (read.rs/write.rs per the driver module
// list, shutdown.rs, accept.rs via multishot) so the engine has a
// runnable, testable example of that contract end to end. They are not a
// replacement for a real socket/file layer.

// ReadOp reads into buf at offset and yields the byte count, grounded on
// the read.rs driver module referenced by original_source/src/driver/mod.rs.
type ReadOp struct {
	NoopUpdate
	Fd     int
	Buf    []byte
	Offset uint64
}

// Complete returns the byte count from the terminal completion. Callers
// check the Handle's error before trusting a negative or partial count.
func (r *ReadOp) Complete(rec CompletionRecord) int {
	if rec.Res < 0 {
		return 0
	}
	return int(rec.Res)
}

// Read submits a read operation and returns its Handle.
func Read(d *Driver, fd int, buf []byte, offset uint64) (*Handle[int], error) {
	op := &ReadOp{Fd: fd, Buf: buf, Offset: offset}
	return Submit[int](d, op, func(userData uint64) error {
		return d.ring.PrepRead(fd, buf, offset, userData)
	})
}

// WriteOp writes buf at offset and yields the byte count, grounded on the
// write.rs driver module.
type WriteOp struct {
	NoopUpdate
	Fd     int
	Buf    []byte
	Offset uint64
}

// Complete returns the byte count from the terminal completion.
func (w *WriteOp) Complete(rec CompletionRecord) int {
	if rec.Res < 0 {
		return 0
	}
	return int(rec.Res)
}

// Write submits a write operation and returns its Handle.
func Write(d *Driver, fd int, buf []byte, offset uint64) (*Handle[int], error) {
	op := &WriteOp{Fd: fd, Buf: buf, Offset: offset}
	return Submit[int](d, op, func(userData uint64) error {
		return d.ring.PrepWrite(fd, buf, offset, userData)
	})
}

// ShutdownOp shuts a socket's read and/or write side down, grounded
// directly on original_source/src/driver/shutdown.rs's Action<Shutdown>.
type ShutdownOp struct {
	NoopUpdate
	Fd  int
	How int
}

// Complete returns nothing; a non-nil error from the Handle's Poll is the
// only observable outcome, matching poll_shutdown's io::Result<()>.
func (s *ShutdownOp) Complete(CompletionRecord) struct{} {
	return struct{}{}
}

// Shutdown submits a shutdown operation and returns its Handle.
func Shutdown(d *Driver, fd int, how int) (*Handle[struct{}], error) {
	op := &ShutdownOp{Fd: fd, How: how}
	return Submit[struct{}](d, op, func(userData uint64) error {
		return d.ring.PrepShutdown(fd, how, userData)
	})
}

// AcceptOp drives a multishot accept: each non-terminal completion
// reports one accepted connection fd (accumulated via Update); the
// terminal completion (produced by cancelling the multishot op, or the
// kernel ending it) yields the accumulated fds.
type AcceptOp struct {
	Fd  int
	fds []int
}

// Update accumulates one accepted connection fd per non-terminal
// completion.
func (a *AcceptOp) Update(rec CompletionRecord) {
	if rec.Res >= 0 {
		a.fds = append(a.fds, int(rec.Res))
	}
}

// Complete returns every fd accepted over the lifetime of the multishot
// operation.
func (a *AcceptOp) Complete(CompletionRecord) []int {
	return a.fds
}

// AcceptMultishot submits a multishot accept on a listening fd and
// returns its Handle. Each Poll surfaces newly accepted fds via the
// payload's accumulation; the final Poll (after cancellation) returns the
// full list.
func AcceptMultishot(d *Driver, listenFd int) (*Handle[[]int], error) {
	op := &AcceptOp{Fd: listenFd}
	return Submit[[]int](d, op, func(userData uint64) error {
		return d.ring.PrepAcceptMultishot(listenFd, nil, nil, 0, userData)
	})
}

// RecvOp drives a multishot recv that selects its buffer from the Buffer
// Pool (spec §3's Buffer Pool, §4.4 step 2): each non-terminal completion
// carries a kernel-chosen buffer holding the received bytes, borrowed from
// the pool for the caller and accumulated until the terminal completion.
type RecvOp struct {
	Fd      int
	batches []*BorrowedBuffer
}

// Update takes ownership of the buffer the Completion Dispatcher borrowed
// for this non-terminal completion.
func (r *RecvOp) Update(rec CompletionRecord) {
	if rec.Res >= 0 && rec.Buffer != nil {
		r.batches = append(r.batches, rec.Buffer)
	}
}

// Complete returns every buffer borrowed over the lifetime of the
// multishot operation. Callers must Close each one once done reading.
func (r *RecvOp) Complete(CompletionRecord) []*BorrowedBuffer {
	return r.batches
}

// RecvMultishot submits a multishot recv on fd, selecting buffers from
// the Driver's registered buffer group, and returns its Handle.
func RecvMultishot(d *Driver, fd int) (*Handle[[]*BorrowedBuffer], error) {
	op := &RecvOp{Fd: fd}
	return Submit[[]*BorrowedBuffer](d, op, func(userData uint64) error {
		return d.ring.PrepRecvMultishot(fd, d.BufferGroup(), 0, userData)
	})
}
