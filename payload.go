//go:build linux

package iouring

// CompletionRecord is the engine's view of one kernel completion, derived
// from a raw CQE at dispatch time.
type CompletionRecord struct {
	// Res is the raw kernel result: a non-negative byte/fd count on
	// success, or a negative errno on failure.
	Res int32

	// Flags is the raw CQE flags bitfield (IORING_CQE_F_*).
	Flags uint32

	// Buffer is populated when Flags carries IORING_CQE_F_BUFFER and Res is
	// non-negative: the dispatcher acquired the kernel-selected buffer. Nil
	// when the operation did not select a buffer, and nil on failure, where
	// the dispatcher releases the selected index back to the pool instead.
	Buffer *BorrowedBuffer

	// More reports whether the kernel flagged this record non-terminal
	// (IORING_CQE_F_MORE): another completion for the same operation is
	// still to come.
	More bool
}

// Err converts Res into an error, or nil on success.
func (c CompletionRecord) Err() error {
	return resultToError(c.Res)
}

// Payload is the contract every operation payload offers the Handle. It
// mirrors the two hooks a Rust Future-backed op exposes to its driver.
type Payload[O any] interface {
	// Complete consumes the payload on the terminal completion record and
	// produces the operation's user-facing result.
	Complete(rec CompletionRecord) O

	// Update is invoked for every non-terminal record (multishot "more"
	// completions) in kernel delivery order, before Complete.
	Update(rec CompletionRecord)
}

// NoopUpdate is embeddable by payloads that have nothing to do with
// non-terminal records, which is every payload except multishot ones.
type NoopUpdate struct{}

// Update implements Payload's no-op default.
func (NoopUpdate) Update(CompletionRecord) {}
