//go:build linux

package iouring

import "runtime"

// Handle is the future-like object user code holds for one submitted
// operation (spec §3's Operation Handle, §6's "acts as an awaitable
// producing payload::Output"). Ownership of the payload transfers into
// the Handle at Submit time; on Poll it is consulted for Update/Complete,
// and on Close (the Go stand-in for Rust's compiler-enforced Drop) it is
// either returned to the caller already-consumed or moved into the slot
// as Abandoned.
type Handle[O any] struct {
	driver  *Driver
	key     uint64
	payload Payload[O]
	done    bool
}

func newHandle[O any](d *Driver, key uint64, payload Payload[O]) *Handle[O] {
	h := &Handle[O]{driver: d, key: key, payload: payload}
	runtime.SetFinalizer(h, (*Handle[O]).Close)
	return h
}

// Poll implements spec §4.5's Handle poll transitions. w is the waker to
// register if the operation is still in flight. ready reports whether out
// is valid; err carries the completion's OsError, if any, only when ready
// is true.
func (h *Handle[O]) Poll(w Waker) (out O, ready bool, err error) {
	if h.done {
		panic(ErrProtocolViolation)
	}

	slot, tErr := h.driver.table.get(h.key)
	if tErr != nil {
		panic(ErrProtocolViolation)
	}

	res := slot.poll(w)
	for _, rec := range res.updates {
		h.payload.Update(rec)
	}
	if !res.ready {
		return out, false, nil
	}

	out = h.payload.Complete(res.record)
	err = res.record.Err()
	if res.collect {
		_ = h.driver.table.remove(h.key)
	}
	h.done = true
	runtime.SetFinalizer(h, nil)
	return out, true, err
}

// Close implements spec §4.5's Handle drop transitions: best-effort
// cancellation when the operation is still in flight, or simple removal
// when it has already finished. Safe to call more than once; a finalizer
// calls this automatically if the Handle is never explicitly closed.
func (h *Handle[O]) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	runtime.SetFinalizer(h, nil)

	slot, err := h.driver.table.get(h.key)
	if err != nil {
		// Already removed by a prior terminal poll/dispatch; nothing to do.
		return nil
	}

	issueCancel, collect := slot.abandon(payloadAdapter[O]{h.payload})
	if collect {
		_ = h.driver.table.remove(h.key)
		return nil
	}
	if issueCancel {
		// Best-effort: the kernel may already be racing to deliver the
		// real completion. Errors here are silently ignored per spec §7's
		// propagation policy for cancellation on drop. Submit flushes the
		// cancel descriptor now rather than leaving it queued for whatever
		// unrelated Submit/Wait call happens next.
		if err := h.driver.ring.PrepCancel(h.key, 0, SentinelUserData); err == nil {
			_, _ = h.driver.ring.Submit()
		}
	}
	return nil
}
