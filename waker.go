//go:build linux

package iouring

// Waker is the Go stand-in for the Rust std::task::Waker this engine was
// designed against. Go has no Future/Waker trait, so a waker here is just
// an identity plus a callback: id distinguishes "this is the same logical
// task" (the == check spec's waker-replacement rule needs, Rust's
// Waker::will_wake) from wake, which is the actual notification.
//
// id should be something comparable that uniquely names the waiting task
// (a *sync.Cond, a channel pointer, a task struct pointer — whatever the
// caller's scheduler uses). Two Wakers with equal id are considered to
// wake the same task even if their wake funcs differ.
type Waker struct {
	id   any
	wake func()
}

// NewWaker builds a Waker from a task identity and its wake callback.
func NewWaker(id any, wake func()) Waker {
	return Waker{id: id, wake: wake}
}

// Wake invokes the wake callback, if any.
func (w Waker) Wake() {
	if w.wake != nil {
		w.wake()
	}
}

// Same reports whether w and other already wake the same task, per the
// waker-discipline rule: a stored waker is replaced only when the new one
// does not already wake the existing one.
func (w Waker) Same(other Waker) bool {
	if w.id == nil || other.id == nil {
		return false
	}
	return w.id == other.id
}

// IsZero reports whether w is the zero Waker (no task registered).
func (w Waker) IsZero() bool {
	return w.id == nil && w.wake == nil
}
