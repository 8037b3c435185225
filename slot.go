//go:build linux

package iouring

// erasedPayload is the type-erased form of Payload[O] the Operation Table
// stores. Handle[O] keeps the typed Payload[O] while the Handle is live;
// only an Abandoned slot needs to hold on to a payload directly, and by
// then its original Output type is no longer observable by anyone, so
// erasure is enough (and is all the spec's "payload erasure for Abandoned
// slots" design note asks for).
type erasedPayload interface {
	completeErased(rec CompletionRecord) any
	Update(rec CompletionRecord)
}

type payloadAdapter[O any] struct {
	p Payload[O]
}

func (a payloadAdapter[O]) completeErased(rec CompletionRecord) any {
	return a.p.Complete(rec)
}

func (a payloadAdapter[O]) Update(rec CompletionRecord) {
	a.p.Update(rec)
}

type slotState uint8

const (
	stateSubmitted slotState = iota
	stateWaiting
	stateCompleted
	stateMultiPending
	stateAbandoned
)

// opSlot is one Operation Slot: the lifecycle state of a single in-flight
// operation, addressed by its opTable key. Grounded on
// original_source's driver/mod.rs State enum (Submitted/Waiting/Completed)
// generalized with the MultiPending/Abandoned cases io/action/mod.rs's
// Action::trigger and the buffer-ring driver variant need.
type opSlot struct {
	state   slotState
	waker   Waker
	done    CompletionRecord   // valid when state == stateCompleted
	pending []CompletionRecord // valid when state == stateMultiPending
	payload erasedPayload      // valid when state == stateAbandoned
}

func newSubmittedSlot() *opSlot {
	return &opSlot{state: stateSubmitted}
}

// completeOutcome reports what the dispatcher should do with the slot
// after a complete() transition.
type completeOutcome struct {
	wake    Waker
	doWake  bool
	collect bool
}

// complete applies one kernel completion record to the slot, per the
// table in spec §4.5. It panics with ErrProtocolViolation if called on an
// already-Completed slot, which the spec treats as a bug, not a runtime
// condition.
func (s *opSlot) complete(rec CompletionRecord) completeOutcome {
	switch s.state {
	case stateSubmitted:
		if rec.More {
			s.state = stateMultiPending
			s.pending = append(s.pending, rec)
		} else {
			s.state = stateCompleted
			s.done = rec
		}
		return completeOutcome{}

	case stateWaiting:
		w := s.waker
		s.waker = Waker{}
		if rec.More {
			s.state = stateMultiPending
			s.pending = append(s.pending, rec)
		} else {
			s.state = stateCompleted
			s.done = rec
		}
		return completeOutcome{wake: w, doWake: !w.IsZero()}

	case stateMultiPending:
		s.pending = append(s.pending, rec)
		return completeOutcome{}

	case stateAbandoned:
		if !rec.More {
			return completeOutcome{collect: true}
		}
		return completeOutcome{}

	default:
		panic(ErrProtocolViolation)
	}
}

// pollResult is what Handle.Poll does with a slot after inspecting it.
// updates holds non-terminal records the caller must run Payload.Update
// over, in kernel delivery order, before checking ready.
type pollResult struct {
	updates []CompletionRecord
	ready   bool
	record  CompletionRecord
	collect bool
}

// poll applies one Handle-side poll step, per spec §4.5's poll
// transitions. It never touches the payload itself; the caller
// (Handle.Poll) runs Update/Complete using the records this returns.
func (s *opSlot) poll(w Waker) pollResult {
	switch s.state {
	case stateSubmitted:
		s.state = stateWaiting
		s.waker = w
		return pollResult{}

	case stateWaiting:
		if !s.waker.Same(w) {
			s.waker = w
		}
		return pollResult{}

	case stateCompleted:
		return pollResult{ready: true, record: s.done, collect: true}

	case stateMultiPending:
		list := s.pending
		s.pending = nil
		terminalIdx := -1
		for i, rec := range list {
			if !rec.More {
				terminalIdx = i
				break
			}
		}
		if terminalIdx < 0 {
			// no terminal yet: every buffered record is a non-terminal
			// update; go back to Waiting for the next one.
			s.state = stateWaiting
			s.waker = w
			return pollResult{updates: list}
		}
		// a terminal is present: the caller applies updates for the
		// records before it, then we surface Completed and self-reschedule
		// so the terminal is observed on the *next* poll (never more than
		// one Ready per poll pass).
		s.state = stateCompleted
		s.done = list[terminalIdx]
		w.Wake()
		return pollResult{updates: list[:terminalIdx]}
	}
	panic(ErrProtocolViolation)
}

// abandon applies the Handle-drop transitions of spec §4.5. It returns
// issueCancel, true when a best-effort cancellation descriptor must be
// submitted, and collect, true when the slot is already finished and
// should simply be removed from the table.
func (s *opSlot) abandon(payload erasedPayload) (issueCancel, collect bool) {
	switch s.state {
	case stateSubmitted, stateWaiting:
		s.state = stateAbandoned
		s.payload = payload
		return true, false

	case stateCompleted:
		return false, true

	case stateMultiPending:
		last := s.pending[len(s.pending)-1]
		if last.More {
			s.state = stateAbandoned
			s.payload = payload
			return true, false
		}
		return false, true

	default:
		panic(ErrProtocolViolation)
	}
}
