//go:build linux

package iouring

import (
	"runtime"

	"github.com/halvorsen-io/uringrt/internal/obs"
	"github.com/halvorsen-io/uringrt/internal/sys"
)

// SentinelUserData is the reserved "all ones" user-data value for
// fire-and-forget descriptors (cancellations) whose completions the
// Dispatcher must ignore (spec §4.3/§6).
const SentinelUserData = ^uint64(0)

// DriverConfig holds the tunables spec §6 lists as recognized
// configuration constants, each with the spec's default.
type DriverConfig struct {
	bufGroup    uint16
	bufCount    uint16
	bufLength   uint32
	ringEntries uint32
}

func defaultDriverConfig() DriverConfig {
	return DriverConfig{
		bufGroup:    666,
		bufCount:    128,
		bufLength:   4096,
		ringEntries: 256,
	}
}

// DriverOption configures a Driver at construction, mirroring ring.go's
// own Option func(*sys.Params) pattern.
type DriverOption func(*DriverConfig)

// WithBufferGroup overrides the buffer-group id (default 666).
func WithBufferGroup(id uint16) DriverOption {
	return func(c *DriverConfig) { c.bufGroup = id }
}

// WithBufferCount overrides the receive buffer count (default 128). Must
// remain a power of two.
func WithBufferCount(n uint16) DriverOption {
	return func(c *DriverConfig) { c.bufCount = n }
}

// WithBufferLength overrides the per-buffer byte length (default 4096).
func WithBufferLength(n uint32) DriverOption {
	return func(c *DriverConfig) { c.bufLength = n }
}

// WithRingEntries overrides the submission queue capacity (default 256).
func WithRingEntries(n uint32) DriverOption {
	return func(c *DriverConfig) { c.ringEntries = n }
}

// Driver is the per-thread singleton context binding the Ring, Buffer
// Pool, and Operation Table together (spec §3's Driver Context, §4.6).
// Single-owner within the thread that created it; With installs it as the
// thread-current context for the duration of a call.
type Driver struct {
	ring  *Ring
	pool  *BufferPool
	table *opTable
	cfg   DriverConfig
}

// NewDriver runs the Driver initialization sequence of spec §4.6: create
// the kernel ring, refuse to start if the kernel lacks fast-poll or
// registered-buffer-ring support, then create and register the Buffer
// Pool.
func NewDriver(opts ...DriverOption) (*Driver, error) {
	cfg := defaultDriverConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ring, err := New(cfg.ringEntries)
	if err != nil {
		return nil, err
	}
	if !ring.HasFastPoll() {
		ring.Close()
		obs.Default().Warn("driver init refused: kernel lacks IORING_FEAT_FAST_POLL")
		return nil, ErrUnsupported
	}

	pool, err := NewBufferPool(cfg.bufGroup, cfg.bufCount, cfg.bufLength)
	if err != nil {
		ring.Close()
		return nil, err
	}
	if err := pool.Register(ring); err != nil {
		pool.Close()
		ring.Close()
		return nil, err
	}

	d := &Driver{ring: ring, pool: pool, table: newOpTable(), cfg: cfg}
	obs.Default().Info("driver initialized", "bufGroup", cfg.bufGroup, "bufCount", cfg.bufCount, "ringEntries", cfg.ringEntries)
	return d, nil
}

// Close unregisters the Buffer Pool and closes the ring. Only valid at
// Driver teardown; no in-flight operations may remain.
func (d *Driver) Close() error {
	if err := d.pool.Unregister(d.ring); err != nil {
		return err
	}
	if err := d.pool.Close(); err != nil {
		return err
	}
	return d.ring.Close()
}

// Submit pushes one descriptor for payload via prep, which must stamp the
// key Submit assigns as the descriptor's user-data (spec §4.6's
// submit(payload, descriptor) -> Handle contract; §6's "the descriptor's
// user-data field is overwritten by the core"). On a submission failure
// the slot is rolled back and never exposed to the caller. Per the Ring
// Submitter contract (spec §4.3), submission is non-blocking but does
// flush immediately: prep only writes the SQE into the local view, so
// Submit calls the Ring's own non-blocking Submit to push it to the
// kernel right away rather than leaving it for the next Wait call to
// discover via SubmitAndWait.
func Submit[O any](d *Driver, payload Payload[O], prep func(userData uint64) error) (*Handle[O], error) {
	key := d.table.insert(newSubmittedSlot())
	if err := prep(key); err != nil {
		_ = d.table.remove(key)
		return nil, err
	}
	if _, err := d.ring.Submit(); err != nil {
		_ = d.table.remove(key)
		return nil, err
	}
	obs.Default().Debug("operation submitted", "key", key)
	return newHandle(d, key, payload), nil
}

// Wait implements the Completion Dispatcher's wait() contract (spec
// §4.4): blocks at most until one completion is available, then drains
// every completion currently available. Busy/Interrupted are swallowed
// and produce zero state transitions.
func (d *Driver) Wait() error {
	userData, res, flags, err := d.ring.WaitCQE()
	if err != nil {
		if benignWaitError(err) {
			return nil
		}
		return err
	}
	d.ring.SeenCQE()
	d.dispatch(userData, res, flags)

	for {
		ud, r, fl, ok := d.ring.PeekCQE()
		if !ok {
			break
		}
		d.ring.SeenCQE()
		d.dispatch(ud, r, fl)
	}
	return nil
}

// dispatch runs the per-completion algorithm of spec §4.4 on one raw
// kernel completion.
func (d *Driver) dispatch(userData uint64, res int32, flags uint32) {
	if userData == SentinelUserData {
		return
	}

	rec := CompletionRecord{
		Res:   res,
		Flags: flags,
		More:  flags&sys.IORING_CQE_F_MORE != 0,
	}
	if flags&sys.IORING_CQE_F_BUFFER != 0 {
		bid := uint16(flags >> sys.IORING_CQE_BUFFER_SHIFT)
		if res >= 0 {
			rec.Buffer = d.pool.acquire(bid, uint32(res))
		} else {
			d.pool.release(bid)
		}
	}

	slot, err := d.table.get(userData)
	if err != nil {
		// Completion for a key the table no longer knows about: either a
		// cancellation race already collected the slot, or a protocol
		// violation. Both are non-fatal from the dispatcher's seat; log
		// and move on rather than abort the whole drain loop.
		obs.Default().Debug("dispatch: completion for unknown key", "key", userData)
		return
	}

	outcome := slot.complete(rec)
	if outcome.doWake {
		outcome.wake.Wake()
	}
	if outcome.collect {
		_ = d.table.remove(userData)
	}
}

// Ring exposes the underlying Ring for collaborators that need to prep
// descriptors directly (accept/connect/read/write/etc).
func (d *Driver) Ring() *Ring {
	return d.ring
}

// BufferGroup returns the buffer group id operations should select from
// when issuing a multishot recv or accept.
func (d *Driver) BufferGroup() uint16 {
	return d.cfg.bufGroup
}

var currentDriver *Driver

// With installs d as the thread-current Driver for the duration of fn,
// restoring whatever was previously installed on return. Go has no
// public per-OS-thread storage, so this is a package-level variable
// guarded by locking the calling goroutine to its OS thread — the same
// shape go-ublk's queue runner uses to pin its I/O loop to one thread.
// This is a misuse guard, not a promise of cross-goroutine safety: it
// panics if called from a goroutine that still has a different Driver
// bound, per spec §9's "callers must use the scoped-context entry point".
func (d *Driver) With(fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev := currentDriver
	if prev != nil && prev != d {
		panic(ErrProtocolViolation)
	}
	currentDriver = d
	defer func() { currentDriver = prev }()

	fn()
}

// CurrentDriver returns the Driver installed by the innermost active With
// call, or nil if none is installed. The binding is the single
// package-level variable With sets, not per-thread storage.
func CurrentDriver() *Driver {
	return currentDriver
}
