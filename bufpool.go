//go:build linux

package iouring

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/halvorsen-io/uringrt/internal/sys"
)

// BufferPool is a fixed-size set of equally-sized receive buffers
// registered with the kernel under a buffer-group id (spec §3/§4.1). The
// kernel selects a buffer per incoming read and reports its index in the
// CQE flags; the pool converts that index back into a byte view.
//
// Backing storage is two anonymous mmaps (the buffer contents, and the
// ring of Buf records the kernel reads), grounded on go-ublk's
// mmapQueues (MAP_PRIVATE|MAP_ANONYMOUS allocation for I/O buffers it
// manages itself rather than device-backed memory) — here adapted to back
// a registered provided-buffer ring instead of an ublk tag buffer array.
type BufferPool struct {
	bgid    uint16
	entries uint16
	mask    uint16
	length  uint32

	data    []byte // entries*length backing region for buffer contents
	ringMem []byte // BufRing header + entries*Buf records, mmap'd separately
	ring    *sys.BufRing
	bufs    []sys.Buf

	tail       uint16
	registered bool
}

// NewBufferPool allocates (but does not yet register with a kernel ring)
// a buffer pool of entries buffers of length bytes each, identified by
// bgid. entries must be a power of two, per spec §6's configuration
// constants.
func NewBufferPool(bgid uint16, entries uint16, length uint32) (*BufferPool, error) {
	if entries == 0 || entries&(entries-1) != 0 {
		return nil, ErrUnsupported
	}

	data, err := unix.Mmap(-1, 0, int(entries)*int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}

	ringSize := int(unsafe.Sizeof(sys.BufRing{})) + int(entries)*int(unsafe.Sizeof(sys.Buf{}))
	ringMem, err := unix.Mmap(-1, 0, ringSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}

	p := &BufferPool{
		bgid:    bgid,
		entries: entries,
		mask:    entries - 1,
		length:  length,
		data:    data,
		ringMem: ringMem,
		ring:    (*sys.BufRing)(unsafe.Pointer(&ringMem[0])),
	}
	bufsOff := unsafe.Sizeof(sys.BufRing{})
	p.bufs = unsafe.Slice((*sys.Buf)(unsafe.Pointer(&ringMem[bufsOff])), entries)

	for i := uint16(0); i < entries; i++ {
		p.publish(i)
	}
	return p, nil
}

// publish writes a Buf record for index bid into the ring and advances
// the tail, making bid visible to the kernel as a buffer it may select.
//
// The ring is confined to the single thread that owns the Driver (spec
// §5: "the Buffer Pool's free set is mutated only by the Dispatcher
// thread"), so a plain store of Tail is sufficient here; there is no
// concurrent Go-side reader to order against.
func (p *BufferPool) publish(bid uint16) {
	addr := uint64(uintptr(unsafe.Pointer(&p.data[int(bid)*int(p.length)])))
	slot := p.tail & p.mask
	p.bufs[slot] = sys.Buf{Addr: addr, Len: p.length, Bid: bid}
	p.tail++
	p.ring.Tail = p.tail
}

// Register installs the pool with the kernel under its buffer group id
// (IORING_REGISTER_PBUF_RING), per spec §4.1.
func (p *BufferPool) Register(ring *Ring) error {
	setup := sys.BufRingSetup{
		BGid:     p.bgid,
		Nentries: p.entries,
		RingAddr: uint64(uintptr(unsafe.Pointer(&p.ringMem[0]))),
	}
	err := sys.RegisterPBufRing(ring.Fd(), &setup)
	if err == nil {
		p.registered = true
		return nil
	}
	switch err {
	case unix.EINVAL:
		return ErrUnsupported
	case unix.EEXIST, unix.EBUSY:
		return ErrConflict
	default:
		return &OsError{Errno: err.(unix.Errno)}
	}
}

// Unregister tears down the pool's kernel registration. Called only at
// Driver teardown.
func (p *BufferPool) Unregister(ring *Ring) error {
	if !p.registered {
		return nil
	}
	if err := sys.UnregisterPBufRing(ring.Fd(), p.bgid); err != nil {
		return err
	}
	p.registered = false
	return nil
}

// Close releases the pool's backing mmaps. Call after Unregister.
func (p *BufferPool) Close() error {
	err1 := unix.Munmap(p.data)
	err2 := unix.Munmap(p.ringMem)
	if err1 != nil {
		return err1
	}
	return err2
}

// acquire converts a kernel-reported buffer index and length into a
// BorrowedBuffer. Length is clamped to the configured per-buffer length.
// Called only by the Completion Dispatcher.
func (p *BufferPool) acquire(bid uint16, n uint32) *BorrowedBuffer {
	if n > p.length {
		n = p.length
	}
	start := int(bid) * int(p.length)
	bb := &BorrowedBuffer{pool: p, bid: bid, data: p.data[start : start+int(n)]}
	runtime.SetFinalizer(bb, (*BorrowedBuffer).Close)
	return bb
}

// release returns a buffer index to the pool's free set by republishing
// it into the ring, so the kernel may select it again. Called both when
// a Borrowed Buffer is dropped by user code and when the kernel reports
// failure on a read that had selected a buffer.
func (p *BufferPool) release(bid uint16) {
	p.publish(bid)
}

// BorrowedBuffer is one buffer lent out to user code after a successful
// read that selected a buffer from the pool (spec §3's Borrowed Buffer).
type BorrowedBuffer struct {
	pool   *BufferPool
	bid    uint16
	data   []byte
	closed bool
}

// Bytes returns the buffer's content view. The slice is only valid until
// Close is called.
func (b *BorrowedBuffer) Bytes() []byte {
	return b.data
}

// Index returns the kernel buffer index this view was selected from.
func (b *BorrowedBuffer) Index() uint16 {
	return b.bid
}

// Close returns the buffer's index to the pool's free set. Safe to call
// more than once. A finalizer calls this automatically if user code never
// does, as a safety net — the Go substitute for the Rust Drop guarantee
// the spec's Borrowed Buffer relies on.
func (b *BorrowedBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.pool.release(b.bid)
	runtime.SetFinalizer(b, nil)
	return nil
}
