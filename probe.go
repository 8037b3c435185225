//go:build linux

package iouring

import "github.com/halvorsen-io/uringrt/internal/sys"

// HasFastPoll reports whether the kernel set IORING_FEAT_FAST_POLL on ring
// setup. Driver init (driver.go, spec §4.6 step 2) refuses to start when
// this is false, rather than probing individual opcodes: fast-poll is the
// one feature flag the kernel reports directly in io_uring_params, so no
// separate IORING_REGISTER_PROBE round trip is needed for it.
func (r *Ring) HasFastPoll() bool {
	return r.features&sys.IORING_FEAT_FAST_POLL != 0
}
