package classifier

import "golang.org/x/sys/unix"

// MonotonicNow reads CLOCK_MONOTONIC, the clock bpf_ktime_get_ns uses, so
// events from the kernel probe and from this package share a time base.
func MonotonicNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}
