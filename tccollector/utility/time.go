package utility

import (
	"sync"
	"time"

	"synwatch/classifier"
)

var (
	offsetOnce sync.Once
	monoEpoch  time.Time // wall-clock instant of monotonic zero
)

// monotonicEpoch samples both clocks once and derives the wall-clock time at
// which CLOCK_MONOTONIC read zero.
func monotonicEpoch() time.Time {
	offsetOnce.Do(func() {
		mono := classifier.MonotonicNow()
		monoEpoch = time.Now().Add(-time.Duration(mono))
	})
	return monoEpoch
}

// ConvertMonotonic maps a CLOCK_MONOTONIC timestamp (bpf_ktime_get_ns or
// classifier.MonotonicNow) to wall-clock time.
func ConvertMonotonic(ns uint64) time.Time {
	return monotonicEpoch().Add(time.Duration(ns))
}

// FormatMonotonic renders a monotonic timestamp as an absolute time string
// with nanosecond precision.
func FormatMonotonic(ns uint64) string {
	return ConvertMonotonic(ns).Format("2006-01-02T15:04:05.000000000Z07:00")
}
