package lintas

import (
	"fmt"
	"io"
	"time"
)

// ThroughputDirection selects which streaming bodies the minimum-throughput
// guard wraps.
type ThroughputDirection int

const (
	// ThroughputBoth guards request and response bodies. The default.
	ThroughputBoth ThroughputDirection = iota
	// ThroughputUpload guards streaming request bodies only.
	ThroughputUpload
	// ThroughputDownload guards streaming response bodies only.
	ThroughputDownload
)

// MinimumThroughput is a floor of bytes per duration a streaming body must
// sustain.
type MinimumThroughput struct {
	Bytes     uint64
	Per       time.Duration
	Direction ThroughputDirection
}

func (mt MinimumThroughput) enabled() bool { return mt.Bytes > 0 && mt.Per > 0 }

func (mt MinimumThroughput) bytesPerSecond() float64 {
	return float64(mt.Bytes) / mt.Per.Seconds()
}

func (mt MinimumThroughput) guardsUpload() bool {
	return mt.enabled() && (mt.Direction == ThroughputBoth || mt.Direction == ThroughputUpload)
}

func (mt MinimumThroughput) guardsDownload() bool {
	return mt.enabled() && (mt.Direction == ThroughputBoth || mt.Direction == ThroughputDownload)
}

// ThroughputError reports a body whose sustained throughput fell below the
// configured floor.
type ThroughputError struct {
	ObservedBytesPerSec float64
	FloorBytesPerSec    float64
	Window              time.Duration
}

// Error implements the error interface.
func (e *ThroughputError) Error() string {
	return fmt.Sprintf("lintas: throughput below floor: observed %.2f B/s over %v, floor %.2f B/s",
		e.ObservedBytesPerSec, e.Window, e.FloorBytesPerSec)
}

type throughputSample struct {
	elapsed time.Duration
	bytes   int
}

// minimumThroughputBody wraps a streaming body and fails it when the
// trailing-window average throughput drops below the floor. Only time spent
// inside Read counts toward the window, so a consumer that stops polling is
// not mistaken for a slow producer. Time comes from the injected Clock, so
// the guard is deterministic under test clocks.
type minimumThroughputBody struct {
	inner io.ReadCloser
	clock Clock
	floor float64
	per   time.Duration

	samples      []throughputSample
	totalElapsed time.Duration
	totalBytes   int64
	failed       error
}

// newMinimumThroughputBody wraps body with the given floor. The guard is
// installed when bodies are wrapped and removed when the body is consumed
// or closed.
func newMinimumThroughputBody(body io.ReadCloser, clock Clock, mt MinimumThroughput) io.ReadCloser {
	return &minimumThroughputBody{
		inner: body,
		clock: clock,
		floor: mt.bytesPerSecond(),
		per:   mt.Per,
	}
}

func (b *minimumThroughputBody) Read(p []byte) (int, error) {
	if b.failed != nil {
		return 0, b.failed
	}
	start := b.clock.Now()
	n, err := b.inner.Read(p)
	elapsed := b.clock.Now().Sub(start)

	b.observe(elapsed, n)

	if err != nil {
		return n, err
	}
	if tErr := b.check(); tErr != nil {
		b.failed = tErr
		return n, tErr
	}
	return n, nil
}

func (b *minimumThroughputBody) Close() error { return b.inner.Close() }

func (b *minimumThroughputBody) observe(elapsed time.Duration, n int) {
	b.samples = append(b.samples, throughputSample{elapsed: elapsed, bytes: n})
	b.totalElapsed += elapsed
	b.totalBytes += int64(n)

	// Evict leading samples once the window would still cover the full
	// measurement period without them.
	for len(b.samples) > 1 && b.totalElapsed-b.samples[0].elapsed >= b.per {
		head := b.samples[0]
		b.samples = b.samples[1:]
		b.totalElapsed -= head.elapsed
		b.totalBytes -= int64(head.bytes)
	}
}

// check trips only once the window is full; shorter observations are not
// judged.
func (b *minimumThroughputBody) check() error {
	if b.totalElapsed < b.per {
		return nil
	}
	observed := float64(b.totalBytes) / b.totalElapsed.Seconds()
	if observed < b.floor {
		return &ThroughputError{
			ObservedBytesPerSec: observed,
			FloorBytesPerSec:    b.floor,
			Window:              b.totalElapsed,
		}
	}
	return nil
}
