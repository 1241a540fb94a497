// Package motion bridges device-motion readings pushed from the
// webview into a consumable sample feed.
package motion

import (
	"time"

	"civicsos/internal/ports"
)

// Feed is a buffered motion-sample feed. Offer never blocks; samples
// are dropped when the consumer lags, which is fine for shake
// detection.
type Feed struct {
	samples chan ports.MotionSample
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 32
	}
	return &Feed{samples: make(chan ports.MotionSample, buffer)}
}

// Offer records one acceleration-magnitude reading.
func (f *Feed) Offer(magnitude float64) {
	sample := ports.MotionSample{Magnitude: magnitude, At: time.Now()}
	select {
	case f.samples <- sample:
	default:
	}
}

func (f *Feed) Samples() <-chan ports.MotionSample {
	return f.samples
}
