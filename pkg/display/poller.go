// Package display renders the live camera state and verification results.
package display

import (
	"context"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/camera"
)

// DefaultInterval is the display refresh cadence.
const DefaultInterval = 30 * time.Millisecond

// Snapshotter yields a copy of the latest frame.
type Snapshotter interface {
	Snapshot() (camera.Frame, bool)
}

// Poller pulls the latest frame on a fixed cadence. It never blocks capture:
// a slow onFrame only delays the next poll.
type Poller struct {
	Interval time.Duration
}

// Run polls frames until ctx is done and calls onFrame whenever the slot holds
// a frame different from the last one delivered.
func (p Poller) Run(ctx context.Context, frames Snapshotter, onFrame func(camera.Frame)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastSeq  uint64
		lastTime time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f, ok := frames.Snapshot()
			if !ok {
				continue
			}
			// A camera switch restarts sequence numbers, so compare for change.
			if f.Seq == lastSeq && f.Timestamp.Equal(lastTime) {
				continue
			}
			lastSeq, lastTime = f.Seq, f.Timestamp
			onFrame(f)
		}
	}
}
