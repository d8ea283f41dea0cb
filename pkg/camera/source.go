package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/logging"
)

// SourceOptions tunes the capture loop.
type SourceOptions struct {
	// ProbeTimeout bounds the initial frame read during Open.
	ProbeTimeout time.Duration
	// MinBackoff and MaxBackoff bound the pause after a failed read.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultSourceOptions returns the default capture loop settings.
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		ProbeTimeout: 3 * time.Second,
		MinBackoff:   10 * time.Millisecond,
		MaxBackoff:   250 * time.Millisecond,
	}
}

func (o SourceOptions) withDefaults() SourceOptions {
	d := DefaultSourceOptions()
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = d.MinBackoff
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = o.MinBackoff
	}
	return o
}

// Stats reports capture loop counters.
type Stats struct {
	Device      string
	Captured    uint64
	Failures    uint64
	LastFrameAt time.Time
}

// Source owns an open device and keeps its latest frame in a single slot.
// Snapshot never observes a partially written frame.
type Source struct {
	id     string
	device Device
	opts   SourceOptions

	mu    sync.RWMutex
	frame *Frame

	seq      uint64 // written by the capture loop only
	captured atomic.Uint64
	failures atomic.Uint64

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Open acquires the device and probes it for one frame. The probe frame
// becomes the first slot value. A device that cannot be opened or that
// yields nothing within the probe timeout is reported as ErrDeviceUnavailable.
func Open(opener Opener, id string, opts SourceOptions) (*Source, error) {
	opts = opts.withDefaults()

	dev, err := opener(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, id, err)
	}

	frame, err := probe(dev, opts.ProbeTimeout)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, id, err)
	}

	s := &Source{
		id:     id,
		device: dev,
		opts:   opts,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.publish(frame)

	logging.Component("camera").WithFields(logging.Fields{
		"device": id,
		"width":  frame.Width,
		"height": frame.Height,
	}).Info("Camera opened")
	return s, nil
}

func probe(dev Device, timeout time.Duration) (*Frame, error) {
	type result struct {
		frame *Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := dev.ReadFrame()
		ch <- result{f, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.frame == nil || len(r.frame.Data) == 0 {
			return nil, ErrNoFrame
		}
		return r.frame, nil
	case <-timer.C:
		return nil, fmt.Errorf("no frame within %v", timeout)
	}
}

// ID returns the device identifier.
func (s *Source) ID() string {
	return s.id
}

// Start runs the capture loop in a new goroutine.
func (s *Source) Start() {
	go s.Run()
}

// Run captures frames until Stop is called. Only the first call runs the
// loop; later calls return immediately.
func (s *Source) Run() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	log := logging.Component("camera").WithField("device", s.id)
	backoff := s.opts.MinBackoff

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		frame, err := s.device.ReadFrame()
		if err == nil && (frame == nil || len(frame.Data) == 0) {
			err = ErrNoFrame
		}
		if err != nil {
			if s.stopping() {
				return
			}
			n := s.failures.Add(1)
			log.WithError(err).Debugf("Frame read failed (%d), retrying in %v", n, backoff)
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.opts.MaxBackoff)
			continue
		}

		backoff = s.opts.MinBackoff
		s.publish(frame)
	}
}

// nextBackoff doubles d up to max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

func (s *Source) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if Stop was called meanwhile.
func (s *Source) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Source) publish(frame *Frame) {
	s.seq++
	frame.Seq = s.seq

	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()

	s.captured.Add(1)
}

// Snapshot returns a copy of the latest frame, or false if none is held.
func (s *Source) Snapshot() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return Frame{}, false
	}
	return s.frame.Clone(), true
}

// Stats returns the capture counters.
func (s *Source) Stats() Stats {
	st := Stats{
		Device:   s.id,
		Captured: s.captured.Load(),
		Failures: s.failures.Load(),
	}
	s.mu.RLock()
	if s.frame != nil {
		st.LastFrameAt = s.frame.Timestamp
	}
	s.mu.RUnlock()
	return st
}

// Stop ends the capture loop, releases the device and clears the slot.
// It returns once the loop has exited. Safe to call more than once.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if err := s.device.Close(); err != nil {
			logging.Component("camera").WithError(err).Warnf("Failed to close %s", s.id)
		}
		if s.started.Load() {
			<-s.done
		}

		s.mu.Lock()
		s.frame = nil
		s.mu.Unlock()

		logging.Component("camera").WithField("device", s.id).Info("Camera released")
	})
}
