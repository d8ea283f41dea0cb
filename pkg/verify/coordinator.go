// Package verify runs single-shot face verification requests against a
// reference gallery. At most one request is in flight; triggers arriving
// while one is running are ignored.
package verify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceverify/pkg/camera"
	"github.com/MrCodeEU/faceverify/pkg/gallery"
	"github.com/MrCodeEU/faceverify/pkg/logging"
	"github.com/MrCodeEU/faceverify/pkg/recognition"
)

// State is the coordinator's request state.
type State int32

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	default:
		return "unknown"
	}
}

// Reasons attached to unmatched results.
const (
	ReasonNoFrame = "no frame"
	ReasonNoFace  = "no face detected"
	ReasonNoMatch = "no match"
)

// Result is delivered exactly once per accepted trigger.
type Result struct {
	RequestID string
	Matched   bool
	Index     int // gallery index, -1 unless Matched
	Name      string
	ImagePath string
	Score     float64 // recognition.NoScore when nothing was compared
	Reason    string  // empty when Matched
	FrameSeq  uint64
	FrameTime time.Time
	Duration  time.Duration
}

// Snapshotter yields a copy of the latest frame.
type Snapshotter interface {
	Snapshot() (camera.Frame, bool)
}

// ResultSink receives verification results.
type ResultSink interface {
	OnVerificationResult(Result)
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(Result)

func (f ResultSinkFunc) OnVerificationResult(r Result) { f(r) }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithThreshold sets the minimum similarity for a match.
func WithThreshold(t float64) Option {
	return func(c *Coordinator) { c.threshold = t }
}

// WithClock replaces time.Now for request timing.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator turns triggers into verification results.
type Coordinator struct {
	frames    Snapshotter
	detector  recognition.Detector
	gallery   *gallery.Gallery
	sink      ResultSink
	threshold float64
	now       func() time.Time
	log       *logrus.Entry

	state atomic.Int32
	mu    sync.Mutex
	idle  *sync.Cond
}

// New creates a Coordinator. The gallery is read-only for its lifetime.
func New(frames Snapshotter, detector recognition.Detector, g *gallery.Gallery, sink ResultSink, opts ...Option) *Coordinator {
	c := &Coordinator{
		frames:    frames,
		detector:  detector,
		gallery:   g,
		sink:      sink,
		threshold: recognition.DefaultThreshold,
		now:       time.Now,
		log:       logging.Component("verify"),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current request state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Trigger starts a verification request and reports whether it was accepted.
// With no frame available the result is delivered before Trigger returns;
// otherwise detection runs on its own goroutine.
func (c *Coordinator) Trigger() bool {
	if !c.state.CompareAndSwap(int32(Idle), int32(InFlight)) {
		c.log.Debug("Verification already in progress, trigger ignored")
		return false
	}

	req := Result{
		RequestID: uuid.NewString(),
		Index:     -1,
		Score:     recognition.NoScore,
	}
	start := c.now()

	frame, ok := c.frames.Snapshot()
	if !ok {
		req.Reason = ReasonNoFrame
		req.Duration = c.now().Sub(start)
		c.finish(req)
		return true
	}

	req.FrameSeq = frame.Seq
	req.FrameTime = frame.Timestamp
	go func() {
		c.finish(c.verify(req, frame, start))
	}()
	return true
}

func (c *Coordinator) verify(r Result, frame camera.Frame, start time.Time) Result {
	log := c.log.WithFields(logging.Fields{"request": r.RequestID, "frame": frame.Seq})

	faces, err := c.detector.Detect(frame.Data)
	if err != nil {
		log.WithError(err).Warn("Face detection failed")
		r.Reason = ReasonNoFace
		r.Duration = c.now().Sub(start)
		return r
	}
	if len(faces) == 0 {
		r.Reason = ReasonNoFace
		r.Duration = c.now().Sub(start)
		return r
	}
	if len(faces) > 1 {
		log.Debugf("%d faces detected, using the first", len(faces))
	}

	m := c.gallery.Match(faces[0].Embedding, c.threshold)
	r.Matched = m.Matched
	r.Index = m.Index
	r.Score = m.Score
	if m.Matched {
		id := c.gallery.At(m.Index)
		r.Name = id.Name
		r.ImagePath = id.ImagePath
	} else {
		r.Reason = ReasonNoMatch
	}
	r.Duration = c.now().Sub(start)
	return r
}

// finish delivers r and then returns the coordinator to Idle.
func (c *Coordinator) finish(r Result) {
	c.log.WithFields(logging.Fields{
		"request": r.RequestID,
		"matched": r.Matched,
		"name":    r.Name,
		"score":   r.Score,
		"reason":  r.Reason,
	}).Info("Verification complete")

	if c.sink != nil {
		c.sink.OnVerificationResult(r)
	}

	c.mu.Lock()
	c.state.Store(int32(Idle))
	c.idle.Broadcast()
	c.mu.Unlock()
}

// Wait blocks until no request is in flight.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.State() == InFlight {
		c.idle.Wait()
	}
}
