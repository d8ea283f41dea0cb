package camera

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/MrCodeEU/faceverify/pkg/logging"
)

// Selector switches the active camera among a fixed list of usable devices.
// At most one Source runs at any time: the previous one is fully stopped
// before the next is opened.
type Selector struct {
	opener  Opener
	opts    SourceOptions
	devices []string

	mu      sync.Mutex // serializes Select and Close
	current atomic.Pointer[Source]
}

// NewSelector creates a Selector over the given device identifiers.
func NewSelector(opener Opener, devices []string, opts SourceOptions) *Selector {
	return &Selector{
		opener:  opener,
		opts:    opts,
		devices: slices.Clone(devices),
	}
}

// Devices returns the usable device identifiers.
func (s *Selector) Devices() []string {
	return slices.Clone(s.devices)
}

// Current returns the active device identifier, or "" if none is running.
func (s *Selector) Current() string {
	if src := s.current.Load(); src != nil {
		return src.ID()
	}
	return ""
}

// Select makes id the active camera. Selecting the running camera is a no-op.
// If the new device fails to open no camera is active afterwards.
func (s *Selector) Select(id string) error {
	if !slices.Contains(s.devices, id) {
		return ErrUnknownDevice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil {
		if cur.ID() == id {
			return nil
		}
		s.current.Store(nil)
		cur.Stop()
	}

	src, err := Open(s.opener, id, s.opts)
	if err != nil {
		logging.Component("camera").WithError(err).Warnf("Failed to switch to %s", id)
		return err
	}
	src.Start()
	s.current.Store(src)
	return nil
}

// Snapshot returns a copy of the active camera's latest frame.
func (s *Selector) Snapshot() (Frame, bool) {
	src := s.current.Load()
	if src == nil {
		return Frame{}, false
	}
	return src.Snapshot()
}

// Stats returns the active camera's counters.
func (s *Selector) Stats() (Stats, bool) {
	src := s.current.Load()
	if src == nil {
		return Stats{}, false
	}
	return src.Stats(), true
}

// Close stops the active camera.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Swap(nil); cur != nil {
		cur.Stop()
	}
}
