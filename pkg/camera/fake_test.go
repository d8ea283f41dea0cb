package camera

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"
)

// fakeDevice yields frames from ReadFunc, or a 1 KiB frame filled with the
// read number when ReadFunc is nil.
type fakeDevice struct {
	ReadFunc func(n int, closed <-chan struct{}) (*Frame, error)

	mu         sync.Mutex
	reads      int
	closeCalls int
	closed     chan struct{}
	onClose    func()
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{closed: make(chan struct{})}
}

func (d *fakeDevice) ReadFrame() (*Frame, error) {
	d.mu.Lock()
	select {
	case <-d.closed:
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	default:
	}
	n := d.reads
	d.reads++
	fn := d.ReadFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(n, d.closed)
	}
	time.Sleep(time.Millisecond)
	return &Frame{
		Data:      bytes.Repeat([]byte{byte(n)}, 1024),
		Width:     640,
		Height:    480,
		Format:    "JPEG",
		Timestamp: time.Now(),
	}, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	if d.closeCalls == 1 {
		close(d.closed)
		if d.onClose != nil {
			d.onClose()
		}
	}
	return nil
}

func (d *fakeDevice) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// countingOpener tracks how many devices are open at once.
type countingOpener struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	opened  atomic.Int32
	fail    map[string]bool
}

func (o *countingOpener) Open(id string) (Device, error) {
	if o.fail[id] {
		return nil, ErrDeviceUnavailable
	}
	n := o.open.Add(1)
	for {
		m := o.maxOpen.Load()
		if n <= m || o.maxOpen.CompareAndSwap(m, n) {
			break
		}
	}
	o.opened.Add(1)

	d := newFakeDevice()
	d.onClose = func() { o.open.Add(-1) }
	return d, nil
}

func fastOptions() SourceOptions {
	return SourceOptions{
		ProbeTimeout: time.Second,
		MinBackoff:   time.Millisecond,
		MaxBackoff:   4 * time.Millisecond,
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
