// Package camera provides camera access and continuous frame capture.
// A Source owns one device and keeps the most recent frame in a single slot;
// a Selector switches between devices without ever running two capture loops.
package camera

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"time"
)

// Frame represents a single camera frame.
type Frame struct {
	Data      []byte // JPEG encoded
	Width     int
	Height    int
	Format    string
	Seq       uint64 // assigned by the Source, starts at 1
	Timestamp time.Time
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() Frame {
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return c
}

// ToImage decodes the frame data.
func (f *Frame) ToImage() (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(f.Data))
}

// Device is an opened camera that yields frames one at a time.
// ReadFrame is called from a single goroutine; Close may be called concurrently
// with a blocked ReadFrame and must unblock it.
//
// The returned *Frame and its Data belong to the caller: a Device must not
// keep, reuse or modify them after ReadFrame returns. Source stores frames
// in its slot without copying.
type Device interface {
	ReadFrame() (*Frame, error)
	Close() error
}

// Opener acquires the device identified by id.
type Opener func(id string) (Device, error)

// DeviceInfo contains information about a camera device.
type DeviceInfo struct {
	Path   string
	Name   string
	Driver string
}

// ErrDeviceUnavailable is returned when a camera cannot be opened or never yields a frame.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// ErrNoFrame is returned when a single frame read fails. It is transient.
var ErrNoFrame = errors.New("failed to capture frame")

// ErrDeviceClosed is returned when reading from a closed device.
var ErrDeviceClosed = errors.New("camera device closed")

// ErrUnknownDevice is returned when selecting a device that is not in the usable list.
var ErrUnknownDevice = errors.New("unknown camera device")
