package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrCodeEU/faceverify/pkg/camera"
	"github.com/MrCodeEU/faceverify/pkg/logging"
	"github.com/MrCodeEU/faceverify/pkg/verify"
)

// View is a terminal display. It keeps the latest frame, optionally mirrors it
// to a preview JPEG, and prints verification results. Frame updates and result
// delivery may arrive from different goroutines.
type View struct {
	out         io.Writer
	previewPath string

	mu        sync.Mutex
	frame     camera.Frame
	hasFrame  bool
	frames    uint64
	result    verify.Result
	hasResult bool
}

// NewView creates a View writing to out. An empty previewPath disables the preview file.
func NewView(out io.Writer, previewPath string) *View {
	return &View{out: out, previewPath: previewPath}
}

// OnFrameUpdated records the latest frame.
func (v *View) OnFrameUpdated(f camera.Frame) {
	v.mu.Lock()
	v.frame = f
	v.hasFrame = true
	v.frames++
	v.mu.Unlock()

	if v.previewPath == "" {
		return
	}
	if err := writePreview(v.previewPath, f.Data); err != nil {
		logging.Component("display").WithError(err).Debug("Failed to write preview")
	}
}

// OnVerificationResult renders a result.
func (v *View) OnVerificationResult(r verify.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.result = r
	v.hasResult = true
	fmt.Fprintln(v.out, FormatResult(r))
}

// Write sends console output through the view so it never interleaves with
// a result being printed.
func (v *View) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.out.Write(p)
}

// Printf formats a console message under the view's lock.
func (v *View) Printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

// Latest returns the most recent frame seen by the view.
func (v *View) Latest() (camera.Frame, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame, v.hasFrame
}

// FramesSeen returns the number of frame updates received.
func (v *View) FramesSeen() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

// LastResult returns the most recent verification result.
func (v *View) LastResult() (verify.Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result, v.hasResult
}

// FormatResult returns the text shown for a verification result.
func FormatResult(r verify.Result) string {
	var b strings.Builder

	switch {
	case r.Matched:
		fmt.Fprintf(&b, "✅ MATCH\nName: %s\nScore: %.3f", r.Name, r.Score)
		if r.ImagePath != "" {
			if _, err := os.Stat(r.ImagePath); err == nil {
				fmt.Fprintf(&b, "\nReference: %s", r.ImagePath)
			}
		}
	case r.Reason == verify.ReasonNoFace:
		b.WriteString("❌ No face detected")
	case r.Reason == verify.ReasonNoFrame:
		b.WriteString("❌ No frame")
	default:
		b.WriteString("❌ NO MATCH")
		if !math.IsInf(r.Score, -1) {
			fmt.Fprintf(&b, "\nScore: %.3f", r.Score)
		}
	}
	return b.String()
}

// writePreview replaces path atomically so viewers never read a partial JPEG.
func writePreview(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".preview-*.jpg")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
