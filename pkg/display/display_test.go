package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/camera"
	"github.com/MrCodeEU/faceverify/pkg/verify"
)

type stepFrames struct {
	mu    sync.Mutex
	frame *camera.Frame
	calls int
}

func (s *stepFrames) Snapshot() (camera.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.frame == nil {
		return camera.Frame{}, false
	}
	return s.frame.Clone(), true
}

func (s *stepFrames) set(f *camera.Frame) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
}

func (s *stepFrames) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPoller_DeliversOnlyNewFrames(t *testing.T) {
	frames := &stepFrames{}
	got := make(chan uint64, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Poller{Interval: time.Millisecond}.Run(ctx, frames, func(f camera.Frame) {
			got <- f.Seq
		})
	}()

	// Nothing is delivered while the slot is empty.
	deadline := time.Now().Add(time.Second)
	for frames.Calls() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(got) != 0 {
		t.Fatal("frame delivered from an empty slot")
	}

	ts := time.Now()
	frames.set(&camera.Frame{Data: []byte{1}, Seq: 1, Timestamp: ts})
	if seq := <-got; seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}

	// The same frame is not delivered twice.
	calls := frames.Calls()
	for frames.Calls() < calls+5 && time.Now().Before(deadline.Add(time.Second)) {
		time.Sleep(time.Millisecond)
	}
	if len(got) != 0 {
		t.Fatal("unchanged frame delivered again")
	}

	frames.set(&camera.Frame{Data: []byte{2}, Seq: 2, Timestamp: ts.Add(time.Millisecond)})
	if seq := <-got; seq != 2 {
		t.Fatalf("expected seq 2, got %d", seq)
	}

	// A switched camera restarts at seq 1 and is still delivered.
	frames.set(&camera.Frame{Data: []byte{3}, Seq: 1, Timestamp: ts.Add(2 * time.Millisecond)})
	if seq := <-got; seq != 1 {
		t.Fatalf("expected restarted seq 1, got %d", seq)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestView_FrameUpdates(t *testing.T) {
	preview := filepath.Join(t.TempDir(), "preview.jpg")
	v := NewView(&bytes.Buffer{}, preview)

	if _, ok := v.Latest(); ok {
		t.Error("expected no frame initially")
	}

	v.OnFrameUpdated(camera.Frame{Data: []byte("jpeg-1"), Seq: 1})
	v.OnFrameUpdated(camera.Frame{Data: []byte("jpeg-2"), Seq: 2})

	f, ok := v.Latest()
	if !ok || f.Seq != 2 {
		t.Errorf("expected latest seq 2, got %d", f.Seq)
	}
	if v.FramesSeen() != 2 {
		t.Errorf("expected 2 frames seen, got %d", v.FramesSeen())
	}

	data, err := os.ReadFile(preview)
	if err != nil {
		t.Fatalf("preview not written: %v", err)
	}
	if string(data) != "jpeg-2" {
		t.Errorf("unexpected preview contents %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(preview), ".preview-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestView_OnVerificationResult(t *testing.T) {
	var out bytes.Buffer
	v := NewView(&out, "")

	if _, ok := v.LastResult(); ok {
		t.Error("expected no result initially")
	}

	r := verify.Result{Matched: true, Name: "Alice", Index: 0, Score: 0.91}
	v.OnVerificationResult(r)

	last, ok := v.LastResult()
	if !ok || last.Name != "Alice" {
		t.Errorf("unexpected last result %+v", last)
	}
	if !strings.Contains(out.String(), "✅ MATCH\nName: Alice\nScore: 0.910") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestFormatResult(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "alice.jpg")
	if err := os.WriteFile(img, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		result  verify.Result
		want    string
		notWant string
	}{
		{
			name:   "match with reference image",
			result: verify.Result{Matched: true, Name: "Alice", Score: 0.8765, ImagePath: img},
			want:   "✅ MATCH\nName: Alice\nScore: 0.877\nReference: " + img,
		},
		{
			name:    "match with missing image",
			result:  verify.Result{Matched: true, Name: "Bob", Score: 0.75, ImagePath: filepath.Join(dir, "missing.jpg")},
			want:    "✅ MATCH\nName: Bob\nScore: 0.750",
			notWant: "Reference",
		},
		{
			name:   "no match",
			result: verify.Result{Reason: verify.ReasonNoMatch, Score: 0.4},
			want:   "❌ NO MATCH\nScore: 0.400",
		},
		{
			name:    "no match against empty gallery",
			result:  verify.Result{Reason: verify.ReasonNoMatch, Score: math.Inf(-1)},
			want:    "❌ NO MATCH",
			notWant: "Score",
		},
		{
			name:   "no face",
			result: verify.Result{Reason: verify.ReasonNoFace, Score: math.Inf(-1)},
			want:   "❌ No face detected",
		},
		{
			name:   "no frame",
			result: verify.Result{Reason: verify.ReasonNoFrame, Score: math.Inf(-1)},
			want:   "❌ No frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatResult(tt.result)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("got %q, want prefix %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("did not expect %q in %q", tt.notWant, got)
			}
		})
	}
}

func TestView_ConcurrentDelivery(t *testing.T) {
	var out syncBuffer
	v := NewView(&out, "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			v.OnFrameUpdated(camera.Frame{Seq: uint64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			v.OnVerificationResult(verify.Result{Reason: verify.ReasonNoFrame})
		}
	}()
	wg.Wait()

	if v.FramesSeen() != 200 {
		t.Errorf("expected 200 frames, got %d", v.FramesSeen())
	}
	if n := strings.Count(out.String(), "❌ No frame"); n != 50 {
		t.Errorf("expected 50 rendered results, got %d", n)
	}
}

func TestView_ConsoleOutputDoesNotOverlapResults(t *testing.T) {
	out := &overlapWriter{}
	v := NewView(out, "")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			v.OnVerificationResult(verify.Result{Reason: verify.ReasonNoFace})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			fmt.Fprintf(v, "Using camera /dev/video%d\n", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			v.Printf("Unknown command %q\n", "x")
		}
	}()
	wg.Wait()

	if n := out.overlaps.Load(); n != 0 {
		t.Errorf("expected serialized writes, saw %d overlapping", n)
	}
	got := out.String()
	if n := strings.Count(got, "❌ No face detected\n"); n != 50 {
		t.Errorf("expected 50 intact results, got %d", n)
	}
	if n := strings.Count(got, "Using camera /dev/video"); n != 50 {
		t.Errorf("expected 50 console lines, got %d", n)
	}
	if n := strings.Count(got, "Unknown command \"x\"\n"); n != 50 {
		t.Errorf("expected 50 Printf lines, got %d", n)
	}
}

// overlapWriter counts writes that start while another is still running.
type overlapWriter struct {
	active   atomic.Int32
	overlaps atomic.Int32

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *overlapWriter) Write(p []byte) (int, error) {
	if w.active.Add(1) > 1 {
		w.overlaps.Add(1)
	}
	defer w.active.Add(-1)
	time.Sleep(50 * time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *overlapWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
