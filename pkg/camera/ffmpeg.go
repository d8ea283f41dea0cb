package camera

import (
	"bufio"
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/logging"
)

// execCommand is swapped in tests.
var execCommand = exec.Command

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const (
	initialBufferSize = 256 << 10
	maxFrameSize      = 16 << 20
)

// CaptureConfig holds ffmpeg capture settings.
type CaptureConfig struct {
	FFmpegPath  string
	Width       int
	Height      int
	FPS         int
	InputFormat string // v4l2 input format, e.g. "mjpeg" or "yuyv422"
}

// DefaultCaptureConfig returns 640x480 MJPEG at 30 FPS.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FFmpegPath:  "ffmpeg",
		Width:       640,
		Height:      480,
		FPS:         30,
		InputFormat: "mjpeg",
	}
}

// FFmpegDevice reads an MJPEG stream from a V4L2 device through ffmpeg.
// When the ffmpeg process exits the next ReadFrame fails with ErrNoFrame and
// the following one restarts the stream.
type FFmpegDevice struct {
	path string
	cfg  CaptureConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stream  *bufio.Scanner
	stderr  *bytes.Buffer
	reading bool
	closed  bool
}

// NewFFmpegOpener returns an Opener that starts an ffmpeg stream per device.
func NewFFmpegOpener(cfg CaptureConfig) Opener {
	return func(id string) (Device, error) {
		return OpenFFmpeg(id, cfg)
	}
}

// OpenFFmpeg starts streaming from the device at path.
func OpenFFmpeg(path string, cfg CaptureConfig) (*FFmpegDevice, error) {
	d := &FFmpegDevice{path: path, cfg: cfg}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.startLocked(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *FFmpegDevice) args() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
	}
	if d.cfg.InputFormat != "" {
		args = append(args, "-input_format", d.cfg.InputFormat)
	}
	if d.cfg.Width > 0 && d.cfg.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height))
	}
	if d.cfg.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(d.cfg.FPS))
	}
	args = append(args, "-i", d.path, "-f", "image2pipe")
	if d.cfg.InputFormat == "mjpeg" {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-vcodec", "mjpeg", "-q:v", "5")
	}
	return append(args, "pipe:1")
}

func (d *FFmpegDevice) startLocked() error {
	bin := d.cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := execCommand(bin, d.args()...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg for %s: %w", d.path, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxFrameSize)
	scanner.Split(splitJPEG)

	d.cmd = cmd
	d.stream = scanner
	d.stderr = stderr

	logging.Component("camera").Debugf("Started ffmpeg stream for %s", d.path)
	return nil
}

// stopLocked kills the ffmpeg process, reaps it and returns its stderr tail.
// Callers must not hold a Scan in flight on d.stream.
func (d *FFmpegDevice) stopLocked() string {
	if d.cmd == nil {
		return ""
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()

	tail := strings.TrimSpace(d.stderr.String())
	d.cmd = nil
	d.stream = nil
	d.stderr = nil
	return tail
}

// ReadFrame blocks until the next JPEG frame is available.
func (d *FFmpegDevice) ReadFrame() (*Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	if d.stream == nil {
		if err := d.startLocked(); err != nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
	}
	stream := d.stream
	d.reading = true
	d.mu.Unlock()

	ok := stream.Scan()

	d.mu.Lock()
	d.reading = false
	if d.closed {
		// Close only killed the process; reap it now that Scan has returned.
		d.stopLocked()
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	if !ok {
		scanErr := stream.Err()
		tail := d.stopLocked()
		d.mu.Unlock()

		if scanErr == nil {
			scanErr = io.EOF
		}
		if tail != "" {
			return nil, fmt.Errorf("%w: stream ended: %v: %s", ErrNoFrame, scanErr, tail)
		}
		return nil, fmt.Errorf("%w: stream ended: %v", ErrNoFrame, scanErr)
	}

	data := make([]byte, len(stream.Bytes()))
	copy(data, stream.Bytes())
	d.mu.Unlock()

	frame := &Frame{
		Data:      data,
		Width:     d.cfg.Width,
		Height:    d.cfg.Height,
		Format:    "JPEG",
		Timestamp: time.Now(),
	}
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width = cfg.Width
		frame.Height = cfg.Height
	}
	return frame, nil
}

// Close stops the stream and releases the device. Safe to call more than once.
// A ReadFrame blocked on the stream returns ErrDeviceClosed and reaps the
// process itself.
func (d *FFmpegDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.reading {
		if d.cmd != nil && d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
		return nil
	}
	d.stopLocked()
	return nil
}

// splitJPEG is a bufio.SplitFunc that yields complete JPEG images delimited
// by SOI/EOI markers, discarding any bytes between images.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it starts a marker.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// Describe queries v4l2-ctl for the device name and driver.
// Missing tools yield a DeviceInfo with only the path set.
func Describe(path string) DeviceInfo {
	info := DeviceInfo{Path: path}

	out, err := execCommand("v4l2-ctl", "--device", path, "--info").Output()
	if err != nil {
		return info
	}

	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Driver name":
			info.Driver = strings.TrimSpace(value)
		case "Card type":
			info.Name = strings.TrimSpace(value)
		}
	}
	return info
}
