package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/MrCodeEU/faceverify/pkg/camera"
	"github.com/MrCodeEU/faceverify/pkg/display"
	"github.com/MrCodeEU/faceverify/pkg/logging"
	"github.com/MrCodeEU/faceverify/pkg/recognition"
	"github.com/MrCodeEU/faceverify/pkg/verify"
)

// cameraControl is the part of camera.Selector the console drives.
type cameraControl interface {
	Select(id string) error
	Devices() []string
	Current() string
}

type triggerer interface {
	Trigger() bool
}

func cmdVerify(args []string) error {
	g, err := loadReferenceGallery()
	if err != nil {
		return err
	}

	rec := recognition.NewRecognizer()
	if err := rec.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return fmt.Errorf("%w (run 'faceverify download-models')", err)
	}
	defer rec.Close()

	if g.Len() > 0 && g.Dimensions() != rec.Dimensions() {
		return fmt.Errorf("gallery embeddings have %d values but the recognizer produces %d", g.Dimensions(), rec.Dimensions())
	}
	if err := rec.Warmup(cfg.Camera.Width, cfg.Camera.Height); err != nil {
		logging.WithError(err).Warn("Recognizer warmup failed")
	}

	opener := camera.NewFFmpegOpener(captureConfig())
	usable, err := discoverCameras(opener)
	if err != nil {
		return err
	}
	if len(usable) == 0 {
		return fmt.Errorf("%w: no camera produced a frame", camera.ErrDeviceUnavailable)
	}

	sel := camera.NewSelector(opener, usable, sourceOptions())
	defer sel.Close()
	if err := sel.Select(initialDevice(usable)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := display.NewView(os.Stdout, cfg.Display.PreviewPath)
	coord := verify.New(sel, rec, g, view, verify.WithThreshold(cfg.Recognition.Threshold))

	poller := display.Poller{Interval: cfg.Display.RefreshInterval()}
	go func() { _ = poller.Run(ctx, sel, view.OnFrameUpdated) }()

	view.Printf("Loaded %d identities, camera %s, threshold %.2f\n", g.Len(), sel.Current(), cfg.Recognition.Threshold)
	err = runConsole(ctx, os.Stdin, view, sel, coord)

	cancel()
	coord.Wait()
	if st, ok := sel.Stats(); ok {
		logging.Debugf("Captured %d frames from %s (%d read failures)", st.Captured, st.Device, st.Failures)
	}
	return err
}

// runConsole reads commands from in until quit, EOF or ctx is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, cams cameraControl, trig triggerer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	printConsoleHelp(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if handleLine(line, out, cams, trig) {
				return nil
			}
		}
	}
}

// handleLine executes one console command and reports whether to quit.
func handleLine(line string, out io.Writer, cams cameraControl, trig triggerer) bool {
	fields := strings.Fields(line)
	cmd := "v"
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}

	switch cmd {
	case "v", "verify":
		if !trig.Trigger() {
			fmt.Fprintln(out, "Verification already in progress")
		}
	case "c", "camera":
		if len(fields) < 2 {
			fmt.Fprintln(out, "Usage: c <device or index>")
			return false
		}
		id := resolveDevice(fields[1], cams.Devices())
		if err := cams.Select(id); err != nil {
			fmt.Fprintf(out, "Failed to switch camera: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Using camera %s\n", id)
	case "l", "list":
		for i, d := range cams.Devices() {
			marker := " "
			if d == cams.Current() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s [%d] %s\n", marker, i, d)
		}
	case "q", "quit", "exit":
		return true
	case "h", "help", "?":
		printConsoleHelp(out)
	default:
		fmt.Fprintf(out, "Unknown command %q\n", cmd)
	}
	return false
}

// resolveDevice maps a list index to its device; anything else is taken as an id.
func resolveDevice(arg string, devices []string) string {
	for _, d := range devices {
		if d == arg {
			return d
		}
	}
	if i, err := strconv.Atoi(arg); err == nil && i >= 0 && i < len(devices) {
		return devices[i]
	}
	return arg
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "  <enter>, v    verify the current frame")
	fmt.Fprintln(out, "  c <device>    switch camera (path or list index)")
	fmt.Fprintln(out, "  l             list cameras")
	fmt.Fprintln(out, "  q             quit")
}
