package main

import (
	"fmt"

	"github.com/MrCodeEU/faceverify/pkg/camera"
)

func captureConfig() camera.CaptureConfig {
	c := camera.DefaultCaptureConfig()
	c.Width = cfg.Camera.Width
	c.Height = cfg.Camera.Height
	c.FPS = cfg.Camera.FPS
	c.InputFormat = cfg.Camera.InputFormat
	return c
}

func sourceOptions() camera.SourceOptions {
	return camera.SourceOptions{
		ProbeTimeout: cfg.Camera.ProbeTimeout(),
		MinBackoff:   cfg.Camera.MinBackoff(),
		MaxBackoff:   cfg.Camera.MaxBackoff(),
	}
}

// discoverCameras probes the configured candidates, or the first max_probe
// V4L2 nodes when none are configured.
func discoverCameras(opener camera.Opener) ([]string, error) {
	candidates := cfg.Camera.Devices
	if len(candidates) == 0 {
		var err error
		candidates, err = camera.ListDevices(camera.DefaultDevicePattern, cfg.Camera.MaxProbe)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no video devices found", camera.ErrDeviceUnavailable)
	}
	return camera.Probe(opener, candidates, cfg.Camera.ProbeTimeout()), nil
}

// initialDevice picks the configured device when usable, else the first one.
func initialDevice(usable []string) string {
	for _, d := range usable {
		if d == cfg.Camera.Device {
			return d
		}
	}
	return usable[0]
}

func cmdCameras(args []string) error {
	usable, err := discoverCameras(camera.NewFFmpegOpener(captureConfig()))
	if err != nil {
		return err
	}
	if len(usable) == 0 {
		fmt.Println("No usable cameras found.")
		return nil
	}

	fmt.Println("Usable cameras:")
	for i, path := range usable {
		info := camera.Describe(path)
		name := info.Name
		if name == "" {
			name = "unknown"
		}
		fmt.Printf("  [%d] %-14s %s", i, path, name)
		if info.Driver != "" {
			fmt.Printf(" (%s)", info.Driver)
		}
		fmt.Println()
	}
	return nil
}
