// Package config provides configuration management for FaceVerify.
// It loads configuration from YAML files with sensible defaults and applies
// FACEVERIFY_* environment overrides, optionally read from a .env file.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvCameraDevice = "FACEVERIFY_CAMERA_DEVICE"
	EnvThreshold    = "FACEVERIFY_THRESHOLD"
	EnvModelPath    = "FACEVERIFY_MODEL_PATH"
	EnvGalleryFile  = "FACEVERIFY_GALLERY_FILE"
	EnvImageDir     = "FACEVERIFY_IMAGE_DIR"
	EnvLogLevel     = "FACEVERIFY_LOG_LEVEL"
)

// Config holds all FaceVerify configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Display     DisplayConfig     `yaml:"display"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig holds camera settings.
type CameraConfig struct {
	Device         string   `yaml:"device"`  // initial selection, empty = first usable
	Devices        []string `yaml:"devices"` // explicit candidates, empty = enumerate
	MaxProbe       int      `yaml:"max_probe"`
	Width          int      `yaml:"width"`
	Height         int      `yaml:"height"`
	FPS            int      `yaml:"fps"`
	InputFormat    string   `yaml:"input_format"`
	ProbeTimeoutMS int      `yaml:"probe_timeout_ms"`
	MinBackoffMS   int      `yaml:"min_backoff_ms"`
	MaxBackoffMS   int      `yaml:"max_backoff_ms"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	ModelPath  string  `yaml:"model_path"`
	Threshold  float64 `yaml:"threshold"`
	Dimensions int     `yaml:"dimensions"`
}

// GalleryConfig holds reference gallery settings.
type GalleryConfig struct {
	EncodingsFile string `yaml:"encodings_file"`
	ImageDir      string `yaml:"image_dir"`
	Sealed        bool   `yaml:"sealed"`
}

// DisplayConfig holds display settings.
type DisplayConfig struct {
	RefreshIntervalMS int    `yaml:"refresh_interval_ms"`
	PreviewPath       string `yaml:"preview_path"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/faceverify")
	return &Config{
		Camera: CameraConfig{
			MaxProbe:       6,
			Width:          640,
			Height:         480,
			FPS:            30,
			InputFormat:    "mjpeg",
			ProbeTimeoutMS: 3000,
			MinBackoffMS:   10,
			MaxBackoffMS:   250,
		},
		Recognition: RecognitionConfig{
			ModelPath:  filepath.Join(dataDir, "models"),
			Threshold:  0.72,
			Dimensions: 128,
		},
		Gallery: GalleryConfig{
			EncodingsFile: "face_encodings.csv",
			ImageDir:      "images",
		},
		Display: DisplayConfig{
			RefreshIntervalMS: 30,
		},
		Storage: StorageConfig{
			DataDir:           dataDir,
			EncryptionEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault loads an optional .env file, then the first config file found
// in the default locations, then applies environment overrides.
func LoadDefault() (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	config, err := loadFirst(defaultPaths())
	if err != nil {
		return config, err
	}
	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

func defaultPaths() []string {
	paths := []string{"/etc/faceverify/faceverify.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config/faceverify/faceverify.yaml"))
	}
	return paths
}

func loadFirst(paths []string) (*Config, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return DefaultConfig(), nil
}

// ApplyEnv overrides settings from FACEVERIFY_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvCameraDevice); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv(EnvThreshold); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvThreshold, v, err)
		}
		c.Recognition.Threshold = t
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Recognition.ModelPath = v
	}
	if v := os.Getenv(EnvGalleryFile); v != "" {
		c.Gallery.EncodingsFile = v
	}
	if v := os.Getenv(EnvImageDir); v != "" {
		c.Gallery.ImageDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}
	if c.Camera.MaxProbe <= 0 {
		return fmt.Errorf("max_probe must be positive, got %d", c.Camera.MaxProbe)
	}
	if c.Camera.ProbeTimeoutMS <= 0 {
		return fmt.Errorf("probe_timeout_ms must be positive, got %d", c.Camera.ProbeTimeoutMS)
	}
	if c.Camera.MinBackoffMS <= 0 || c.Camera.MaxBackoffMS < c.Camera.MinBackoffMS {
		return fmt.Errorf("invalid backoff bounds: min %dms, max %dms", c.Camera.MinBackoffMS, c.Camera.MaxBackoffMS)
	}

	if math.IsNaN(c.Recognition.Threshold) || c.Recognition.Threshold < -1 || c.Recognition.Threshold > 1 {
		return fmt.Errorf("threshold must be between -1 and 1, got %f", c.Recognition.Threshold)
	}
	if c.Recognition.Dimensions < 0 {
		return fmt.Errorf("dimensions must not be negative, got %d", c.Recognition.Dimensions)
	}

	if !c.Gallery.Sealed && c.Gallery.EncodingsFile == "" {
		return fmt.Errorf("gallery.encodings_file is required unless gallery.sealed is set")
	}

	if c.Display.RefreshIntervalMS <= 0 {
		return fmt.Errorf("refresh_interval_ms must be positive, got %d", c.Display.RefreshIntervalMS)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Camera.Device = ExpandPath(c.Camera.Device)
	for i, d := range c.Camera.Devices {
		c.Camera.Devices[i] = ExpandPath(d)
	}
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Gallery.EncodingsFile = ExpandPath(c.Gallery.EncodingsFile)
	c.Gallery.ImageDir = ExpandPath(c.Gallery.ImageDir)
	c.Display.PreviewPath = ExpandPath(c.Display.PreviewPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// ProbeTimeout returns the camera probe timeout.
func (c *CameraConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// MinBackoff returns the lower bound of the capture retry pause.
func (c *CameraConfig) MinBackoff() time.Duration {
	return time.Duration(c.MinBackoffMS) * time.Millisecond
}

// MaxBackoff returns the upper bound of the capture retry pause.
func (c *CameraConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// RefreshInterval returns the display polling interval.
func (d *DisplayConfig) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalMS) * time.Millisecond
}
