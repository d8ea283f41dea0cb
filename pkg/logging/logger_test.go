package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func captureLogger(t *testing.T, level logrus.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Logger = logrus.New()
	Logger.SetOutput(&buf)
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &buf
}

func TestInit(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"info level", "info", logrus.InfoLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"warning alias", "warning", logrus.WarnLevel},
		{"error level", "error", logrus.ErrorLevel},
		{"mixed case", " DEBUG ", logrus.DebugLevel},
		{"unknown level defaults to info", "unknown", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = logrus.New()
			if err := Init(tt.level, ""); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if Logger.GetLevel() != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, Logger.GetLevel())
			}
		})
	}
}

func TestInit_WithLogFile(t *testing.T) {
	Logger = logrus.New()
	logFile := filepath.Join(t.TempDir(), "subdir", "nested", "faceverify.log")

	if err := Init("info", logFile); err != nil {
		t.Fatalf("Init with log file failed: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Infof("hello %s", "file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file missing message, got %q", string(data))
	}
}

func TestClose_WithoutFile(t *testing.T) {
	Logger = logrus.New()
	if err := Close(); err != nil {
		t.Errorf("Close without file should be a no-op, got %v", err)
	}
}

func TestSetLevel(t *testing.T) {
	Logger = logrus.New()

	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			SetLevel(tt.level)
			if Logger.GetLevel() != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, Logger.GetLevel())
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	buf := captureLogger(t, logrus.DebugLevel)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Infof", func() { Infof("info %d", 42) }, "info 42"},
		{"Warnf", func() { Warnf("warn %s", "test") }, "warn test"},
		{"Errorf", func() { Errorf("error %s", "occurred") }, "error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("%s message not logged, got %q", tt.name, buf.String())
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	buf := captureLogger(t, logrus.InfoLevel)

	WithFields(Fields{
		"device": "/dev/video0",
		"seq":    7,
	}).Info("frame captured")

	output := buf.String()
	if !strings.Contains(output, "device=/dev/video0") {
		t.Error("device field not in output")
	}
	if !strings.Contains(output, "seq=7") {
		t.Error("seq field not in output")
	}
}

func TestWithFieldAndError(t *testing.T) {
	buf := captureLogger(t, logrus.InfoLevel)

	WithField("key", "value").Info("test message")
	if !strings.Contains(buf.String(), "key=value") {
		t.Error("field not in output")
	}

	buf.Reset()
	WithError(&testError{msg: "camera gone"}).Error("operation failed")
	if !strings.Contains(buf.String(), "camera gone") {
		t.Error("error not in output")
	}
}

func TestComponent(t *testing.T) {
	buf := captureLogger(t, logrus.InfoLevel)

	Component("verify").Info("initialized")

	output := buf.String()
	if !strings.Contains(output, "component=verify") {
		t.Error("component field not in output")
	}
	if !strings.Contains(output, "initialized") {
		t.Error("message not in output")
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	buf := captureLogger(t, logrus.ErrorLevel)

	Debugf("debug")
	Infof("info")
	Warnf("warn")
	if buf.Len() > 0 {
		t.Errorf("nothing below error should be logged, got %q", buf.String())
	}

	Errorf("error")
	if buf.Len() == 0 {
		t.Error("Error should be logged at Error level")
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func BenchmarkInfof(b *testing.B) {
	Logger = logrus.New()
	Logger.SetOutput(&bytes.Buffer{})
	Logger.SetLevel(logrus.InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Infof("benchmark message %d", i)
	}
}

func BenchmarkComponent(b *testing.B) {
	Logger = logrus.New()
	Logger.SetOutput(&bytes.Buffer{})
	Logger.SetLevel(logrus.InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Component("camera").WithField("seq", i).Info("message")
	}
}
