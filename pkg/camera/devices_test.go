package camera

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestListDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video10", "video2", "video0", "video1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	pattern := filepath.Join(dir, "video*")

	tests := []struct {
		name string
		max  int
		want []string
	}{
		{"all", 0, []string{"video0", "video1", "video2", "video10"}},
		{"capped", 2, []string{"video0", "video1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := ListDevices(pattern, tt.max)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, p := range paths {
				got = append(got, filepath.Base(p))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListDevices_BadPattern(t *testing.T) {
	if _, err := ListDevices("[", 0); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestProbe(t *testing.T) {
	o := &countingOpener{fail: map[string]bool{"/dev/video1": true}}
	usable := Probe(o.Open, []string{"/dev/video0", "/dev/video1", "/dev/video2"}, 100*time.Millisecond)

	want := []string{"/dev/video0", "/dev/video2"}
	if !reflect.DeepEqual(usable, want) {
		t.Errorf("got %v, want %v", usable, want)
	}
	if got := o.open.Load(); got != 0 {
		t.Errorf("probe left %d devices open", got)
	}
}
