package camera

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/logging"
)

// DefaultDevicePattern matches V4L2 capture nodes.
const DefaultDevicePattern = "/dev/video*"

// ListDevices returns up to max device paths matching pattern, in numeric order.
func ListDevices(pattern string, max int) ([]string, error) {
	if pattern == "" {
		pattern = DefaultDevicePattern
	}

	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid device pattern %q: %w", pattern, err)
	}

	sort.Slice(paths, func(i, j int) bool {
		ni, nj := deviceIndex(paths[i]), deviceIndex(paths[j])
		if ni != nj {
			return ni < nj
		}
		return paths[i] < paths[j]
	})

	if max > 0 && len(paths) > max {
		paths = paths[:max]
	}
	return paths, nil
}

// deviceIndex extracts the trailing number of a device path.
func deviceIndex(path string) int {
	base := filepath.Base(path)
	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(base[i:])
	if err != nil {
		return -1
	}
	return n
}

// Probe opens each candidate, reads one frame and releases it again.
// It returns the candidates that produced a frame, in input order.
func Probe(opener Opener, candidates []string, timeout time.Duration) []string {
	log := logging.Component("camera")
	opts := DefaultSourceOptions()
	opts.ProbeTimeout = timeout

	var usable []string
	for _, id := range candidates {
		src, err := Open(opener, id, opts)
		if err != nil {
			log.WithError(err).Debugf("Skipping %s", id)
			continue
		}
		src.Stop()
		usable = append(usable, id)
	}

	log.Infof("Usable cameras: %s", strings.Join(usable, ", "))
	return usable
}
