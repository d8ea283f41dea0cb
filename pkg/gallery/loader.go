package gallery

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/MrCodeEU/faceverify/pkg/logging"
	"github.com/MrCodeEU/faceverify/pkg/recognition"
)

// Rejection reasons. The first four are written by the enrollment pipeline
// into its rejected rows output; the rest are raised while loading.
const (
	ReasonInvalidRow        = "invalid row"
	ReasonImageNotFound     = "image not found"
	ReasonImageReadError    = "image read error"
	ReasonNoFaceDetected    = "no face detected"
	ReasonMalformedEncoding = "malformed encoding"
	ReasonDimensionMismatch = "dimension mismatch"
)

// Required CSV columns.
const (
	ColumnName     = "name"
	ColumnImage    = "image_name"
	ColumnEncoding = "encoding"
)

// ErrGalleryLoad is returned when the gallery source cannot be read at all.
var ErrGalleryLoad = errors.New("failed to load gallery")

// Rejection describes one row excluded from the gallery.
type Rejection struct {
	Line      int
	Name      string
	ImageName string
	Reason    string
	Err       error
}

func (r Rejection) String() string {
	if r.Err != nil {
		return fmt.Sprintf("line %d (%s): %s: %v", r.Line, r.Name, r.Reason, r.Err)
	}
	return fmt.Sprintf("line %d (%s): %s", r.Line, r.Name, r.Reason)
}

// Options controls how rows are turned into identities.
type Options struct {
	// ImageRoot is joined with relative image names.
	ImageRoot string
	// Dimensions is the expected embedding length; 0 infers it from the first valid row.
	Dimensions int
}

// LoadFile loads a gallery from an encodings CSV file.
func LoadFile(path string, opts Options) (*Gallery, []Rejection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGalleryLoad, err)
	}
	defer f.Close()

	g, rejected, err := Load(f, opts)
	if err != nil {
		return nil, nil, err
	}

	logging.Component("gallery").Infof("Loaded %d identities from %s (%d rejected)", g.Len(), path, len(rejected))
	return g, rejected, nil
}

// Load reads name,image_name,encoding records. Malformed rows are reported as
// rejections and skipped; only an unreadable source or header is an error.
func Load(r io.Reader, opts Options) (*Gallery, []Rejection, error) {
	log := logging.Component("gallery")

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header: %v", ErrGalleryLoad, err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		identities []Identity
		rejected   []Rejection
		dims       = opts.Dimensions
	)

	reject := func(rej Rejection) {
		rejected = append(rejected, rej)
		log.WithFields(logging.Fields{
			"line":   rej.Line,
			"name":   rej.Name,
			"reason": rej.Reason,
		}).Warn("Skipping gallery row")
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				reject(Rejection{Line: parseErr.StartLine, Reason: ReasonInvalidRow, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrGalleryLoad, err)
		}

		line, _ := reader.FieldPos(0)
		name := field(record, cols[ColumnName])
		image := field(record, cols[ColumnImage])
		rej := Rejection{Line: line, Name: name, ImageName: image}

		if isInvalid(name) || isInvalid(image) {
			rej.Reason = ReasonInvalidRow
			reject(rej)
			continue
		}

		embedding, err := ParseEncoding(field(record, cols[ColumnEncoding]))
		if err != nil {
			rej.Reason = ReasonMalformedEncoding
			rej.Err = err
			reject(rej)
			continue
		}

		if dims == 0 {
			dims = len(embedding)
		}
		if len(embedding) != dims {
			rej.Reason = ReasonDimensionMismatch
			rej.Err = fmt.Errorf("got %d values, expected %d", len(embedding), dims)
			reject(rej)
			continue
		}

		identities = append(identities, Identity{
			Name:      strings.TrimSpace(name),
			ImageName: strings.TrimSpace(image),
			ImagePath: resolveImage(opts.ImageRoot, strings.TrimSpace(image)),
			Embedding: embedding,
		})
	}

	g, err := New(identities)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGalleryLoad, err)
	}
	return g, rejected, nil
}

// ParseEncoding parses a comma-separated list of finite floats.
func ParseEncoding(s string) (recognition.Vector, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, errors.New("empty encoding")
	}

	parts := strings.Split(s, ",")
	vec := make(recognition.Vector, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d: %q is not a finite number", i, strings.TrimSpace(p))
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// FormatEncoding is the inverse of ParseEncoding.
func FormatEncoding(v recognition.Vector) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{ColumnName, ColumnImage, ColumnEncoding} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrGalleryLoad, required)
		}
	}
	return cols, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

// isInvalid matches the values the enrollment pipeline treats as missing.
func isInvalid(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "undefined" || v == "null"
}
