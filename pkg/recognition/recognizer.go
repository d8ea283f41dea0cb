// Package recognition provides face detection, embedding extraction and matching.
// Detection and embeddings come from dlib via go-face; matching is cosine similarity.
package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/faceverify/pkg/logging"
)

// DescriptorSize is the dimensionality of dlib face descriptors.
const DescriptorSize = len(face.Descriptor{})

// Vector is a face embedding.
type Vector []float32

// Face represents a detected face in an image.
type Face struct {
	BoundingBox Rectangle
	Landmarks   []Point
	Confidence  float64
	Embedding   Vector
}

// Rectangle represents a bounding box.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// Point represents a 2D point.
type Point struct {
	X, Y int
}

// Detector is the embedding provider contract.
// Detect returns every face found in a JPEG image; an empty slice means no face.
// Implementations may be slow and must be safe for use from any goroutine.
type Detector interface {
	Detect(image []byte) ([]Face, error)
}

// FaceEngine is the subset of *face.Recognizer the recognizer depends on.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// EngineFactory creates a FaceEngine from a model directory.
type EngineFactory func(modelPath string) (FaceEngine, error)

func defaultFactory(modelPath string) (FaceEngine, error) {
	return face.NewRecognizer(modelPath)
}

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// DlibRecognizer implements Detector using dlib via go-face.
type DlibRecognizer struct {
	engine    FaceEngine
	factory   EngineFactory
	modelPath string
	loaded    bool
	mu        sync.RWMutex
}

// NewRecognizer creates a new DlibRecognizer instance.
func NewRecognizer() *DlibRecognizer {
	return &DlibRecognizer{factory: defaultFactory}
}

// LoadModels loads the dlib models from modelPath. The directory should contain
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat.
func (r *DlibRecognizer) LoadModels(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	logging.Component("recognition").Infof("Loading face recognition models from: %s", modelPath)

	engine, err := r.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.engine = engine
	r.modelPath = modelPath
	r.loaded = true
	return nil
}

// IsLoaded returns true if models are loaded.
func (r *DlibRecognizer) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Dimensions returns the embedding length produced by Detect.
func (r *DlibRecognizer) Dimensions() int {
	return DescriptorSize
}

// Close releases the recognizer resources.
func (r *DlibRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.loaded = false
	return nil
}

// Detect finds all faces in a JPEG image and returns their embeddings.
func (r *DlibRecognizer) Detect(imageData []byte) ([]Face, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return nil, ErrModelNotLoaded
	}

	faces, err := r.engine.Recognize(imageData)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	result := make([]Face, 0, len(faces))
	for _, f := range faces {
		rect := f.Rectangle
		landmarks := make([]Point, len(f.Shapes))
		for i, p := range f.Shapes {
			landmarks[i] = Point{X: p.X, Y: p.Y}
		}
		embedding := make(Vector, len(f.Descriptor))
		copy(embedding, f.Descriptor[:])

		result = append(result, Face{
			BoundingBox: Rectangle{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Landmarks:  landmarks,
			Confidence: 1.0, // go-face doesn't report confidence
			Embedding:  embedding,
		})
	}

	logging.Component("recognition").Debugf("Detected %d face(s) in image", len(result))
	return result, nil
}

// Warmup runs one detection over a blank frame so the first live request
// does not pay for lazy model initialization.
func (r *DlibRecognizer) Warmup(width, height int) error {
	img := image.NewGray(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return fmt.Errorf("failed to encode warmup frame: %w", err)
	}
	_, err := r.Detect(buf.Bytes())
	return err
}
