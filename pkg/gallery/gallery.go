// Package gallery loads enrolled identities and their embeddings.
// A Gallery is built once at startup and is read-only afterwards.
package gallery

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MrCodeEU/faceverify/pkg/recognition"
)

// Identity is one enrolled person.
type Identity struct {
	Name      string             `json:"name"`
	ImageName string             `json:"image_name"`
	ImagePath string             `json:"image_path"`
	Embedding recognition.Vector `json:"embedding"`
}

// Gallery is an ordered, index-addressable set of identities.
type Gallery struct {
	identities []Identity
	embeddings []recognition.Vector
	dims       int
}

// ErrDimensionMismatch is returned when identities carry embeddings of different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// New builds a gallery from identities. All embeddings must share one length.
func New(identities []Identity) (*Gallery, error) {
	g := &Gallery{
		identities: make([]Identity, len(identities)),
		embeddings: make([]recognition.Vector, len(identities)),
	}
	for i, id := range identities {
		if i == 0 {
			g.dims = len(id.Embedding)
		} else if len(id.Embedding) != g.dims {
			return nil, fmt.Errorf("%w: identity %q has %d values, expected %d",
				ErrDimensionMismatch, id.Name, len(id.Embedding), g.dims)
		}
		emb := make(recognition.Vector, len(id.Embedding))
		copy(emb, id.Embedding)
		id.Embedding = emb
		g.identities[i] = id
		g.embeddings[i] = emb
	}
	return g, nil
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.identities)
}

// Dimensions returns the embedding length, or 0 for an empty gallery.
func (g *Gallery) Dimensions() int {
	if g == nil {
		return 0
	}
	return g.dims
}

// At returns the identity at index i.
func (g *Gallery) At(i int) Identity {
	return g.identities[i]
}

// Identities returns a copy of the identity list.
func (g *Gallery) Identities() []Identity {
	if g == nil {
		return nil
	}
	out := make([]Identity, len(g.identities))
	copy(out, g.identities)
	return out
}

// Embeddings returns the embeddings in gallery order. Callers must not modify them.
func (g *Gallery) Embeddings() []recognition.Vector {
	if g == nil {
		return nil
	}
	return g.embeddings
}

// Match runs the match engine for query against every identity.
func (g *Gallery) Match(query recognition.Vector, threshold float64) recognition.Match {
	return recognition.BestMatch(query, g.Embeddings(), threshold)
}

func resolveImage(root, name string) string {
	if root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}
