package gallery

import (
	"errors"
	"testing"

	"github.com/MrCodeEU/faceverify/pkg/recognition"
)

func TestNew_CopiesEmbeddings(t *testing.T) {
	emb := recognition.Vector{1, 0, 0}
	g, err := New([]Identity{{Name: "Alice", Embedding: emb}})
	if err != nil {
		t.Fatal(err)
	}

	emb[0] = 42
	if g.At(0).Embedding[0] != 1 {
		t.Error("gallery must not alias caller embeddings")
	}
}

func TestNew_DimensionMismatch(t *testing.T) {
	_, err := New([]Identity{
		{Name: "Alice", Embedding: recognition.Vector{1, 0, 0}},
		{Name: "Bob", Embedding: recognition.Vector{1, 0}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGallery_Match(t *testing.T) {
	g, err := New([]Identity{
		{Name: "Alice", Embedding: recognition.Vector{1, 0, 0}},
		{Name: "Bob", Embedding: recognition.Vector{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	m := g.Match(recognition.Vector{0.1, 0.9, 0}, recognition.DefaultThreshold)
	if !m.Matched || g.At(m.Index).Name != "Bob" {
		t.Errorf("expected Bob, got %+v", m)
	}
}

func TestGallery_NilSafe(t *testing.T) {
	var g *Gallery
	if g.Len() != 0 || g.Dimensions() != 0 || g.Identities() != nil || g.Embeddings() != nil {
		t.Error("nil gallery should behave as empty")
	}
	if g.Match(recognition.Vector{1}, 0).Matched {
		t.Error("nil gallery must never match")
	}
}
