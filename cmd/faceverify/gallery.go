package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrCodeEU/faceverify/pkg/gallery"
	"github.com/MrCodeEU/faceverify/pkg/logging"
	"github.com/MrCodeEU/faceverify/pkg/storage"
)

func galleryOptions() gallery.Options {
	return gallery.Options{
		ImageRoot:  cfg.Gallery.ImageDir,
		Dimensions: cfg.Recognition.Dimensions,
	}
}

func openStorage() (*storage.FileStorage, error) {
	return storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
}

// loadReferenceGallery returns the sealed gallery when configured, otherwise
// the encodings file. Rejected rows are logged by the loader.
func loadReferenceGallery() (*gallery.Gallery, error) {
	if cfg.Gallery.Sealed {
		fs, err := openStorage()
		if err != nil {
			return nil, err
		}
		g, meta, err := fs.LoadGallery()
		if err != nil {
			return nil, fmt.Errorf("failed to load sealed gallery: %w", err)
		}
		logging.Infof("Loaded %d identities sealed from %s at %s", g.Len(), meta.Source, meta.SealedAt.Format("2006-01-02 15:04"))
		return g, nil
	}

	g, rejected, err := gallery.LoadFile(cfg.Gallery.EncodingsFile, galleryOptions())
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		logging.Warnf("%d gallery row(s) rejected, run 'faceverify gallery' for details", len(rejected))
	}
	return g, nil
}

func cmdGallery(args []string) error {
	g, rejected, err := gallery.LoadFile(cfg.Gallery.EncodingsFile, galleryOptions())
	if err != nil {
		return err
	}
	printGallery(os.Stdout, g, rejected)
	return nil
}

func printGallery(w io.Writer, g *gallery.Gallery, rejected []gallery.Rejection) {
	if g.Len() == 0 {
		fmt.Fprintln(w, "No identities loaded. Every verification will report no match.")
	} else {
		fmt.Fprintf(w, "Identities (%d-dimensional embeddings):\n", g.Dimensions())
		for i, id := range g.Identities() {
			marker := ""
			if _, err := os.Stat(id.ImagePath); err != nil {
				marker = " (image missing)"
			}
			fmt.Fprintf(w, "  %3d  %-24s %s%s\n", i, id.Name, id.ImagePath, marker)
		}
	}

	if len(rejected) > 0 {
		fmt.Fprintf(w, "\nRejected rows (%d):\n", len(rejected))
		for _, r := range rejected {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d accepted, %d rejected\n", g.Len(), len(rejected))
}

func cmdSeal(args []string) error {
	fs, err := openStorage()
	if err != nil {
		return err
	}

	if len(args) > 0 && args[0] == "remove" {
		if err := fs.Remove(); err != nil {
			if errors.Is(err, storage.ErrGalleryNotSealed) {
				fmt.Println("No sealed gallery to remove.")
				return nil
			}
			return err
		}
		fmt.Printf("Removed %s\n", fs.Path())
		return nil
	}

	g, rejected, err := gallery.LoadFile(cfg.Gallery.EncodingsFile, galleryOptions())
	if err != nil {
		return err
	}
	if err := fs.SaveGallery(g, cfg.Gallery.EncodingsFile); err != nil {
		return err
	}

	fmt.Printf("Sealed %d identities into %s", g.Len(), fs.Path())
	if len(rejected) > 0 {
		fmt.Printf(" (%d rows rejected)", len(rejected))
	}
	fmt.Println()
	if !cfg.Gallery.Sealed {
		fmt.Println("Set gallery.sealed: true to verify against the sealed copy.")
	}
	return nil
}
