// Package storage keeps a sealed copy of the gallery on disk.
// Embeddings are biometric data, so the sealed file is encrypted at rest
// with NaCl secretbox under a machine-derived key.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrCodeEU/faceverify/pkg/gallery"
	"github.com/MrCodeEU/faceverify/pkg/logging"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32

	formatVersion = 1
)

// SealedGallery is the on-disk representation of a gallery.
type SealedGallery struct {
	Version    int                `json:"version"`
	Source     string             `json:"source"`
	SealedAt   time.Time          `json:"sealed_at"`
	Dimensions int                `json:"dimensions"`
	Identities []gallery.Identity `json:"identities"`
}

// ErrGalleryNotSealed is returned when no sealed gallery exists.
var ErrGalleryNotSealed = errors.New("no sealed gallery found")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// ErrUnsupportedVersion is returned for sealed files written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported sealed gallery version")

// FileStorage stores the sealed gallery under a data directory.
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		fs.encryptionKey = deriveKey()
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives the encryption key from machine identity, tying the
// sealed gallery to this host and user.
func deriveKey() [KeySize]byte {
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("faceverify-gallery-v1")

	return sha256.Sum256([]byte(identity.String()))
}

// Path returns the sealed gallery file path.
func (fs *FileStorage) Path() string {
	name := "gallery.json"
	if fs.encryptionEnabled {
		name = "gallery.enc"
	}
	return filepath.Join(fs.dataDir, name)
}

// Exists reports whether a sealed gallery is present.
func (fs *FileStorage) Exists() bool {
	_, err := os.Stat(fs.Path())
	return err == nil
}

// SaveGallery seals g to disk, replacing any previous copy atomically.
func (fs *FileStorage) SaveGallery(g *gallery.Gallery, source string) error {
	sealed := SealedGallery{
		Version:    formatVersion,
		Source:     source,
		SealedAt:   time.Now().UTC(),
		Dimensions: g.Dimensions(),
		Identities: g.Identities(),
	}

	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("failed to marshal gallery: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt gallery: %w", err)
		}
	}

	path := fs.Path()
	tmp, err := os.CreateTemp(fs.dataDir, ".gallery-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set gallery permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace gallery: %w", err)
	}

	logging.Component("storage").Infof("Sealed %d identities into %s", g.Len(), path)
	return nil
}

// LoadGallery reads the sealed gallery back.
func (fs *FileStorage) LoadGallery() (*gallery.Gallery, *SealedGallery, error) {
	data, err := os.ReadFile(fs.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrGalleryNotSealed
		}
		return nil, nil, fmt.Errorf("failed to read sealed gallery: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt sealed gallery: %w", err)
		}
	}

	var sealed SealedGallery
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal sealed gallery: %w", err)
	}
	if sealed.Version > formatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, sealed.Version)
	}

	g, err := gallery.New(sealed.Identities)
	if err != nil {
		return nil, nil, err
	}

	logging.Component("storage").Debugf("Loaded sealed gallery with %d identities", g.Len())
	return g, &sealed, nil
}

// Remove deletes the sealed gallery.
func (fs *FileStorage) Remove() error {
	if err := os.Remove(fs.Path()); err != nil {
		if os.IsNotExist(err) {
			return ErrGalleryNotSealed
		}
		return fmt.Errorf("failed to remove sealed gallery: %w", err)
	}
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+secretbox.Overhead {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
