// Package preview manages revocable preview resources for ingested assets.
// Every handle created by a Store must be released exactly once.
package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyReleased is returned when a handle is released a second time.
var ErrAlreadyReleased = errors.New("preview already released")

// Handle references a renderable preview of an asset.
type Handle struct {
	ID       string
	Path     string
	MIMEType string
}

// Store allocates and releases previews.
type Store interface {
	Create(name string, data []byte, mimeType string) (*Handle, error)
	Release(h *Handle) error
}

// TempStore writes previews as files in a private temporary directory so an
// external viewer can open them.
type TempStore struct {
	dir string

	mu   sync.Mutex
	live map[string]*Handle
}

// NewTempStore creates a store rooted in a new directory under parent.
// An empty parent uses the system temp directory.
func NewTempStore(parent string) (*TempStore, error) {
	dir, err := os.MkdirTemp(parent, "etsyflow-previews-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	return &TempStore{dir: dir, live: make(map[string]*Handle)}, nil
}

// Dir returns the directory holding the previews.
func (s *TempStore) Dir() string {
	return s.dir
}

// Create writes data to a new preview file.
func (s *TempStore) Create(name string, data []byte, mimeType string) (*Handle, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+extensionFor(mimeType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write preview for %s: %w", name, err)
	}

	h := &Handle{ID: id, Path: path, MIMEType: mimeType}
	s.mu.Lock()
	s.live[id] = h
	s.mu.Unlock()

	log.Debug().Str("name", name).Str("preview", path).Msg("Preview created")
	return h, nil
}

// Release deletes the preview file. A second release of the same handle
// returns ErrAlreadyReleased.
func (s *TempStore) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	_, ok := s.live[h.ID]
	delete(s.live, h.ID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyReleased, h.ID)
	}

	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview %s: %w", h.Path, err)
	}
	return nil
}

// Live returns the number of unreleased previews.
func (s *TempStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close releases anything still live and removes the directory.
func (s *TempStore) Close() error {
	s.mu.Lock()
	leaked := len(s.live)
	s.live = make(map[string]*Handle)
	s.mu.Unlock()
	if leaked > 0 {
		log.Warn().Int("count", leaked).Msg("Previews still live at close")
	}
	return os.RemoveAll(s.dir)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
