package preview

import (
	"errors"
	"os"
	"testing"
)

func TestTempStore_CreateRelease(t *testing.T) {
	store, err := NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	defer store.Close()

	h, err := store.Create("mug.jpg", []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(h.Path); err != nil {
		t.Fatalf("preview file missing: %v", err)
	}
	if store.Live() != 1 {
		t.Errorf("Live = %d, want 1", store.Live())
	}

	if err := store.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(h.Path); !os.IsNotExist(err) {
		t.Errorf("preview file still present after release")
	}
	if store.Live() != 0 {
		t.Errorf("Live = %d after release, want 0", store.Live())
	}

	if err := store.Release(h); !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("second Release = %v, want ErrAlreadyReleased", err)
	}
}

func TestTempStore_CloseRemovesDir(t *testing.T) {
	store, err := NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempStore: %v", err)
	}
	if _, err := store.Create("a.png", []byte("x"), "image/png"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(store.Dir()); !os.IsNotExist(err) {
		t.Errorf("preview directory still present after Close")
	}
}
