package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"fermata/internal/shared"
)

// BlobStore lays media bytes out on disk under generation directories
// (gen-0, gen-1, ...) below its root. Writes land in a temp file inside the
// destination directory and are renamed into place, so readers see a
// complete old blob or a complete new one, never a torn write.
type BlobStore struct {
	root string
}

// NewBlobStore creates a store rooted at root. Directories are created
// lazily on first write.
func NewBlobStore(root string) *BlobStore {
	return &BlobStore{root: root}
}

// Root returns the directory holding the generation directories.
func (s *BlobStore) Root() string { return s.root }

// Dir returns the directory for one generation.
func (s *BlobStore) Dir(generation int) string {
	return filepath.Join(s.root, fmt.Sprintf("gen-%d", generation))
}

// Path returns the blob path for a key within a generation. Keys become
// file names verbatim, so path separators are rejected.
func (s *BlobStore) Path(generation int, key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("%w: bad blob key %q", shared.ErrInvalidInput, key)
	}
	return filepath.Join(s.Dir(generation), key), nil
}

// Create starts a blob write for key. The caller streams bytes into the
// returned writer and finishes with Commit or Abort.
func (s *BlobStore) Create(generation int, key string) (*BlobWriter, error) {
	path, err := s.Path(generation, key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create blob dir: %v", shared.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fetch-*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp blob: %v", shared.ErrStorage, err)
	}

	return &BlobWriter{f: tmp, hash: sha256.New(), path: path}, nil
}

// Write streams r into the blob for key and returns the byte count and hex
// sha256 of what was stored. Reader failures surface as ErrNetwork since
// the source is an upstream body; writer failures keep their storage or
// quota sentinel.
func (s *BlobStore) Write(generation int, key string, r io.Reader) (int64, string, error) {
	w, err := s.Create(generation, key)
	if err != nil {
		return 0, "", err
	}

	if _, err := io.Copy(w, r); err != nil {
		w.Abort()
		if errors.Is(err, shared.ErrStorage) || errors.Is(err, shared.ErrQuotaExceeded) {
			return 0, "", err
		}
		return 0, "", fmt.Errorf("%w: fetch interrupted for %s: %v", shared.ErrNetwork, key, err)
	}

	if err := w.Commit(); err != nil {
		return 0, "", err
	}

	return w.Size(), w.Checksum(), nil
}

// Open opens the blob for key.
func (s *BlobStore) Open(generation int, key string) (*os.File, error) {
	path, err := s.Path(generation, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: blob %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open blob %s: %v", shared.ErrStorage, key, err)
	}

	return f, nil
}

// Remove deletes a blob. A missing blob is not an error.
func (s *BlobStore) Remove(generation int, key string) error {
	path, err := s.Path(generation, key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to remove blob %s: %v", shared.ErrStorage, key, err)
	}

	return nil
}

// Generations lists the generation numbers present on disk, ascending.
func (s *BlobStore) Generations() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob root: %v", shared.ErrStorage, err)
	}

	var gens []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if n, ok := parseGeneration(entry.Name()); ok {
			gens = append(gens, n)
		}
	}

	sort.Ints(gens)
	return gens, nil
}

// RemoveOtherGenerations deletes every generation directory except the kept
// one and returns the numbers removed.
func (s *BlobStore) RemoveOtherGenerations(keep int) ([]int, error) {
	gens, err := s.Generations()
	if err != nil {
		return nil, err
	}

	var removed []int
	for _, gen := range gens {
		if gen == keep {
			continue
		}
		if err := os.RemoveAll(s.Dir(gen)); err != nil {
			return removed, fmt.Errorf("%w: failed to remove generation %d: %v", shared.ErrStorage, gen, err)
		}
		removed = append(removed, gen)
	}

	return removed, nil
}

// RemoveAll deletes every generation directory.
func (s *BlobStore) RemoveAll() error {
	gens, err := s.Generations()
	if err != nil {
		return err
	}

	for _, gen := range gens {
		if err := os.RemoveAll(s.Dir(gen)); err != nil {
			return fmt.Errorf("%w: failed to remove generation %d: %v", shared.ErrStorage, gen, err)
		}
	}

	return nil
}

// SweepTemp removes temp files a crashed write left behind in a generation
// directory and reports how many were removed.
func (s *BlobStore) SweepTemp(generation int) (int, error) {
	entries, err := os.ReadDir(s.Dir(generation))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read generation dir: %v", shared.ErrStorage, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), ".fetch-") {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir(generation), entry.Name())); err != nil {
			return removed, fmt.Errorf("%w: failed to remove temp blob: %v", shared.ErrStorage, err)
		}
		removed++
	}

	return removed, nil
}

func parseGeneration(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "gen-")
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// BlobWriter accumulates one blob in a temp file next to its final path.
// Commit fsyncs and renames it into place; Abort discards it.
type BlobWriter struct {
	f    *os.File
	hash hash.Hash
	path string
	size int64
}

// Write appends to the temp file. A full device maps to ErrQuotaExceeded,
// any other failure to ErrStorage.
func (w *BlobWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if n > 0 {
		w.size += int64(n)
		w.hash.Write(p[:n])
	}
	if err != nil {
		if errors.Is(err, unix.ENOSPC) {
			return n, fmt.Errorf("%w: device full", shared.ErrQuotaExceeded)
		}
		return n, fmt.Errorf("%w: blob write failed: %v", shared.ErrStorage, err)
	}
	return n, nil
}

// Size returns the bytes written so far.
func (w *BlobWriter) Size() int64 { return w.size }

// Checksum returns the hex sha256 of the bytes written so far.
func (w *BlobWriter) Checksum() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

// Commit fsyncs the temp file and renames it over the final path.
func (w *BlobWriter) Commit() error {
	err := w.f.Sync()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(w.f.Name())
		if errors.Is(err, unix.ENOSPC) {
			return fmt.Errorf("%w: device full", shared.ErrQuotaExceeded)
		}
		return fmt.Errorf("%w: failed to finalize blob: %v", shared.ErrStorage, err)
	}

	if err := os.Rename(w.f.Name(), w.path); err != nil {
		os.Remove(w.f.Name())
		return fmt.Errorf("%w: failed to finalize blob: %v", shared.ErrStorage, err)
	}

	return nil
}

// Abort closes and deletes the temp file.
func (w *BlobWriter) Abort() {
	w.f.Close()
	os.Remove(w.f.Name())
}
