package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// ImportFile copies a local audio file into the cache under songID without
// touching upstream, so no session is required. Guest installs are seeded
// this way. Importing an already-cached song is a no-op success; quota
// pressure evicts down to the warning target before the copy, the same as
// a download would.
func (e *Engine) ImportFile(songID, path, contentType string) error {
	key := StreamKey(songID)
	if _, err := e.entries.Get(key); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: failed to open import file: %v", shared.ErrStorage, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat import file: %v", shared.ErrStorage, err)
	}

	if e.monitor != nil && info.Size() > 0 && e.monitor.WouldExceed(info.Size()) {
		if _, rerr := e.RelieveQuota(); rerr != nil {
			return fmt.Errorf("%w: cache full and eviction failed: %v", shared.ErrQuotaExceeded, rerr)
		}
	}

	gen := e.Generation()
	size, sum, err := e.store.Write(gen, key, f)
	if err != nil {
		return err
	}

	now := time.Now()
	return e.entries.Put(models.CacheEntry{
		Key:         key,
		SongID:      songID,
		Kind:        models.EntryAudio,
		ContentType: contentType,
		SizeBytes:   size,
		Checksum:    sum,
		Generation:  gen,
		CreatedAt:   now,
		LastAccess:  now,
	})
}
