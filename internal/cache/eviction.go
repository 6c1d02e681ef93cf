package cache

import (
	"errors"
	"fmt"

	"fermata/internal/models"
	"fermata/internal/quota"
	"fermata/internal/shared"
)

// evictBatch is how many LRU candidates one sweep pass examines.
const evictBatch = 32

// MarkActive protects a key from eviction while it backs live playback.
// Calls nest; each MarkActive needs a matching ClearActive.
func (e *Engine) MarkActive(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[key]++
}

// ClearActive releases one MarkActive hold on a key.
func (e *Engine) ClearActive(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[key] <= 1 {
		delete(e.active, key)
	} else {
		e.active[key]--
	}
}

func (e *Engine) isActive(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[key] > 0
}

// PinSong pins or unpins every entry belonging to a song. Pinned entries
// are skipped by LRU eviction until unpinned.
func (e *Engine) PinSong(songID string, pinned bool) error {
	return e.entries.PinBySong(songID, pinned)
}

// Evict removes one entry and its blob.
func (e *Engine) Evict(key string) error {
	entry, err := e.entries.Get(key)
	if err != nil {
		return err
	}
	return e.evictEntry(entry)
}

// EvictSong removes every entry belonging to a song.
func (e *Engine) EvictSong(songID string) error {
	entries, err := e.entries.BySong(songID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: song %s has no cache entries", shared.ErrNotFound, songID)
	}

	for _, entry := range entries {
		if err := e.evictEntry(entry); err != nil {
			return err
		}
	}

	return nil
}

// evictEntry drops the index row first so no new reader finds the key, then
// removes the blob. Already-open file handles keep serving until closed.
func (e *Engine) evictEntry(entry models.CacheEntry) error {
	if err := e.entries.Delete(entry.Key); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return e.store.Remove(entry.Generation, entry.Key)
}

// EvictLRU deletes least-recently-used entries until usage is at or below
// targetBytes, skipping pinned entries and actively served keys. Returns
// the bytes freed. It stops early when only pinned or active entries
// remain.
func (e *Engine) EvictLRU(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}

	var freed int64
	for {
		total, err := e.entries.TotalSize()
		if err != nil {
			return freed, err
		}
		if total <= targetBytes {
			return freed, nil
		}

		candidates, err := e.entries.EvictionCandidates(evictBatch)
		if err != nil {
			return freed, err
		}
		if len(candidates) == 0 {
			return freed, nil
		}

		progressed := false
		for _, entry := range candidates {
			if total <= targetBytes {
				break
			}
			if e.isActive(entry.Key) {
				continue
			}
			if err := e.evictEntry(entry); err != nil {
				return freed, err
			}
			total -= entry.SizeBytes
			freed += entry.SizeBytes
			progressed = true
		}

		if !progressed {
			e.logger.Warn("lru sweep stalled, remaining entries are in use", "target", shared.HumanBytes(targetBytes))
			return freed, nil
		}
	}
}

// RelieveQuota evicts down to the warning threshold of the last measured
// quota limit. The agent wires this to the monitor's critical transition.
func (e *Engine) RelieveQuota() (int64, error) {
	if e.monitor == nil {
		return 0, nil
	}

	snap, ok := e.monitor.Last()
	if !ok || snap.LimitBytes <= 0 {
		return 0, nil
	}

	target := snap.LimitBytes * quota.WarningPercent / 100
	freed, err := e.EvictLRU(target)
	if freed > 0 {
		e.logger.Info("evicted cache entries under storage pressure", "freed", shared.HumanBytes(freed))
	}
	return freed, err
}
