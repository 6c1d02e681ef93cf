package repositories

import (
	"errors"
	"testing"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

func TestSongRepositoryErrors(t *testing.T) {
	t.Run("Upsert", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSongRepository(db)

			if err := repo.Upsert(models.Song{ID: "s1"}); err == nil {
				t.Fatal("expected validation error for missing title")
			}

			if err := repo.Upsert(models.Song{Title: "No ID"}); err == nil {
				t.Fatal("expected validation error for missing id")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSongRepository(db)

			_, err := repo.Get("nonexistent-id")
			if !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSongRepository(db)

			if err := repo.Delete("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})
}

func TestEntryRepositoryErrors(t *testing.T) {
	t.Run("Get NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewEntryRepository(db)

		_, err := repo.Get("stream/ghost")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewEntryRepository(db)

		if err := repo.Delete("stream/ghost"); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewEntryRepository(db)
		entry := models.CacheEntry{
			Key:        "stream/s1",
			Kind:       models.EntryKind("video"),
			CreatedAt:  time.Now(),
			LastAccess: time.Now(),
		}

		if err := repo.Put(entry); err == nil {
			t.Fatal("expected validation error for unknown kind")
		}
	})
}

func TestStorageErrorsWrapSentinel(t *testing.T) {
	db := setupTestDB(t)

	repo := NewSongRepository(db)
	entryRepo := NewEntryRepository(db)
	metaRepo := NewMetaRepository(db)

	// operations against a closed handle surface ErrStorage
	db.Close()

	if err := repo.Upsert(testSong("s1", "Music Is Math")); !errors.Is(err, shared.ErrStorage) {
		t.Errorf("expected ErrStorage from Upsert, got %v", err)
	}

	if _, err := repo.List(); !errors.Is(err, shared.ErrStorage) {
		t.Errorf("expected ErrStorage from List, got %v", err)
	}

	if _, err := entryRepo.TotalSize(); !errors.Is(err, shared.ErrStorage) {
		t.Errorf("expected ErrStorage from TotalSize, got %v", err)
	}

	if err := metaRepo.Set("k", "v"); !errors.Is(err, shared.ErrStorage) {
		t.Errorf("expected ErrStorage from Set, got %v", err)
	}
}
