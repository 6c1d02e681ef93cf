package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// SyncStateRepository tracks per-entity sync progress.
//
// Entities enter as pending when the server reports a newer revision, and
// leave pending once their metadata lands locally. A failed chunk leaves
// exactly its own entities pending for the next cycle.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// MarkPending records that the given entities need a metadata pull. Existing
// rows keep their stored revision; new rows start at revision 0.
func (r *SyncStateRepository) MarkPending(ids []string, kind models.EntityKind) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO sync_state (entity_id, entity_kind, pending)
		VALUES (?, ?, 1)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET pending = 1
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare mark pending: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id, string(kind)); err != nil {
			return fmt.Errorf("%w: failed to mark %s pending: %v", shared.ErrStorage, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit pending marks: %v", shared.ErrStorage, err)
	}

	return nil
}

// MarkSynced clears an entity's pending flag and records its revision and
// sync time.
func (r *SyncStateRepository) MarkSynced(id string, kind models.EntityKind, revision int64, syncedAt time.Time) error {
	query := `
		INSERT INTO sync_state (entity_id, entity_kind, revision, pending, last_synced_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET
			revision = excluded.revision,
			pending = 0,
			last_synced_at = excluded.last_synced_at
	`

	if _, err := r.db.Exec(query, id, string(kind), revision, syncedAt); err != nil {
		return fmt.Errorf("%w: failed to mark %s synced: %v", shared.ErrStorage, id, err)
	}
	return nil
}

// MarkAllSynced clears pending for a batch of entities in one transaction.
func (r *SyncStateRepository) MarkAllSynced(states []models.SyncState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO sync_state (entity_id, entity_kind, revision, pending, last_synced_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET
			revision = excluded.revision,
			pending = 0,
			last_synced_at = excluded.last_synced_at
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare mark synced: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for _, state := range states {
		if _, err := stmt.Exec(state.EntityID, string(state.Kind), state.Revision, nullableTime(state.LastSynced)); err != nil {
			return fmt.Errorf("%w: failed to mark %s synced: %v", shared.ErrStorage, state.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit synced marks: %v", shared.ErrStorage, err)
	}

	return nil
}

// Get retrieves sync state for one entity
func (r *SyncStateRepository) Get(id string, kind models.EntityKind) (models.SyncState, error) {
	query := `
		SELECT entity_id, entity_kind, revision, pending, last_synced_at
		FROM sync_state
		WHERE entity_id = ? AND entity_kind = ?
	`

	var (
		state      models.SyncState
		kindRaw    string
		pending    int
		lastSynced sql.NullTime
	)

	err := r.db.QueryRow(query, id, string(kind)).Scan(&state.EntityID, &kindRaw, &state.Revision, &pending, &lastSynced)
	if err == sql.ErrNoRows {
		return models.SyncState{}, fmt.Errorf("%w: sync state for %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return models.SyncState{}, fmt.Errorf("%w: failed to scan sync state: %v", shared.ErrStorage, err)
	}

	state.Kind = models.EntityKind(kindRaw)
	state.Pending = pending != 0
	state.LastSynced = scanNullTime(lastSynced)
	return state, nil
}

// Pending returns up to limit pending entities of a kind, oldest first.
// A limit of 0 returns all pending entities.
func (r *SyncStateRepository) Pending(kind models.EntityKind, limit int) ([]models.SyncState, error) {
	query := `
		SELECT entity_id, entity_kind, revision, pending, last_synced_at
		FROM sync_state
		WHERE entity_kind = ? AND pending = 1
		ORDER BY entity_id
	`
	args := []any{string(kind)}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query pending entities: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var states []models.SyncState
	for rows.Next() {
		var (
			state      models.SyncState
			kindRaw    string
			pending    int
			lastSynced sql.NullTime
		)
		if err := rows.Scan(&state.EntityID, &kindRaw, &state.Revision, &pending, &lastSynced); err != nil {
			return nil, fmt.Errorf("%w: failed to scan sync state: %v", shared.ErrStorage, err)
		}
		state.Kind = models.EntityKind(kindRaw)
		state.Pending = pending != 0
		state.LastSynced = scanNullTime(lastSynced)
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return states, nil
}

// All returns every tracked entity ordered by kind then id, for status
// surfaces.
func (r *SyncStateRepository) All() ([]models.SyncState, error) {
	rows, err := r.db.Query(`
		SELECT entity_id, entity_kind, revision, pending, last_synced_at
		FROM sync_state
		ORDER BY entity_kind, entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query sync state: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var states []models.SyncState
	for rows.Next() {
		var (
			state      models.SyncState
			kindRaw    string
			pending    int
			lastSynced sql.NullTime
		)
		if err := rows.Scan(&state.EntityID, &kindRaw, &state.Revision, &pending, &lastSynced); err != nil {
			return nil, fmt.Errorf("%w: failed to scan sync state: %v", shared.ErrStorage, err)
		}
		state.Kind = models.EntityKind(kindRaw)
		state.Pending = pending != 0
		state.LastSynced = scanNullTime(lastSynced)
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return states, nil
}

// PendingCount reports how many entities of a kind are pending
func (r *SyncStateRepository) PendingCount(kind models.EntityKind) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sync_state WHERE entity_kind = ? AND pending = 1", string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count pending entities: %v", shared.ErrStorage, err)
	}
	return count, nil
}

// Revision returns the stored revision for an entity, or 0 when the entity
// has never been seen.
func (r *SyncStateRepository) Revision(id string, kind models.EntityKind) (int64, error) {
	var revision int64
	err := r.db.QueryRow("SELECT revision FROM sync_state WHERE entity_id = ? AND entity_kind = ?", id, string(kind)).Scan(&revision)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read revision: %v", shared.ErrStorage, err)
	}
	return revision, nil
}

// Forget removes sync bookkeeping for entities that no longer exist upstream.
func (r *SyncStateRepository) Forget(ids []string, kind models.EntityKind) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM sync_state WHERE entity_id = ? AND entity_kind = ?")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare forget: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id, string(kind)); err != nil {
			return fmt.Errorf("%w: failed to forget %s: %v", shared.ErrStorage, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit forgets: %v", shared.ErrStorage, err)
	}

	return nil
}
