// Package repositories implements SQLite persistence for all domain entities.
//
// Catalog repositories mirror server state, so their write paths are upserts
// keyed by the server's IDs. Bookkeeping repositories (cache index, sync
// state, meta) are owned locally and never leave this machine.
//
// Key Implementations:
//   - [SongRepository] : Catalog songs with batch upserts for sync chunks
//   - [PlaylistRepository] : Catalog playlists plus ordered song membership
//   - [LibraryRepository] : Membership rows for the user's saved songs
//   - [EntryRepository] : Cache index with LRU ordering and pin support
//   - [SyncStateRepository] : Per-entity pending flags and revisions
//   - [MetaRepository] : Key/value state such as the active cache generation
//
// Errors wrap [shared.ErrStorage] for database failures and
// [shared.ErrNotFound] for missing rows, so callers can branch with
// errors.Is without string matching.
package repositories
