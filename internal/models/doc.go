// Package models defines domain entities for the fermata offline music cache.
//
// The package contains two categories of types:
//
// 1. Catalog entities mirrored from the music server during metadata sync
//   - [Song] : Track metadata including duration and artwork reference
//   - [Playlist] : Playlist metadata with song count
//   - [PlaylistEntry] : Junction row linking songs to playlists with ordering
//   - [LibrarySong] : Membership row for songs saved to the user's library
//
// 2. Local bookkeeping entities owned by this machine
//   - [CacheEntry] : Index row for one cached media blob on disk
//   - [SyncState] : Per-entity sync progress with pending and revision tracking
//
// Catalog entities carry the server's revision counter so sync cycles can
// skip entities that have not changed upstream. Bookkeeping entities never
// leave this machine.
package models
