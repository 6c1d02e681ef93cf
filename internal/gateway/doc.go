// Package gateway serves the local HTTP surface a player points at instead
// of the music server.
//
// # Interception
//
// Two media routes are answered from the cache before upstream is consulted:
//
//	GET /api/songs/{id}/stream
//	GET /api/songs/{id}/cover?size=N
//
// A hit is served from the open blob with X-Fermata-Cache: hit; Range
// requests are answered from the cached file. A miss runs the authenticated
// fetch-through path in [cache.Engine], relaying the upstream response while
// the cache stores a copy, and marks the response X-Fermata-Cache: miss.
// Upstream failures on a miss degrade to a 503 envelope so the player can
// fall back rather than crash.
//
// In guest mode (config, or the X-Fermata-Guest header per request) misses
// never reach upstream: guest libraries are pre-seeded, so a miss is
// answered 404 as missing local state.
//
// Every other /api/ path proxies through to the music server untouched, so
// a player can point solely at the gateway.
//
// # Local Surfaces
//
//	GET  /preload/{id}  in-memory preloaded audio ([preload.Preloader])
//	GET  /cache/songs   IDs of every song with cached audio
//	GET  /status        agent flags + cache stats
//	POST /control       tagged control messages
//
// Non-media responses use the upstream JSON envelope: {"success": true,
// "data": ...} or {"success": false, "error": ...}.
//
// # Control Protocol
//
// /control accepts a closed set of tagged variants: SKIP_WAITING applies a
// pending agent update, CLEAR_CACHE drops every cached entry, SYNC_NOW kicks
// a sync cycle, SHUTDOWN stops the agent after the response is written.
// Unknown kinds are acknowledged with ignored: true and never crash the
// handler; malformed JSON is a 400 envelope.
//
// # Lifecycle
//
// [Gateway.Start] binds and serves in the background; [Gateway.Shutdown]
// drains in-flight requests. The agent consults [Gateway.LastStreamAt]
// before rotating cache generations so updates never cut live playback.
package gateway
