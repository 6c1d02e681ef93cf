// Package services defines the [Client] interface for the upstream music
// server and implements it over its HTTP API.
//
// # Client Interface
//
// [Client] covers everything fermata asks of the server: session auth,
// connectivity probes, catalog metadata for sync, and media streams for the
// cache. Consumers depend on the interface so tests can substitute fakes.
//
// # Server Implementation
//
// [ServerClient] speaks the server's JSON API. Every request flows through a
// [TokenProvider]: authenticated sessions attach a bearer token, guests send
// nothing and the server answers with whatever anonymous access allows.
//
// Media endpoints return [Media] with the response body still open so the
// caller can stream it to disk or to a player without buffering whole songs
// in memory. Range headers pass through verbatim, and 206 responses are
// surfaced as-is.
//
// # Error Handling
//
// Responses map onto typed errors from the shared package:
//   - [shared.ErrNetwork] : transport failure or unexpected status
//   - [shared.ErrNotAuthenticated] : 401 or 403, session missing or expired
//   - [shared.ErrNotFound] : 404, entity unknown upstream
//   - [shared.ErrServiceUnavailable] : 5xx, server reachable but unhealthy
package services
