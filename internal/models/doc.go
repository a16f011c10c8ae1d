// Package models defines the records returned to MCP clients and the entities persisted in the local cache.
//
// The package contains two categories of types:
//
// 1. Normalized records: flat, client-facing views of TIDAL catalog objects
//   - [Track] : Track id, title, artist, album, duration and browse url
//   - [Playlist] : Playlist id, name, description, track count and browse url
//
// 2. Persistent entities: database-backed models
//   - [CachedTrack] : A [Track] remembered from earlier tool results, with a hit counter
//   - [ToolCall] : One dispatched tool call and its outcome
//
// Persistent entities implement the [Model] interface providing ID, timestamps, and validation.
package models
