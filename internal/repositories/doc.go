// Package repositories implements SQLite persistence for the local cache.
//
// Key Implementations:
//   - [TrackRepository] : Tracks seen in tool results, upserted by TIDAL id with a hit counter
//   - [ToolCallRepository] : Append-only history of dispatched tool calls
//   - [TrackCacheAdapter] : Batches [models.Track] values from tool results into a [TrackRepository]
//
// Both repositories read the schema created by [shared.RunMigrations].
package repositories
