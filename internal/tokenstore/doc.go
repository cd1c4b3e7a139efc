// Package tokenstore persists the session's token pair.
//
// The persisted state is exactly one entry holding {"access", "refresh"} as
// JSON. Absence means anonymous; removing the entry is how logout and a failed
// refresh end a session. A pair with one half missing is never valid: Save
// rejects it, and Load reports a stored one as ErrCorrupt.
//
// Three backends implement Store:
//
//   - FileStore: a 0600 JSON file, by default under $XDG_CONFIG_HOME/finbot
//   - SQLiteStore: a single row in a key/value table (modernc.org/sqlite)
//   - MemoryStore: process-local, for tests and ephemeral sessions
//
// Stores assume a single writer. Two processes refreshing at the same time
// can overwrite each other's access token.
package tokenstore
