// Package store provides local persistence for chat sessions and user
// settings.
//
// Sessions live in an embedded SQLite database under the configured data
// directory; each session row carries its full message list as one JSON
// document, so a session round-trips as a unit. A sibling lock file,
// held via [github.com/gofrs/flock], keeps two application instances from
// interleaving writes.
//
// Key operations:
//
//   - Session lifecycle: [Store.CreateSession], [Store.Sessions],
//     [Store.DeleteSession], [Store.ClearMessages]
//   - Mutation: [Store.UpdateSession] (read-modify-write by ID; unknown
//     IDs are a silent no-op so background work cannot resurrect a
//     deleted session)
//   - Active session: [Store.ActiveSessionID], [Store.SetActive]
//   - Settings: [Store.DisplayName], [Store.NotificationsEnabled]
//   - Change notification: [Store.Subscribe]
//
// # Failure semantics
//
// The in-memory session list is authoritative for the life of the
// process. Database writes are best-effort: failures are logged and
// swallowed, never surfaced to the caller. Malformed rows found at open
// are logged and skipped rather than failing the load.
//
// # Title generation
//
// When an update leaves a session with exactly one message and the
// default placeholder title, the store asks its [TitleGenerator] for a
// short title in the background. The resolved title is merged by session
// ID and touches only the title column, so it can never clobber messages
// appended while the generator was in flight.
package store
