// Package stores persists build history for epic.
//
// Every driver command that touches the graph is recorded as a Run, and every
// vertex it examines as a Step. The SQLite store keeps the history in
// .epic/history.db using WAL mode, applies embedded migrations with
// golang-migrate, and prunes old runs so the file stays small.
package stores
