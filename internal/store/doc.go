// Package store reads the macOS notification database without ever
// writing to it.
//
// The store is owned and actively written by the usernoted process, so the
// connection is opened in read-only mode with query_only set, and lock
// contention is reported as the transient ErrBusy rather than a failure.
// Rows are fetched by ROWID range queries, which SQLite serves from the
// table's rowid index regardless of table size.
package store
