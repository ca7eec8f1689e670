// Package tail turns notification store rows into an ordered stream of
// decoded records.
//
// A single loop owns the cursor: it resolves a starting point (the newest
// existing row, a persisted cursor, or zero when backfilling), polls the
// store for rows above it, decodes each payload, and hands records to the
// publisher in row order. The cursor only advances after the publisher
// has accepted a whole batch. Lock contention from the store's writer is
// an expected condition and is absorbed with capped exponential backoff;
// a malformed payload is logged and skipped without stalling the rows
// behind it.
//
// macOS deletes rows when the user dismisses notifications, so the
// store's maximum row id can drop below the cursor. The loop re-bases the
// cursor to the new maximum when that happens, mirroring how identifiers
// keep growing monotonically across deletions.
package tail
