// Package logging builds the slog loggers used across tattle.
//
// Diagnostics always go to stderr: stdout belongs to the stream sink and
// must stay parseable line by line. Two handler formats are offered, a
// compact console form for interactive use and JSON for collection.
// Helpers standardize attribute keys (component, row_id, sink, event_type)
// so log consumers can rely on them.
package logging
