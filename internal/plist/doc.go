// Package plist decodes and encodes Apple binary property lists
// (bplist00), the container format used for notification payload blobs.
//
// Decoded values use a closed set of Go types: nil, bool, int64, float64,
// string, []byte, time.Time, UID, []any, and *Dict. Dictionaries preserve
// key order as written. Decode never panics on malformed input; structural
// problems surface as ErrTruncated, ErrInvalidHeader, or an
// UnsupportedTypeError carrying the offending marker byte.
//
// The encoder exists for fixtures and tests; it writes a canonical object
// table without value uniquing, which every conforming reader accepts.
package plist
