// Package publish fans decoded notification records out to delivery sinks.
//
// The stream sink writes one JSON record per line and is authoritative:
// its failure stops the daemon. The webhook sink is best-effort behind a
// bounded queue with its own retry policy, so a slow or failing endpoint
// never stalls the stream or the tail loop's cursor. The Publisher itself
// never retries; each sink owns its failure handling.
package publish
