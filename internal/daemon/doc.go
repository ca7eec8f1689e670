// Package daemon wires the store reader, tail loop, and publisher into a
// long-running process. It enforces single-instance execution with a file
// lock, drops a pid file for operators, and optionally watches the store
// directory so new notifications are picked up without waiting out the
// poll interval.
package daemon
