// Package main hosts the tattle CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the foreground tail daemon (run),
// store inspection (recent), payload debugging (decode), and
// configuration scaffolding (config init/show/validate). Configuration
// resolution and exit-code mapping live here; everything else is done by
// the internal packages.
package main
