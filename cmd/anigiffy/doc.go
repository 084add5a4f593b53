// Package main hosts the AniGiffy CLI entrypoint and command graph.
//
// The Cobra command tree runs the API server in the foreground, encodes
// project files offline, scaffolds and converts project documents, and
// inspects or cleans the session store on disk. Configuration resolution and
// logger setup live here so subcommands stay declarative; the work itself
// belongs in the internal packages.
package main
