// Package project models a named animation: its canvas settings and the
// ordered frames that make up the timeline.
//
// Projects round-trip through the camelCase JSON documents stored in a
// session's projects directory and through an equivalent YAML form. Settings
// are a typed record with explicit defaults; Validate checks a project
// against the configured limits before it is encoded.
package project
