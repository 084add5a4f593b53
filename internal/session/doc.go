// Package session owns per-browser storage under the data directory.
//
// Each session is a directory named by its random token holding uploads/,
// projects/ and output/. The directory modification time doubles as the last
// access time: Touch refreshes it and CleanExpired removes sessions idle for
// longer than the configured lifetime. Every path handed out by the Store is
// confined to its session directory, symlinks included.
package session
