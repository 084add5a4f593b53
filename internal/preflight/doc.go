// Package preflight provides readiness checks for the directories and host
// resources AniGiffy depends on.
//
// These checks run in two contexts:
//   - The server calls RunAll at startup and logs every failed check.
//   - The CLI "anigiffy status" command renders the same results as a table.
//
// MemoryGuard additionally gates full renders: it compares an estimate of the
// encoder's working set against the memory currently available.
package preflight
