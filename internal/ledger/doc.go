// Package ledger records GIF generation jobs in SQLite.
//
// Every preview and full render, successful or not, becomes one row. The
// server uses the ledger for per-session history and aggregate counts; the
// cleanup loop prunes old rows. Without a configured path the database lives
// in memory for the life of the process.
package ledger
