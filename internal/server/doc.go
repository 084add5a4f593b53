// Package server hosts the AniGiffy HTTP API and its background upkeep.
//
// The API serves browser sessions: a cookie names the session, uploads land
// in the session's storage, and generate requests encode the posted project
// against those uploads. Daemon wraps the HTTP server with a single-instance
// lock, startup preflight checks and a periodic cleanup loop that expires
// idle sessions, removes orphaned previews, prunes the job ledger and
// rotates old logs.
package server
