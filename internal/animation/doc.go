// Package animation builds animated GIFs from projects.
//
// The Encoder prepares each frame through frameprep, skipping frames whose
// sources are missing or unreadable, expands cross-fade transitions with
// wraparound from the last frame to the first, quantizes every display frame
// to its own palette, and streams each one to the GIF writer as soon as it is
// ready, stopping at the first write past the configured byte budget. Failures are classified by ErrorKind so
// callers can map them to user-facing responses.
package animation
