// Package history persists transcription runs and generated notes in SQLite.
//
// Each run records its input, settings, outcome and, on success, the full
// transcript as JSON so notes can be generated later without re-running the
// pipeline. The schema is embedded and versioned; a version mismatch asks
// the user to delete the database rather than migrating in place.
package history
