package ingest

import "github.com/decred/slog"

// log is this package's subsystem logger. It discards output until the
// hosting binary supplies a real one through UseLogger.
var log = slog.Disabled

// UseLogger sets the package-wide logger used during ingestion and save
// file recovery.
func UseLogger(logger slog.Logger) {
	log = logger
}
