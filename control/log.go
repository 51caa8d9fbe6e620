package control

import "github.com/decred/slog"

// log is this package's subsystem logger. It discards output until the
// hosting binary supplies a real one through UseLogger.
var log = slog.Disabled

// UseLogger sets the package-wide logger used by the control loop. It
// must be called before LoadData to see any log output.
func UseLogger(logger slog.Logger) {
	log = logger
}
