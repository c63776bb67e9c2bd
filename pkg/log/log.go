// Package log re-exports github.com/luxfi/log's structured Logger so
// the rest of itchbook never imports it directly — every component
// logs through this one seam.
package log

import lxlog "github.com/luxfi/log"

// Logger is the structured logging interface: Info/Warn/Error/Debug
// each take a message and alternating key-value pairs.
type Logger = lxlog.Logger

// New builds a logger at the given level ("debug", "info", "warn",
// "error"). An unrecognised level falls back to "info".
func New(level string) Logger {
	lvl, err := lxlog.ToLevel(level)
	if err != nil {
		lvl, _ = lxlog.ToLevel("info")
	}
	return lxlog.NewTestLogger(lvl)
}

// Root returns the package-wide default logger.
func Root() Logger {
	return lxlog.Root()
}
