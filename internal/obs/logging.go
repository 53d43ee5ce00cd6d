// Package obs holds the process-wide structured logger.
package obs

import (
	"log/slog"
	"os"
)

// Logger is shared by every package; Init replaces it at startup.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init sets the default JSON logger, tagging every record with the service name.
func Init(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	Logger = slog.New(h).With("service", service)
	slog.SetDefault(Logger)
	return Logger
}
