package utils

import (
	"log/slog"
	"os"
	"strings"
)

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger returns a slog.Logger configured for the desired verbosity and format.
// Unknown levels fall back to info.
func NewLogger(level string, json bool) *slog.Logger {
	handlerLevel, ok := levelNames[strings.ToLower(level)]
	if !ok {
		handlerLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: handlerLevel}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
