// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Conform to the slog.Leveler interface.
func (c LoggingConfig) Level() slog.Level {
	switch c.LevelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Resolve the log format, falling back to text on a terminal and json otherwise.
func (c LoggingConfig) format(stdout *os.File) string {
	if c.Format != "" {
		return c.Format
	}
	if term.IsTerminal(int(stdout.Fd())) {
		return "text"
	}
	return "json"
}

// Set the structured logger as given in the config.
func (c LoggingConfig) SetDefaultLogger() {
	opts := &slog.HandlerOptions{Level: c}
	format := c.format(os.Stdout)
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logging: set default logger", "level", c.LevelStr, "format", format)
}
