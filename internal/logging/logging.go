// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package logging

import "log/slog"

func Default() *slog.Logger {
	return slog.Default()
}

// Attach the id of the simulation run to every following log message.
func SetRun(runID string) {
	slog.SetDefault(Default().With("run", runID))
}
