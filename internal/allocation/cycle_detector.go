// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"log/slog"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

type CycleDetector interface {
	// Filter planned migrations to avoid vms moving in cycles.
	Filter(migrations []model.Migration) []model.Migration
}

type cycleDetector struct{}

func NewCycleDetector() CycleDetector {
	return cycleDetector{}
}

// Drop migrations that would bring a vm back to a host it was placed on
// before, or whose vm already moved in a cycle.
func (cycleDetector) Filter(migrations []model.Migration) []model.Migration {
	var output []model.Migration
	for _, m := range migrations {
		if m.VM == nil || m.Target == nil {
			continue
		}
		visited := make(map[string]struct{})
		cycleDetected := false
		for _, hostID := range m.VM.HostHistory() {
			if _, ok := visited[hostID]; ok {
				cycleDetected = true
				break
			}
			visited[hostID] = struct{}{}
		}
		if _, ok := visited[m.Target.ID]; ok {
			cycleDetected = true
		}
		if cycleDetected {
			slog.Debug("allocation: dropping cyclic migration", "vm", m.VM.ID, "target", m.Target.ID)
			continue
		}
		output = append(output, m)
	}
	return output
}
