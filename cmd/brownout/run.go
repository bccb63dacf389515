// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cobaltcore-dev/brownout/internal/allocation"
	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/datacenter"
	"github.com/cobaltcore-dev/brownout/internal/scenario"
	"github.com/cobaltcore-dev/brownout/internal/simulation/events"
)

// Returned for scenarios that would leave the datacenter waiting forever.
var errNoWorkload = errors.New("scenario has no cloudlets")

// Run the scenario on a fresh datacenter until the configured duration
// is reached or no events are left.
func simulate(ctx context.Context, config conf.SimulationConfig, s scenario.Scenario, monitor datacenter.Monitor) (datacenter.Report, error) {
	if len(s.Cloudlets) == 0 {
		return datacenter.Report{}, errNoWorkload
	}
	workload, err := s.Build()
	if err != nil {
		return datacenter.Report{}, err
	}
	queue := events.NewQueue()
	policy := allocation.NewStaticThreshold(config.OverloadThreshold, workload.Hosts)
	dc, err := datacenter.New(config, queue, policy, workload.Hosts, monitor)
	if err != nil {
		return datacenter.Report{}, err
	}
	for _, p := range workload.VMs {
		if p.HostID != "" {
			err = dc.CreateVMOn(p.VM, p.HostID)
		} else {
			err = dc.CreateVM(p.VM)
		}
		if err != nil {
			return datacenter.Report{}, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	dc.ScheduleCloudlets(workload.Cloudlets)

	slog.Info("simulation: starting",
		"scenario", s.Name, "hosts", len(workload.Hosts), "vms", len(workload.VMs),
		"cloudlets", len(workload.Cloudlets), "strategy", config.SelectionStrategy)
	if err := queue.Run(ctx, config.Duration, dc.ProcessEvent); err != nil {
		return dc.Report(), err
	}
	return dc.Report(), nil
}

// Log a human readable summary of the report.
func logSummary(report datacenter.Report, hosts int) {
	idleAverage := 0.0
	for _, sample := range report.IdleHostSamples {
		idleAverage += float64(sample.Count)
	}
	if len(report.IdleHostSamples) > 0 {
		idleAverage /= float64(len(report.IdleHostSamples))
	}
	triggerRate := 0.0
	if report.DimmerEvaluations > 0 {
		triggerRate = float64(report.DimmerTriggers) / float64(report.DimmerEvaluations)
	}
	slog.Info("simulation: finished",
		"energyKWh", report.Energy/3600/1000,
		"migrations", report.Migrations,
		"dimmerTriggers", report.DimmerTriggers,
		"dimmerTriggerRate", triggerRate,
		"revenueLoss", report.RevenueLoss,
		"averageIdleHosts", idleAverage,
		"hosts", hosts,
		"finishedAt", report.FinishedAt,
	)
}
