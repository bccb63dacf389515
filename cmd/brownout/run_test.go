// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/datacenter"
	"github.com/cobaltcore-dev/brownout/internal/scenario"
)

const twoHostScenario = `
name: two-hosts
hosts:
  - {id: a, mips: 1000, ramMB: 8192, bandwidth: 1000, power: {type: linear, idle: 100, max: 200}}
  - {id: b, mips: 1000, ramMB: 8192, bandwidth: 1000, power: {type: linear, idle: 100, max: 200}}
vms:
  - {id: vm1, mips: 1000, ramMB: 1024, host: a}
cloudlets:
  - {id: c1, vm: vm1, lengthMI: 450000, submitAt: 0.1, utilization: {constant: 0.5}}
`

func TestSimulate(t *testing.T) {
	s, err := scenario.Parse([]byte(twoHostScenario))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	config := conf.DefaultSimulationConfig()
	config.Duration = 0
	report, err := simulate(context.Background(), config, s, datacenter.Monitor{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expectedEnergy := 125*300.1 + 150*300.0 + 125*300.0 + 100*900.1
	if math.Abs(report.Energy-expectedEnergy) > 1e-6 {
		t.Errorf("expected energy %v, got %v", expectedEnergy, report.Energy)
	}
	if report.Migrations != 0 || report.DimmerTriggers != 0 {
		t.Errorf("expected no migrations or dimmer triggers, got %+v", report)
	}
	if math.Abs(report.FinishedAt-900.1) > 1e-9 {
		t.Errorf("expected the run to finish at 900.1, got %v", report.FinishedAt)
	}
}

func TestSimulate_NoWorkload(t *testing.T) {
	s := scenario.Scenario{Name: "empty", Hosts: []scenario.HostSpec{{
		ID: "a", MIPS: 1000, RAM: 1024, Power: scenario.PowerSpec{Type: "linear", Idle: 1, Max: 2},
	}}}
	_, err := simulate(context.Background(), conf.DefaultSimulationConfig(), s, datacenter.Monitor{})
	if !errors.Is(err, errNoWorkload) {
		t.Errorf("expected errNoWorkload, got %v", err)
	}
}

func TestSimulate_InvalidScenario(t *testing.T) {
	s, err := scenario.Parse([]byte(twoHostScenario))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.VMs[0].Host = "z"
	_, err = simulate(context.Background(), conf.DefaultSimulationConfig(), s, datacenter.Monitor{})
	if !errors.Is(err, scenario.ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario, got %v", err)
	}
}

func TestSimulate_Cancelled(t *testing.T) {
	s, err := scenario.Generate(scenario.GenerateOptions{Hosts: 2, VMs: 2, Duration: 3000, Interval: 300}, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = simulate(ctx, conf.DefaultSimulationConfig(), s, datacenter.Monitor{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulate_GeneratedScenario(t *testing.T) {
	s, err := scenario.Generate(scenario.GenerateOptions{Hosts: 4, VMs: 6, Duration: 6000, Interval: 300}, 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, strategy := range []string{"nearest", "lowest-price"} {
		t.Run(strategy, func(t *testing.T) {
			config := conf.DefaultSimulationConfig()
			config.SelectionStrategy = strategy
			config.Duration = 6000
			report, err := simulate(context.Background(), config, s, datacenter.Monitor{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if report.Energy <= 0 {
				t.Errorf("expected energy to be consumed, got %v", report.Energy)
			}
			if report.DimmerEvaluations == 0 || report.DimmerEvaluations%len(s.Hosts) != 0 {
				t.Errorf("expected evaluations to be a multiple of the host count, got %d", report.DimmerEvaluations)
			}
			if report.RevenueLoss < 0 {
				t.Errorf("expected non-negative revenue loss, got %v", report.RevenueLoss)
			}
			if report.FinishedAt > 6000 {
				t.Errorf("expected the run to stop at the duration, got %v", report.FinishedAt)
			}
		})
	}
}
