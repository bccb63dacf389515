// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"
)

type hostType struct {
	mips       float64
	ram        float64
	powerTable string
}

// Two-core HP ProLiant ML110 G4 and G5 servers.
var hostTypes = []hostType{
	{mips: 2 * 1860, ram: 4096, powerTable: "hp-proliant-ml110-g4"},
	{mips: 2 * 2660, ram: 4096, powerTable: "hp-proliant-ml110-g5"},
}

type vmType struct {
	mips float64
	ram  float64
}

// High-cpu medium, extra large, small and micro instances.
var vmTypes = []vmType{
	{mips: 2500, ram: 870},
	{mips: 2000, ram: 1740},
	{mips: 1000, ram: 1740},
	{mips: 500, ram: 613},
}

// Tags optional components are drawn from. Cloudlets share tags, so
// disabling one on a host suppresses it on all its cloudlets.
var componentTags = []string{"recommendations", "ads", "search", "analytics", "thumbnails", "comments"}

const (
	hostBandwidth = 1000000
	// Cloudlets start right after the first instant so vms are placed first.
	generatedSubmitAt     = 0.1
	componentsPerCloudlet = 3
)

// Options of a generated scenario.
type GenerateOptions struct {
	Hosts int
	VMs   int
	// Simulated time covered by the utilization traces.
	Duration float64
	// Simulated time between two trace samples.
	Interval float64
}

func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Hosts: 50, VMs: 50, Duration: 86400, Interval: 300}
}

// Generate a random scenario with one cloudlet per vm. The same options and
// seed always give the same scenario.
func Generate(opts GenerateOptions, seed uint64) (Scenario, error) {
	if opts.Hosts <= 0 || opts.VMs <= 0 {
		return Scenario{}, fmt.Errorf("%w: need at least one host and vm", ErrInvalidScenario)
	}
	if opts.Duration <= 0 || opts.Interval <= 0 {
		return Scenario{}, fmt.Errorf("%w: need a positive duration and interval", ErrInvalidScenario)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := Scenario{Name: fmt.Sprintf("generated-%d", seed)}
	for i := range opts.Hosts {
		t := hostTypes[i%len(hostTypes)]
		s.Hosts = append(s.Hosts, HostSpec{
			ID:        fmt.Sprintf("host-%d", i),
			MIPS:      t.mips,
			RAM:       t.ram,
			Bandwidth: hostBandwidth,
			Power:     PowerSpec{Type: "specpower", Table: t.powerTable},
		})
	}
	samples := int(math.Ceil(opts.Duration/opts.Interval)) + 1
	for i := range opts.VMs {
		t := vmTypes[i%len(vmTypes)]
		vmID := fmt.Sprintf("vm-%d", i)
		s.VMs = append(s.VMs, VMSpec{ID: vmID, MIPS: t.mips, RAM: t.ram})
		s.Cloudlets = append(s.Cloudlets, CloudletSpec{
			ID:          fmt.Sprintf("cloudlet-%d", i),
			VM:          vmID,
			Length:      t.mips * opts.Duration,
			SubmitAt:    generatedSubmitAt,
			Utilization: UtilizationSpec{Trace: randomTrace(rng, samples), Interval: opts.Interval},
			Components:  randomComponents(rng),
		})
	}
	return s, nil
}

// Random walk of utilization values in [0,1].
func randomTrace(rng *rand.Rand, samples int) []float64 {
	trace := make([]float64, samples)
	u := rng.Float64()
	for i := range trace {
		u = math.Min(1, math.Max(0, u+(rng.Float64()-0.5)*0.3))
		trace[i] = round(u)
	}
	return trace
}

func randomComponents(rng *rand.Rand) []ComponentSpec {
	components := make([]ComponentSpec, 0, componentsPerCloudlet)
	for _, i := range rng.Perm(len(componentTags))[:componentsPerCloudlet] {
		components = append(components, ComponentSpec{
			Tag:         componentTags[i],
			Utilization: round(0.05 + rng.Float64()*0.25),
			Price:       round(1 + rng.Float64()*9),
		})
	}
	return components
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
