// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
	"gopkg.in/yaml.v3"
)

// Returned when a scenario file is inconsistent.
var ErrInvalidScenario = errors.New("invalid scenario")

// Power model of a host type.
type PowerSpec struct {
	// Either "linear" or "specpower".
	Type string `yaml:"type"`
	// Watts at zero and full utilization of a linear power model.
	Idle float64 `yaml:"idle,omitempty"`
	Max  float64 `yaml:"max,omitempty"`
	// Named SPECpower table, e.g. hp-proliant-ml110-g4.
	Table string `yaml:"table,omitempty"`
	// Explicit SPECpower measurements at 0%, 10%, ..., 100% utilization.
	Watts []float64 `yaml:"watts,omitempty"`
}

type HostSpec struct {
	ID   string  `yaml:"id"`
	MIPS float64 `yaml:"mips"`
	RAM  float64 `yaml:"ramMB"`
	// Network bandwidth in Mbit/s.
	Bandwidth float64   `yaml:"bandwidth"`
	Power     PowerSpec `yaml:"power"`
}

type VMSpec struct {
	ID   string  `yaml:"id"`
	MIPS float64 `yaml:"mips"`
	RAM  float64 `yaml:"ramMB"`
	// Host to pin the vm to. If empty, the allocation policy decides.
	Host string `yaml:"host,omitempty"`
}

// Cpu utilization of a cloudlet. Exactly one of Constant and Trace is set.
type UtilizationSpec struct {
	Constant *float64  `yaml:"constant,omitempty"`
	Trace    []float64 `yaml:"trace,omitempty"`
	// Simulated time between two trace samples.
	Interval float64 `yaml:"interval,omitempty"`
}

type ComponentSpec struct {
	Tag         string  `yaml:"tag"`
	Utilization float64 `yaml:"utilization"`
	Price       float64 `yaml:"price"`
}

type CloudletSpec struct {
	ID          string          `yaml:"id"`
	VM          string          `yaml:"vm"`
	Length      float64         `yaml:"lengthMI"`
	SubmitAt    float64         `yaml:"submitAt"`
	Utilization UtilizationSpec `yaml:"utilization"`
	Components  []ComponentSpec `yaml:"components,omitempty"`
}

// Hosts, vms and cloudlets of a simulation run.
type Scenario struct {
	Name      string         `yaml:"name"`
	Hosts     []HostSpec     `yaml:"hosts"`
	VMs       []VMSpec       `yaml:"vms"`
	Cloudlets []CloudletSpec `yaml:"cloudlets"`
}

// Read a scenario from a yaml file.
func Load(path string) (Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return Scenario{}, err
	}
	s, err := Parse(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse a yaml scenario. Unknown fields are rejected.
func Parse(data []byte) (Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Scenario{}, err
	}
	return s, nil
}

// Write the scenario as yaml to the given file.
func (s Scenario) Write(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Check that all ids are unique and all references resolve.
func (s Scenario) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidScenario}, args...)...))
	}
	hosts := map[string]struct{}{}
	for _, h := range s.Hosts {
		if _, ok := hosts[h.ID]; ok || h.ID == "" {
			invalid("duplicate or empty host id %q", h.ID)
		}
		hosts[h.ID] = struct{}{}
		if h.MIPS <= 0 || h.RAM <= 0 {
			invalid("host %s needs positive mips and ram", h.ID)
		}
		if _, err := h.Power.model(); err != nil {
			invalid("host %s: %v", h.ID, err)
		}
	}
	vms := map[string]struct{}{}
	for _, vm := range s.VMs {
		if _, ok := vms[vm.ID]; ok || vm.ID == "" {
			invalid("duplicate or empty vm id %q", vm.ID)
		}
		vms[vm.ID] = struct{}{}
		if vm.MIPS <= 0 || vm.RAM <= 0 {
			invalid("vm %s needs positive mips and ram", vm.ID)
		}
		if _, ok := hosts[vm.Host]; vm.Host != "" && !ok {
			invalid("vm %s is pinned to unknown host %q", vm.ID, vm.Host)
		}
	}
	cloudlets := map[string]struct{}{}
	for _, c := range s.Cloudlets {
		if _, ok := cloudlets[c.ID]; ok || c.ID == "" {
			invalid("duplicate or empty cloudlet id %q", c.ID)
		}
		cloudlets[c.ID] = struct{}{}
		if _, ok := vms[c.VM]; !ok {
			invalid("cloudlet %s runs on unknown vm %q", c.ID, c.VM)
		}
		if c.Length <= 0 {
			invalid("cloudlet %s needs a positive length", c.ID)
		}
		if c.SubmitAt < 0 {
			invalid("cloudlet %s is submitted before the start", c.ID)
		}
		if _, err := c.Utilization.model(); err != nil {
			invalid("cloudlet %s: %v", c.ID, err)
		}
		tags := map[string]struct{}{}
		for _, comp := range c.Components {
			if _, ok := tags[comp.Tag]; ok || comp.Tag == "" {
				invalid("cloudlet %s has duplicate or empty component tag %q", c.ID, comp.Tag)
			}
			tags[comp.Tag] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

func (p PowerSpec) model() (model.PowerModel, error) {
	switch p.Type {
	case "linear":
		if p.Idle < 0 || p.Max < p.Idle {
			return nil, fmt.Errorf("linear power needs 0 <= idle <= max, got %v and %v", p.Idle, p.Max)
		}
		return model.LinearPowerModel{Idle: p.Idle, Max: p.Max}, nil
	case "specpower":
		if p.Table != "" {
			return model.SpecPowerByName(p.Table)
		}
		var m model.SpecPowerModel
		if len(p.Watts) != len(m.Watts) {
			return nil, fmt.Errorf("specpower needs %d measurements, got %d", len(m.Watts), len(p.Watts))
		}
		copy(m.Watts[:], p.Watts)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown power model %q", p.Type)
	}
}

func (u UtilizationSpec) model() (model.UtilizationModel, error) {
	switch {
	case u.Constant != nil && len(u.Trace) > 0:
		return nil, errors.New("utilization is either constant or a trace")
	case u.Constant != nil:
		return model.NewConstantUtilization(*u.Constant), nil
	case len(u.Trace) > 0:
		if u.Interval <= 0 {
			return nil, fmt.Errorf("trace needs a positive interval, got %v", u.Interval)
		}
		return model.NewTraceUtilization(u.Interval, u.Trace), nil
	default:
		return nil, errors.New("utilization is missing")
	}
}

// Vm of a built scenario and the host it is pinned to, if any.
type Placement struct {
	VM     *model.VM
	HostID string
}

// Model objects of a scenario, ready to be handed to a datacenter.
type Workload struct {
	Hosts     []*model.Host
	VMs       []Placement
	Cloudlets []*model.Cloudlet
}

// Validate the scenario and create its model objects.
func (s Scenario) Build() (Workload, error) {
	if err := s.Validate(); err != nil {
		return Workload{}, err
	}
	var w Workload
	for _, h := range s.Hosts {
		power, err := h.Power.model()
		if err != nil {
			return Workload{}, err
		}
		w.Hosts = append(w.Hosts, model.NewHost(h.ID, h.MIPS, h.RAM, h.Bandwidth, power))
	}
	for _, vm := range s.VMs {
		w.VMs = append(w.VMs, Placement{VM: model.NewVM(vm.ID, vm.MIPS, vm.RAM), HostID: vm.Host})
	}
	for _, c := range s.Cloudlets {
		cpu, err := c.Utilization.model()
		if err != nil {
			return Workload{}, err
		}
		components := make([]*model.OptionalComponent, 0, len(c.Components))
		for _, comp := range c.Components {
			components = append(components, &model.OptionalComponent{
				Tag:         comp.Tag,
				Utilization: comp.Utilization,
				Price:       comp.Price,
			})
		}
		cloudlet := model.NewCloudlet(c.ID, c.VM, c.Length, cpu, components)
		cloudlet.SubmitAt = c.SubmitAt
		w.Cloudlets = append(w.Cloudlets, cloudlet)
	}
	return w, nil
}
