// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

// Returned when no host can take a vm.
var ErrNoSuitableHost = errors.New("no suitable host")

// Allocation policy that migrates vms away from hosts whose utilization
// exceeds a static threshold. Targets are chosen by the lowest increase in
// power draw.
type StaticThreshold struct {
	// Hosts above this utilization are overloaded.
	threshold float64
	hosts     []*model.Host
	hostsByID map[string]*model.Host
	// Cycle detector to avoid vms moving back and forth.
	cycleDetector CycleDetector
}

func NewStaticThreshold(threshold float64, hosts []*model.Host) *StaticThreshold {
	byID := make(map[string]*model.Host, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}
	return &StaticThreshold{
		threshold:     threshold,
		hosts:         hosts,
		hostsByID:     byID,
		cycleDetector: NewCycleDetector(),
	}
}

// Place a new vm on the host with the lowest power increase that can take it.
func (p *StaticThreshold) Place(vm *model.VM) (*model.Host, error) {
	host := p.findHost(vm, nil, map[string]float64{})
	if host == nil {
		return nil, fmt.Errorf("%w for vm %s", ErrNoSuitableHost, vm.ID)
	}
	if err := p.Allocate(vm, host); err != nil {
		return nil, err
	}
	return host, nil
}

// Place a vm on the given host.
func (p *StaticThreshold) Allocate(vm *model.VM, host *model.Host) error {
	if host == nil {
		return fmt.Errorf("%w for vm %s", ErrNoSuitableHost, vm.ID)
	}
	return host.AddVM(vm)
}

// Remove a vm from its current host.
func (p *StaticThreshold) Release(vm *model.VM) {
	host, ok := p.hostsByID[vm.HostID()]
	if !ok {
		return
	}
	host.RemoveVM(vm)
}

// Plan migrations of the smallest vms off every overloaded host until the
// host is expected to be below the threshold again.
func (p *StaticThreshold) PlanMigrations(vms []*model.VM) []model.Migration {
	population := make(map[*model.VM]struct{}, len(vms))
	for _, vm := range vms {
		population[vm] = struct{}{}
	}

	overloaded := make(map[string]struct{})
	var candidates []*model.VM
	for _, host := range p.hosts {
		if !p.isOverloaded(host.Utilization()) {
			continue
		}
		overloaded[host.ID] = struct{}{}
		candidates = append(candidates, p.selectVMs(host, population)...)
	}
	if len(candidates) == 0 {
		return nil
	}
	// Place the most demanding vms first.
	slices.SortStableFunc(candidates, func(a, b *model.VM) int {
		return cmp.Compare(requestedMIPS(b), requestedMIPS(a))
	})

	// Mips already planned to move to each host in this round.
	planned := make(map[string]float64)
	var plan []model.Migration
	for _, vm := range candidates {
		exclude := func(h *model.Host) bool {
			_, isOverloaded := overloaded[h.ID]
			return isOverloaded || h.ID == vm.HostID()
		}
		target := p.findHost(vm, exclude, planned)
		if target == nil {
			slog.Debug("allocation: no target for vm", "vm", vm.ID, "source", vm.HostID())
			continue
		}
		planned[target.ID] += requestedMIPS(vm)
		plan = append(plan, model.Migration{VM: vm, Target: target})
	}
	plan = p.cycleDetector.Filter(plan)
	if len(plan) > 0 {
		slog.Info("allocation: planned migrations", "count", len(plan), "overloadedHosts", len(overloaded))
	}
	return plan
}

func (p *StaticThreshold) isOverloaded(utilization float64) bool {
	return utilization > p.threshold
}

// Select vms with the least memory, which migrate fastest, until the host
// utilization is expected to drop below the threshold.
func (p *StaticThreshold) selectVMs(host *model.Host, population map[*model.VM]struct{}) []*model.VM {
	var migratable []*model.VM
	for _, vm := range host.VMs() {
		if _, ok := population[vm]; !ok || vm.IsInMigration() {
			continue
		}
		migratable = append(migratable, vm)
	}
	slices.SortStableFunc(migratable, func(a, b *model.VM) int {
		return cmp.Compare(a.RAM, b.RAM)
	})
	var selected []*model.VM
	utilization := host.Utilization()
	for _, vm := range migratable {
		if !p.isOverloaded(utilization) || host.MIPS <= 0 {
			break
		}
		selected = append(selected, vm)
		utilization -= requestedMIPS(vm) / host.MIPS
	}
	return selected
}

// Find the host with the lowest increase in power draw that has room for
// the vm and stays below the threshold. Ties keep the earlier host.
func (p *StaticThreshold) findHost(vm *model.VM, exclude func(*model.Host) bool, planned map[string]float64) *model.Host {
	var best *model.Host
	bestIncrease := math.Inf(1)
	for _, host := range p.hosts {
		if exclude != nil && exclude(host) {
			continue
		}
		if !hasCapacity(host, vm) || host.MIPS <= 0 {
			continue
		}
		before := model.ClampUtilization(host.Utilization() + planned[host.ID]/host.MIPS)
		after := before + requestedMIPS(vm)/host.MIPS
		if p.isOverloaded(after) {
			continue
		}
		increase := power(host, after) - power(host, before)
		if best == nil || increase < bestIncrease {
			best, bestIncrease = host, increase
		}
	}
	return best
}

// Whether the host has enough free memory and unreserved mips for the vm.
func hasCapacity(host *model.Host, vm *model.VM) bool {
	if vm.RAM > host.AvailableRAM() {
		return false
	}
	reserved := vm.MIPS
	for _, other := range host.VMs() {
		reserved += other.MIPS
	}
	for _, other := range host.MigratingInVMs() {
		reserved += other.MIPS
	}
	return reserved <= host.MIPS
}

func power(host *model.Host, utilization float64) float64 {
	if host.Power == nil {
		return 0
	}
	return host.Power.Power(model.ClampUtilization(utilization))
}

// Requested mips of the vm in its latest history sample.
func requestedMIPS(vm *model.VM) float64 {
	last, ok := vm.LastSample()
	if !ok {
		return 0
	}
	return last.RequestedMIPS
}
