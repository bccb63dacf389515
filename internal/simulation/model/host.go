// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

var (
	// Returned when a vm does not fit into the host's free memory.
	ErrInsufficientRAM = errors.New("insufficient ram on host")
	// Returned when a vm is already placed on another host.
	ErrAlreadyPlaced = errors.New("vm already placed on a host")
)

// Share of a migrating-in vm's requested mips that the target host spends
// on the migration itself.
const migrationOverhead = 0.1

// Physical machine hosting vms.
type Host struct {
	ID string
	// Cpu capacity in MIPS.
	MIPS float64
	// Memory capacity in MB.
	RAM float64
	// Network bandwidth in Mbit/s.
	Bandwidth float64
	// Power draw as a function of cpu utilization.
	Power PowerModel

	vms         []*VM
	migratingIn []*VM
	ramInUse    float64

	utilization         float64
	previousUtilization float64

	dimmerValue  float64
	disabledTags map[string]struct{}
	revenueLoss  float64
}

func NewHost(id string, mips, ram, bandwidth float64, power PowerModel) *Host {
	return &Host{
		ID:           id,
		MIPS:         mips,
		RAM:          ram,
		Bandwidth:    bandwidth,
		Power:        power,
		dimmerValue:  1,
		disabledTags: map[string]struct{}{},
	}
}

// Vms owned by this host, in placement order. The returned slice is a copy.
func (h *Host) VMs() []*VM { return slices.Clone(h.vms) }

// Vms reserved on this host whose migration has not completed yet.
func (h *Host) MigratingInVMs() []*VM { return slices.Clone(h.migratingIn) }

// Memory not used by placed or reserved vms.
func (h *Host) AvailableRAM() float64 { return h.RAM - h.ramInUse }

// Place a vm on this host.
func (h *Host) AddVM(vm *VM) error {
	if vm.hostID != "" && vm.hostID != h.ID {
		return fmt.Errorf("%w: vm %s is on host %s", ErrAlreadyPlaced, vm.ID, vm.hostID)
	}
	if slices.Contains(h.vms, vm) {
		return nil
	}
	if vm.RAM > h.AvailableRAM() {
		return fmt.Errorf("%w: vm %s needs %.0f MB, host %s has %.0f MB",
			ErrInsufficientRAM, vm.ID, vm.RAM, h.ID, h.AvailableRAM())
	}
	h.ramInUse += vm.RAM
	h.vms = append(h.vms, vm)
	vm.placeOn(h.ID)
	return nil
}

// Remove a vm from this host. Returns false if the vm was not placed here.
func (h *Host) RemoveVM(vm *VM) bool {
	i := slices.Index(h.vms, vm)
	if i < 0 {
		return false
	}
	h.vms = slices.Delete(h.vms, i, i+1)
	h.ramInUse -= vm.RAM
	if vm.hostID == h.ID {
		vm.placeOn("")
	}
	return true
}

// Reserve capacity for a vm that is being migrated to this host. The vm
// stays owned by its source host until the migration completes.
func (h *Host) ReserveIncomingVM(vm *VM) {
	if slices.Contains(h.migratingIn, vm) {
		return
	}
	vm.SetInMigration(true)
	h.migratingIn = append(h.migratingIn, vm)
	h.ramInUse += vm.RAM
}

// Drop the reservation of a migrating-in vm.
func (h *Host) RemoveIncomingVM(vm *VM) bool {
	i := slices.Index(h.migratingIn, vm)
	if i < 0 {
		return false
	}
	h.migratingIn = slices.Delete(h.migratingIn, i, i+1)
	h.ramInUse -= vm.RAM
	return true
}

// Cpu utilization in [0,1] after the last update.
func (h *Host) Utilization() float64 { return h.utilization }

// Cpu utilization in [0,1] before the last update.
func (h *Host) PreviousUtilization() float64 { return h.previousUtilization }

// Shift the current utilization to the previous one and record a new value.
func (h *Host) RecordUtilization(u float64) {
	h.previousUtilization = h.utilization
	h.utilization = clampWithWarning("host "+h.ID, u)
}

// Energy in watt-seconds consumed over dt while the utilization moved
// linearly from prev to cur.
func (h *Host) Energy(prev, cur, dt float64) float64 {
	if dt <= 0 || h.Power == nil {
		return 0
	}
	return (h.Power.Power(prev) + h.Power.Power(cur)) / 2 * dt
}

// Vms that ran workload, finished all of it, and are not migrating.
func (h *Host) CompletedVMs() []*VM {
	var completed []*VM
	for _, vm := range h.vms {
		if vm.IsCompleted() && !vm.IsInMigration() {
			completed = append(completed, vm)
		}
	}
	return completed
}

func (h *Host) DimmerValue() float64 { return h.dimmerValue }
func (h *Host) SetDimmerValue(value float64) { h.dimmerValue = value }

// Whether components with the given tag are disabled on this host.
func (h *Host) IsTagDisabled(tag string) bool {
	_, ok := h.disabledTags[tag]
	return ok
}

func (h *Host) DisableTag(tag string) { h.disabledTags[tag] = struct{}{} }

// Tags disabled on this host, sorted.
func (h *Host) DisabledTags() []string {
	tags := make([]string, 0, len(h.disabledTags))
	for tag := range h.disabledTags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Forget all disabled tags.
func (h *Host) ResetDisabledTags() { clear(h.disabledTags) }

// Cumulative price of all components disabled on this host.
func (h *Host) RevenueLoss() float64 { return h.revenueLoss }

// Add to the revenue loss. Negative amounts are ignored, the loss never decreases.
func (h *Host) AddRevenueLoss(amount float64) {
	if amount < 0 || math.IsNaN(amount) {
		slog.Warn("model: ignoring negative revenue loss", "host", h.ID, "amount", amount)
		return
	}
	h.revenueLoss += amount
}

// Advance all vms to now, allocate mips for the next interval, and record
// the new utilization. Returns the earliest time a hosted cloudlet is
// expected to finish, or +Inf if no vm on the host has work.
func (h *Host) UpdateVMsProcessing(now float64) float64 {
	for _, vm := range h.vms {
		vm.advance(now)
	}

	requested := make([]float64, len(h.vms))
	var total float64
	for i, vm := range h.vms {
		requested[i] = vm.RequestedMIPS(now)
		total += requested[i]
	}
	var overhead float64
	for _, vm := range h.migratingIn {
		overhead += migrationOverhead * vm.RequestedMIPS(now)
	}
	scale := 1.0
	if demand := total + overhead; demand > h.MIPS && demand > 0 {
		scale = h.MIPS / demand
	}

	next := math.Inf(1)
	var used float64
	for i, vm := range h.vms {
		allocated := requested[i] * scale
		used += allocated
		next = math.Min(next, vm.allocate(now, requested[i], allocated))
	}
	used += overhead * scale

	u := 0.0
	if h.MIPS > 0 {
		// Rounding may push a fully used host marginally above one.
		u = ClampUtilization(used / h.MIPS)
	}
	h.RecordUtilization(u)
	return next
}
