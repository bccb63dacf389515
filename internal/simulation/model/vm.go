// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"math"
	"slices"
)

// State of a vm recorded at each host update.
type UtilizationSample struct {
	Time          float64
	RequestedMIPS float64
	AllocatedMIPS float64
	InMigration   bool
}

// Virtual machine running cloudlets.
type VM struct {
	ID string
	// Cpu capacity in MIPS.
	MIPS float64
	// Memory size in MB.
	RAM float64

	// ID of the host the vm is placed on, empty if unplaced. The host owns
	// the vm, this is only used for lookups.
	hostID      string
	inMigration bool
	history     []UtilizationSample
	hostHistory []string

	running       []*Cloudlet
	finished      []*Cloudlet
	allocatedMIPS float64
	// Set while the host has not allocated mips since work arrived on an
	// empty vm. Until then the vm gets what it requests.
	unallocated bool
	lastUpdate  float64
}

func NewVM(id string, mips, ram float64) *VM {
	return &VM{ID: id, MIPS: mips, RAM: ram}
}

// ID of the current host, or an empty string if the vm is not placed.
func (vm *VM) HostID() string { return vm.hostID }

func (vm *VM) IsInMigration() bool { return vm.inMigration }
func (vm *VM) SetInMigration(inMigration bool) { vm.inMigration = inMigration }

// Append-only history of utilization samples, oldest first.
func (vm *VM) UtilizationHistory() []UtilizationSample { return slices.Clone(vm.history) }

// Most recent utilization sample, false if the vm was never updated.
func (vm *VM) LastSample() (UtilizationSample, bool) {
	if len(vm.history) == 0 {
		return UtilizationSample{}, false
	}
	return vm.history[len(vm.history)-1], true
}

// IDs of all hosts the vm has been placed on, in order.
func (vm *VM) HostHistory() []string { return slices.Clone(vm.hostHistory) }

func (vm *VM) RunningCloudlets() []*Cloudlet { return vm.running }
func (vm *VM) FinishedCloudlets() []*Cloudlet { return vm.finished }

// Whether the vm has run workload and all of it is finished.
func (vm *VM) IsCompleted() bool {
	return len(vm.running) == 0 && len(vm.finished) > 0
}

// Start executing a cloudlet on this vm.
func (vm *VM) Submit(c *Cloudlet, now float64) {
	if len(vm.running) == 0 {
		// No progress is owed for the time the vm was empty.
		vm.lastUpdate = now
		vm.unallocated = true
	}
	c.SubmitAt = now
	vm.running = append(vm.running, c)
}

// Requested MIPS of all running cloudlets at the given time, capped at the
// vm's capacity.
func (vm *VM) RequestedMIPS(time float64) float64 {
	var u float64
	for _, c := range vm.running {
		u += c.Utilization(time)
	}
	return ClampUtilization(u) * vm.MIPS
}

func (vm *VM) placeOn(hostID string) {
	vm.hostID = hostID
	if hostID != "" {
		vm.hostHistory = append(vm.hostHistory, hostID)
	}
}

// Advance the running cloudlets to now using the allocation of the last
// update and move finished cloudlets out of the running list.
func (vm *VM) advance(now float64) {
	dt := now - vm.lastUpdate
	if dt > 0 && len(vm.running) > 0 {
		requested := vm.RequestedMIPS(vm.lastUpdate)
		allocated := vm.allocatedMIPS
		if vm.unallocated {
			allocated = requested
		}
		for _, c := range vm.running {
			var mips float64
			if requested > 0 {
				share := c.Utilization(vm.lastUpdate) * vm.MIPS / requested
				mips = allocated * math.Min(share, 1)
			}
			c.process(mips * dt)
		}
	} else {
		for _, c := range vm.running {
			c.process(0)
		}
	}
	running := vm.running[:0]
	for _, c := range vm.running {
		if c.IsFinished() {
			vm.finished = append(vm.finished, c)
			continue
		}
		running = append(running, c)
	}
	for i := len(running); i < len(vm.running); i++ {
		vm.running[i] = nil
	}
	vm.running = running
	if now > vm.lastUpdate {
		vm.lastUpdate = now
	}
}

// Record the allocation for the next interval and return the estimated
// time of the next cloudlet completion. Vms with unfinished work whose
// completion cannot be estimated report now, +Inf means no work at all.
func (vm *VM) allocate(now, requested, allocated float64) float64 {
	vm.allocatedMIPS = allocated
	vm.unallocated = false
	vm.history = append(vm.history, UtilizationSample{
		Time:          now,
		RequestedMIPS: requested,
		AllocatedMIPS: allocated,
		InMigration:   vm.inMigration,
	})
	if len(vm.running) == 0 {
		return math.Inf(1)
	}
	next := math.Inf(1)
	for _, c := range vm.running {
		var mips float64
		if requested > 0 {
			share := c.Utilization(now) * vm.MIPS / requested
			mips = allocated * math.Min(share, 1)
		}
		if mips <= 0 {
			next = math.Min(next, now)
			continue
		}
		next = math.Min(next, now+c.Remaining()/mips)
	}
	return next
}
