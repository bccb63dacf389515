// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/datacenter/selection"
	"github.com/cobaltcore-dev/brownout/internal/simulation/events"
	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

const (
	// Periodic update of the datacenter.
	KindTick events.Kind = "tick"
	// Completion of a vm migration, the payload is a *model.Migration.
	KindMigrate events.Kind = "migrate"
	// Submission of a cloudlet, the payload is a *model.Cloudlet.
	KindSubmit events.Kind = "submit"
)

// Virtual clock the datacenter schedules its events on.
type Clock interface {
	Now() float64
	Schedule(delay float64, kind events.Kind, payload any)
	CancelPending(kind events.Kind) int
	FindNextPending(kind events.Kind) (events.Event, bool)
}

// Decides where vms are placed and which vms should be migrated.
type AllocationPolicy interface {
	// Choose a host for a new vm and place it there.
	Place(vm *model.VM) (*model.Host, error)
	// Place a vm on the given host.
	Allocate(vm *model.VM, host *model.Host) error
	// Remove a vm from its host.
	Release(vm *model.VM)
	// Plan migrations for the given vms. The source host of the returned
	// migrations is filled in by the datacenter.
	PlanMigrations(vms []*model.VM) []model.Migration
}

// Summary of a datacenter run.
type Report struct {
	// Energy consumed by all hosts in watt-seconds.
	Energy float64
	// Number of migrations issued.
	Migrations int
	// Number of dimmer triggers on overloaded hosts.
	DimmerTriggers int
	// Number of host evaluations in which the dimmer could have triggered.
	DimmerEvaluations int
	// Idle host counts at the sampling points.
	IdleHostSamples []IdleHostSample
	// Sum of the revenue loss of all hosts.
	RevenueLoss float64
	// Simulated time of the last update pass.
	FinishedAt float64
}

// Simulated datacenter driving energy accounting, migrations and the dimmer
// from the events of a virtual clock.
type Datacenter struct {
	config  conf.SimulationConfig
	clock   Clock
	policy  AllocationPolicy
	monitor Monitor

	hosts []*model.Host
	vms   []*model.VM

	energy     *EnergyAccountant
	dimmer     *DimmerController
	migrations *MigrationOrchestrator

	// Simulated time of the last update pass.
	lastProcessTime float64
	// Simulated time of the last cloudlet submission, negative if none.
	cloudletSubmitted float64
}

// Create a datacenter with the given hosts. Vms are added with CreateVM.
func New(config conf.SimulationConfig, clock Clock, policy AllocationPolicy, hosts []*model.Host, monitor Monitor) (*Datacenter, error) {
	strategy, err := selection.Get(config.SelectionStrategy)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		slog.Warn("datacenter: created without hosts")
	}
	return &Datacenter{
		config:            config,
		clock:             clock,
		policy:            policy,
		monitor:           monitor,
		hosts:             hosts,
		energy:            NewEnergyAccountant(config.SamplingPeriod, config.SamplingOffset),
		dimmer:            NewDimmerController(config.OverloadThreshold, config.ComponentUtilizationFloor, strategy),
		migrations:        NewMigrationOrchestrator(clock, config.BandwidthConversion, hosts),
		cloudletSubmitted: -1,
	}, nil
}

// Hosts of the datacenter.
func (d *Datacenter) Hosts() []*model.Host { return d.hosts }

// Vms that were created and not released yet.
func (d *Datacenter) VMs() []*model.VM { return slices.Clone(d.vms) }

// Place a new vm through the allocation policy.
func (d *Datacenter) CreateVM(vm *model.VM) error {
	host, err := d.policy.Place(vm)
	if err != nil {
		return fmt.Errorf("failed to place vm %s: %w", vm.ID, err)
	}
	d.vms = append(d.vms, vm)
	slog.Info("datacenter: vm created", "vm", vm.ID, "host", host.ID)
	return nil
}

// Place a new vm on the host with the given id, bypassing the placement
// decision of the allocation policy.
func (d *Datacenter) CreateVMOn(vm *model.VM, hostID string) error {
	i := slices.IndexFunc(d.hosts, func(h *model.Host) bool { return h.ID == hostID })
	if i < 0 {
		return fmt.Errorf("failed to place vm %s: unknown host %q", vm.ID, hostID)
	}
	if err := d.policy.Allocate(vm, d.hosts[i]); err != nil {
		return fmt.Errorf("failed to place vm %s: %w", vm.ID, err)
	}
	d.vms = append(d.vms, vm)
	slog.Info("datacenter: vm created", "vm", vm.ID, "host", hostID)
	return nil
}

// Schedule the submission of the cloudlets at their submission times.
func (d *Datacenter) ScheduleCloudlets(cloudlets []*model.Cloudlet) {
	now := d.clock.Now()
	for _, c := range cloudlets {
		d.clock.Schedule(c.SubmitAt-now, KindSubmit, c)
	}
}

// Dispatch an event of the virtual clock.
func (d *Datacenter) ProcessEvent(ev events.Event) {
	switch ev.Kind {
	case KindTick:
		d.UpdateCloudletProcessing()
	case KindMigrate:
		m, ok := ev.Payload.(*model.Migration)
		if !ok {
			slog.Error("datacenter: migrate event without migration", "payload", ev.Payload)
			return
		}
		d.processVMMigrate(m)
	case KindSubmit:
		c, ok := ev.Payload.(*model.Cloudlet)
		if !ok {
			slog.Error("datacenter: submit event without cloudlet", "payload", ev.Payload)
			return
		}
		if err := d.SubmitCloudlet(c); err != nil {
			slog.Error("datacenter: failed to submit cloudlet", "cloudlet", c.ID, "error", err)
		}
	default:
		slog.Warn("datacenter: unknown event", "kind", ev.Kind)
	}
}

// Hand a cloudlet to its vm. Hosts are brought up to date first, so the
// new workload does not count for the interval that just ended.
func (d *Datacenter) SubmitCloudlet(c *model.Cloudlet) error {
	idx := slices.IndexFunc(d.vms, func(vm *model.VM) bool { return vm.ID == c.VMID })
	if idx < 0 {
		return fmt.Errorf("vm %s of cloudlet %s does not exist", c.VMID, c.ID)
	}
	d.UpdateCloudletProcessing()
	now := d.clock.Now()
	d.vms[idx].Submit(c, now)
	d.cloudletSubmitted = now
	d.rescheduleTick()
	slog.Debug("datacenter: cloudlet submitted", "time", now, "cloudlet", c.ID, "vm", c.VMID)
	return nil
}

// Handle a tick of the virtual clock.
func (d *Datacenter) UpdateCloudletProcessing() {
	now := d.clock.Now()
	if d.cloudletSubmitted < 0 || d.cloudletSubmitted == now {
		// Awaiting workload: keep ticking without accounting.
		d.rescheduleTick()
		return
	}
	if now <= d.lastProcessTime {
		return
	}
	minTime := d.updateForced()

	if !d.config.DisableMigrations {
		if plan := d.policy.PlanMigrations(d.VMs()); len(plan) > 0 {
			issued, err := d.migrations.Issue(plan)
			if err != nil {
				slog.Error("datacenter: rejected migrations", "time", now, "error", err)
			}
			d.monitor.observeMigrations(issued)
		}
	}

	if !math.IsInf(minTime, 1) {
		d.rescheduleTick()
	} else {
		slog.Info("datacenter: no further work, not scheduling a tick", "time", now)
	}
	d.lastProcessTime = now
}

// Replace all pending ticks with one after the scheduling interval.
func (d *Datacenter) rescheduleTick() {
	d.clock.CancelPending(KindTick)
	d.clock.Schedule(d.config.SchedulingInterval, KindTick, nil)
}

// Update pass that only runs if time passed since the last one.
func (d *Datacenter) updateGuarded() float64 {
	if d.clock.Now() > d.lastProcessTime {
		return d.updateForced()
	}
	return 0
}

// Run the dimmer and advance every host to now, then account the energy of
// the elapsed interval and release completed vms. Returns the earliest
// next event time reported by the hosts.
func (d *Datacenter) updateForced() float64 {
	defer d.monitor.timeUpdate()()
	now := d.clock.Now()
	dt := now - d.lastProcessTime

	value, err := d.dimmer.Value(d.hosts)
	if err != nil {
		slog.Error("datacenter: skipping dimmer", "time", now, "error", err)
	}
	triggersBefore := d.dimmer.Triggers()
	minTime := math.Inf(1)
	for _, host := range d.hosts {
		if err == nil {
			d.dimmer.Trigger(host, now, value)
		}
		minTime = math.Min(minTime, host.UpdateVMsProcessing(now))
		slog.Debug("datacenter: host updated", "time", now, "host", host.ID, "utilization", host.Utilization())
	}
	if err == nil {
		d.monitor.observeDimmer(value, d.dimmer.Triggers()-triggersBefore)
	}

	if energy := d.energy.Account(d.hosts, now, dt); energy > 0 {
		slog.Info("datacenter: energy accounted", "from", d.lastProcessTime, "to", now, "energy", energy)
	}
	d.monitor.observeEnergy(d.energy.Total())
	d.monitor.observeIdleHosts(d.energy.samples)
	d.monitor.observeHosts(d.hosts)

	d.releaseCompletedVMs()
	d.lastProcessTime = now
	return minTime
}

// Release vms whose workload is done.
func (d *Datacenter) releaseCompletedVMs() {
	for _, host := range d.hosts {
		for _, vm := range host.CompletedVMs() {
			d.policy.Release(vm)
			d.vms = slices.DeleteFunc(d.vms, func(other *model.VM) bool { return other == vm })
			slog.Info("datacenter: vm released", "vm", vm.ID, "host", host.ID)
		}
	}
}

// Complete a migration: the vm moves from its source to its target host.
func (d *Datacenter) processVMMigrate(m *model.Migration) {
	// Guarded: an instant that was already updated is not accounted twice.
	d.updateGuarded()
	now := d.clock.Now()
	if err := d.completeMigration(m); err != nil {
		slog.Error("datacenter: failed to complete migration", "time", now, "vm", m.VM.ID, "error", err)
	} else {
		slog.Info("datacenter: migration completed", "time", now, "vm", m.VM.ID, "target", m.Target.ID)
	}
	if next, ok := d.clock.FindNextPending(KindMigrate); !ok || next.Time > now {
		d.updateForced()
	}
}

func (d *Datacenter) completeMigration(m *model.Migration) error {
	vm := m.VM
	if !slices.Contains(d.vms, vm) {
		m.Target.RemoveIncomingVM(vm)
		vm.SetInMigration(false)
		return fmt.Errorf("vm %s was released during the migration", vm.ID)
	}
	d.policy.Release(vm)
	m.Target.RemoveIncomingVM(vm)
	vm.SetInMigration(false)
	if err := d.policy.Allocate(vm, m.Target); err != nil {
		// Keep the vm running somewhere rather than losing it.
		host, placeErr := d.policy.Place(vm)
		if placeErr != nil {
			return errors.Join(err, placeErr)
		}
		return fmt.Errorf("placed vm on host %s instead: %w", host.ID, err)
	}
	return nil
}

// Sum of the revenue loss of all hosts.
func (d *Datacenter) RevenueLoss() float64 {
	var loss float64
	for _, host := range d.hosts {
		loss += host.RevenueLoss()
	}
	return loss
}

// Summary of the run so far.
func (d *Datacenter) Report() Report {
	return Report{
		Energy:            d.energy.Total(),
		Migrations:        d.migrations.Count(),
		DimmerTriggers:    d.dimmer.Triggers(),
		DimmerEvaluations: d.energy.AccountedTimes() * len(d.hosts),
		IdleHostSamples:   d.energy.IdleHostSamples(),
		RevenueLoss:       d.RevenueLoss(),
		FinishedAt:        d.lastProcessTime,
	}
}
