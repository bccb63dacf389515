// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

// Simulated time needed to transfer a vm's memory to a host. Half of the
// host bandwidth is used for the transfer, the other half stays with the
// traffic of the running vms.
func TransferDelay(ramMB, bandwidth, conversion float64) float64 {
	return ramMB / (bandwidth / 2 / conversion)
}

// Issues the migrations planned by the allocation policy.
type MigrationOrchestrator struct {
	clock      Clock
	conversion float64
	// Hosts of the datacenter by id.
	hosts map[string]*model.Host

	count int
}

func NewMigrationOrchestrator(clock Clock, conversion float64, hosts []*model.Host) *MigrationOrchestrator {
	byID := make(map[string]*model.Host, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}
	return &MigrationOrchestrator{clock: clock, conversion: conversion, hosts: byID}
}

// Number of migrations issued so far.
func (o *MigrationOrchestrator) Count() int { return o.count }

// Check that the migration can be carried out.
func (o *MigrationOrchestrator) validate(m model.Migration) error {
	if m.VM == nil {
		return fmt.Errorf("%w: migration without vm", ErrInvalidMigrationTarget)
	}
	if m.Target == nil {
		return fmt.Errorf("%w: vm %s has no target host", ErrInvalidMigrationTarget, m.VM.ID)
	}
	if known, ok := o.hosts[m.Target.ID]; !ok || known != m.Target {
		return fmt.Errorf("%w: host %s of vm %s is not part of the datacenter",
			ErrInvalidMigrationTarget, m.Target.ID, m.VM.ID)
	}
	if m.Target.Bandwidth <= 0 {
		return fmt.Errorf("%w: host %s of vm %s has no bandwidth",
			ErrInvalidMigrationTarget, m.Target.ID, m.VM.ID)
	}
	return nil
}

// Reserve each vm on its target host and schedule the completion of the
// transfer. Invalid entries are skipped and returned as a joined error.
func (o *MigrationOrchestrator) Issue(plan []model.Migration) ([]*model.Migration, error) {
	now := o.clock.Now()
	var errs []error
	issued := make([]*model.Migration, 0, len(plan))
	for _, entry := range plan {
		if err := o.validate(entry); err != nil {
			errs = append(errs, err)
			continue
		}
		m := entry
		m.Source = o.hosts[m.VM.HostID()]
		m.Delay = TransferDelay(m.VM.RAM, m.Target.Bandwidth, o.conversion)
		if m.Source == nil {
			slog.Info("datacenter: migration started", "time", now, "vm", m.VM.ID, "target", m.Target.ID, "delay", m.Delay)
		} else {
			slog.Info("datacenter: migration started", "time", now, "vm", m.VM.ID,
				"source", m.Source.ID, "target", m.Target.ID, "delay", m.Delay)
		}
		m.Target.ReserveIncomingVM(m.VM)
		o.count++
		o.clock.Schedule(m.Delay, KindMigrate, &m)
		issued = append(issued, &m)
	}
	return issued, errors.Join(errs...)
}
