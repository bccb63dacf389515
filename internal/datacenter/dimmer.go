// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"fmt"
	"log/slog"

	"github.com/cobaltcore-dev/brownout/internal/datacenter/selection"
	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

// Disables optional cloudlet components on overloaded hosts.
type DimmerController struct {
	// Hosts with a previous utilization above this value are overloaded.
	threshold float64
	// Cloudlet utilization used when the disabled components eat up all of it.
	floor    float64
	strategy selection.Strategy

	triggers int
}

func NewDimmerController(threshold, floor float64, strategy selection.Strategy) *DimmerController {
	return &DimmerController{threshold: threshold, floor: floor, strategy: strategy}
}

// Whether the host was overloaded in the previous interval.
func (d *DimmerController) IsOverloaded(host *model.Host) bool {
	return host.PreviousUtilization() > d.threshold
}

// Dimmer value for the given hosts: one minus the share of overloaded hosts.
func (d *DimmerController) Value(hosts []*model.Host) (float64, error) {
	if len(hosts) == 0 {
		return 0, fmt.Errorf("%w: dimmer value of a datacenter without hosts", ErrDivisionByZero)
	}
	overloaded := 0
	for _, host := range hosts {
		if d.IsOverloaded(host) {
			overloaded++
		}
	}
	return 1 - float64(overloaded)/float64(len(hosts)), nil
}

// Number of times the dimmer was triggered on a host.
func (d *DimmerController) Triggers() int { return d.triggers }

// Throttle the cloudlets on the host if it is overloaded. Returns whether
// the dimmer was triggered.
func (d *DimmerController) Trigger(host *model.Host, now, value float64) bool {
	if !d.IsOverloaded(host) {
		return false
	}
	d.triggers++
	host.SetDimmerValue(value)
	host.ResetDisabledTags()
	vms := host.VMs()
	for _, vm := range vms {
		for _, c := range vm.RunningCloudlets() {
			c.EnableAllComponents()
		}
	}
	slog.Info("datacenter: dimmer triggered", "time", now, "host", host.ID, "dimmerValue", value)

	for _, vm := range vms {
		for _, c := range vm.RunningCloudlets() {
			components := c.OptionalComponents()
			if len(components) == 0 {
				slog.Debug("datacenter: skipping cloudlet", "cloudlet", c.ID, "error", ErrEmptyComponentList)
				continue
			}
			previous := previousUtilization(vm, c, now)
			target := previous * (1 - value)
			d.disableComponent(host, components, target)
			u := UtilizationAfterDimmer(previous, c, d.floor)
			c.SetUtilization(u, now)
			slog.Debug(
				"datacenter: cloudlet throttled",
				"time", now, "host", host.ID, "vm", vm.ID, "cloudlet", c.ID,
				"previous", previous, "target", target, "utilization", u,
			)
		}
	}
	return true
}

// Disable the components whose tag is already disabled on the host, then
// let the strategy pick one more and charge its price to the host.
func (d *DimmerController) disableComponent(host *model.Host, components []*model.OptionalComponent, target float64) {
	for _, comp := range components {
		if host.IsTagDisabled(comp.Tag) {
			comp.Enabled = false
		}
	}
	i := d.strategy.Select(components, target)
	if i < 0 {
		return
	}
	chosen := components[i]
	chosen.Enabled = false
	host.DisableTag(chosen.Tag)
	host.AddRevenueLoss(chosen.Price)
}

// Cpu utilization of a cloudlet after its disabled components are taken
// away from the previous utilization. Results at or below zero are
// replaced by the floor.
func UtilizationAfterDimmer(previous float64, c *model.Cloudlet, floor float64) float64 {
	u := previous - c.DisabledUtilization()
	if u <= 0 {
		return floor
	}
	return u
}

// Utilization of the cloudlet at the vm's most recent history sample, or
// at now if the vm was never updated.
func previousUtilization(vm *model.VM, c *model.Cloudlet, now float64) float64 {
	last, ok := vm.LastSample()
	if !ok {
		return c.Utilization(now)
	}
	return c.Utilization(last.Time)
}
