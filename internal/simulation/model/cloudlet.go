// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

// Million instructions below which a cloudlet counts as finished.
const finishTolerance = 1e-6

// Detachable part of a cloudlet's workload. Disabling it removes its
// utilization contribution from the cloudlet at the cost of its price.
type OptionalComponent struct {
	// Tag unique within the cloudlet. Components sharing a tag on the
	// same host are disabled together.
	Tag string
	// Share of the cloudlet's cpu demand in [0,1].
	Utilization float64
	// Revenue lost while the component is disabled.
	Price   float64
	Enabled bool
}

// Unit of workload running on exactly one vm.
type Cloudlet struct {
	ID string
	// ID of the vm the cloudlet runs on.
	VMID string
	// Length of the cloudlet in million instructions.
	Length float64
	// Simulated time at which the cloudlet is submitted.
	SubmitAt float64

	cpu        UtilizationModel
	components []*OptionalComponent
	processed  float64
	finished   bool
}

// Create a cloudlet with all optional components enabled.
func NewCloudlet(id, vmID string, length float64, cpu UtilizationModel, components []*OptionalComponent) *Cloudlet {
	for _, c := range components {
		c.Utilization = clampWithWarning("component "+c.Tag, c.Utilization)
		c.Enabled = true
	}
	return &Cloudlet{
		ID:         id,
		VMID:       vmID,
		Length:     length,
		cpu:        cpu,
		components: components,
	}
}

// Optional components in their configured order.
func (c *Cloudlet) OptionalComponents() []*OptionalComponent { return c.components }

// Enable all optional components again.
func (c *Cloudlet) EnableAllComponents() {
	for _, comp := range c.components {
		comp.Enabled = true
	}
}

// Sum of the utilization contributions of all disabled components.
func (c *Cloudlet) DisabledUtilization() float64 {
	var sum float64
	for _, comp := range c.components {
		if !comp.Enabled {
			sum += comp.Utilization
		}
	}
	return sum
}

// Cpu utilization of the cloudlet at the given time.
func (c *Cloudlet) Utilization(time float64) float64 {
	if c.cpu == nil {
		return 0
	}
	return c.cpu.Utilization(time)
}

// Overwrite the cpu utilization of the cloudlet from the given time on.
func (c *Cloudlet) SetUtilization(value, time float64) {
	if c.cpu == nil {
		c.cpu = NewConstantUtilization(0)
	}
	c.cpu.SetUtilization(value, time)
}

// Million instructions left to process.
func (c *Cloudlet) Remaining() float64 {
	if rest := c.Length - c.processed; rest > 0 {
		return rest
	}
	return 0
}

func (c *Cloudlet) IsFinished() bool { return c.finished }

func (c *Cloudlet) process(mi float64) {
	if c.finished {
		return
	}
	if mi > 0 {
		c.processed += mi
	}
	if c.Length-c.processed <= finishTolerance {
		c.processed = c.Length
		c.finished = true
	}
}
