// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"log/slog"
	"math"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

// Tolerance used to decide if a time falls onto a sampling point.
const samplingTolerance = 1e-6

// Number of idle hosts observed at a sampling point.
type IdleHostSample struct {
	Time  float64
	Count int
}

// Accumulates the energy consumed by all hosts of a datacenter.
type EnergyAccountant struct {
	period float64
	offset float64

	total   float64
	samples []IdleHostSample
	// Distinct times at which energy was accounted.
	accountedTimes map[float64]struct{}
}

func NewEnergyAccountant(period, offset float64) *EnergyAccountant {
	return &EnergyAccountant{
		period:         period,
		offset:         offset,
		accountedTimes: map[float64]struct{}{},
	}
}

// Account the energy of all hosts for the interval of length dt ending at
// now and return it. Nothing is accounted for empty or negative intervals.
func (a *EnergyAccountant) Account(hosts []*model.Host, now, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	a.accountedTimes[now] = struct{}{}
	var energy float64
	idle := 0
	for _, host := range hosts {
		prev, cur := host.PreviousUtilization(), host.Utilization()
		hostEnergy := host.Energy(prev, cur, dt)
		energy += hostEnergy
		slog.Debug(
			"datacenter: host energy",
			"time", now, "host", host.ID,
			"previousUtilization", prev, "utilization", cur,
			"energy", hostEnergy,
		)
		if cur == 0 {
			idle++
		}
	}
	if a.isSamplingPoint(now) {
		a.record(IdleHostSample{Time: now - a.offset, Count: idle})
	}
	a.total += energy
	slog.Debug("datacenter: interval energy", "time", now, "energy", energy, "total", a.total)
	return energy
}

// Whether (t - offset) mod period is zero, within tolerance.
func (a *EnergyAccountant) isSamplingPoint(t float64) bool {
	if a.period <= 0 {
		return false
	}
	rest := math.Mod(t-a.offset, a.period)
	if rest < 0 {
		rest += a.period
	}
	return rest < samplingTolerance || a.period-rest < samplingTolerance
}

// Append a sample, replacing the value of an existing sample at the same time.
func (a *EnergyAccountant) record(sample IdleHostSample) {
	for i := range a.samples {
		if math.Abs(a.samples[i].Time-sample.Time) < samplingTolerance {
			a.samples[i].Count = sample.Count
			return
		}
	}
	a.samples = append(a.samples, sample)
}

// Energy in watt-seconds accumulated over the run.
func (a *EnergyAccountant) Total() float64 { return a.total }

// Idle host samples in the order they were taken.
func (a *EnergyAccountant) IdleHostSamples() []IdleHostSample {
	out := make([]IdleHostSample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Number of distinct times at which energy was accounted.
func (a *EnergyAccountant) AccountedTimes() int { return len(a.accountedTimes) }
