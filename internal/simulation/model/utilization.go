// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
	"log/slog"
	"math"
	"sort"
)

// Returned (or logged) when a collaborator supplies a utilization outside [0,1].
// Such values are clamped and the simulation continues.
var ErrOutOfRangeUtilization = errors.New("utilization out of range [0,1]")

// Clamp a utilization value into [0,1]. NaN is treated as zero.
func ClampUtilization(u float64) float64 {
	if math.IsNaN(u) || u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

// Clamp a utilization value and log a warning if it had to be changed.
func clampWithWarning(source string, u float64) float64 {
	clamped := ClampUtilization(u)
	if clamped != u {
		slog.Warn("model: clamped utilization",
			"source", source, "value", u, "clamped", clamped,
			"error", ErrOutOfRangeUtilization)
	}
	return clamped
}

// Cpu utilization of a cloudlet over simulated time.
type UtilizationModel interface {
	// Utilization in [0,1] at the given time.
	Utilization(time float64) float64
	// Overwrite the utilization from the given time on.
	SetUtilization(value, time float64)
}

type utilizationOverride struct {
	time  float64
	value float64
}

// Constant utilization that can be overwritten from a point in time onward.
type ConstantUtilization struct {
	value     float64
	overrides []utilizationOverride
}

func NewConstantUtilization(value float64) *ConstantUtilization {
	return &ConstantUtilization{value: clampWithWarning("constant", value)}
}

func (m *ConstantUtilization) Utilization(time float64) float64 {
	// Overrides are kept sorted by time, so the last one not after time wins.
	i := sort.Search(len(m.overrides), func(i int) bool { return m.overrides[i].time > time })
	if i == 0 {
		return m.value
	}
	return m.overrides[i-1].value
}

func (m *ConstantUtilization) SetUtilization(value, time float64) {
	value = clampWithWarning("constant", value)
	i := sort.Search(len(m.overrides), func(i int) bool { return m.overrides[i].time >= time })
	if i < len(m.overrides) && m.overrides[i].time == time {
		m.overrides[i].value = value
		return
	}
	m.overrides = append(m.overrides, utilizationOverride{})
	copy(m.overrides[i+1:], m.overrides[i:])
	m.overrides[i] = utilizationOverride{time: time, value: value}
}

// Utilization trace sampled at a fixed interval, e.g. PlanetLab cpu traces.
// Values between two samples are interpolated linearly; times beyond the
// trace repeat the last sample.
type TraceUtilization struct {
	interval  float64
	data      []float64
	overrides map[int]float64
}

func NewTraceUtilization(interval float64, data []float64) *TraceUtilization {
	clamped := make([]float64, len(data))
	for i, v := range data {
		clamped[i] = clampWithWarning("trace", v)
	}
	return &TraceUtilization{interval: interval, data: clamped, overrides: map[int]float64{}}
}

func (m *TraceUtilization) slot(time float64) int {
	if m.interval <= 0 || time <= 0 {
		return 0
	}
	return int(math.Floor(time / m.interval))
}

func (m *TraceUtilization) Utilization(time float64) float64 {
	if len(m.data) == 0 {
		return 0
	}
	i := m.slot(time)
	if v, ok := m.overrides[i]; ok {
		return v
	}
	if i >= len(m.data)-1 {
		return m.data[len(m.data)-1]
	}
	frac := (time - float64(i)*m.interval) / m.interval
	return ClampUtilization(m.data[i] + (m.data[i+1]-m.data[i])*frac)
}

// Overwrite the utilization for the trace slot covering the given time.
func (m *TraceUtilization) SetUtilization(value, time float64) {
	m.overrides[m.slot(time)] = clampWithWarning("trace", value)
}
