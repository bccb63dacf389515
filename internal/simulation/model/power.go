// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"math"
)

// Maps cpu utilization in [0,1] to instantaneous power draw in watts.
type PowerModel interface {
	Power(utilization float64) float64
}

// Power draw growing linearly from idle to max.
type LinearPowerModel struct {
	Idle float64
	Max  float64
}

func (m LinearPowerModel) Power(utilization float64) float64 {
	u := ClampUtilization(utilization)
	return m.Idle + (m.Max-m.Idle)*u
}

// Power draw from a SPECpower measurement table at 0%, 10%, ..., 100%
// utilization. Values between two measurements are interpolated linearly.
type SpecPowerModel struct {
	Watts [11]float64
}

func (m SpecPowerModel) Power(utilization float64) float64 {
	u := ClampUtilization(utilization)
	if u == 1 {
		return m.Watts[10]
	}
	lower := int(math.Floor(u * 10))
	delta := (m.Watts[lower+1] - m.Watts[lower]) / 0.1
	return m.Watts[lower] + delta*(u-float64(lower)/10)
}

// Well-known SPECpower tables used in consolidation experiments.
var (
	// HP ProLiant ML110 G4 (Intel Xeon 3040, 2 cores x 1860 MHz, 4 GB).
	SpecPowerHpProLiantMl110G4 = SpecPowerModel{Watts: [11]float64{86, 89.4, 92.6, 96, 99.5, 102, 106, 108, 112, 114, 117}}
	// HP ProLiant ML110 G5 (Intel Xeon 3075, 2 cores x 2660 MHz, 4 GB).
	SpecPowerHpProLiantMl110G5 = SpecPowerModel{Watts: [11]float64{93.7, 97, 101, 105, 110, 116, 121, 125, 129, 133, 135}}
)

// Look up a named SPECpower table.
func SpecPowerByName(name string) (SpecPowerModel, error) {
	switch name {
	case "hp-proliant-ml110-g4":
		return SpecPowerHpProLiantMl110G4, nil
	case "hp-proliant-ml110-g5":
		return SpecPowerHpProLiantMl110G5, nil
	default:
		return SpecPowerModel{}, fmt.Errorf("unknown specpower table %q", name)
	}
}
