// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"fmt"
	"math"
	"slices"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

// Chooses which optional component of a cloudlet the dimmer disables.
type Strategy interface {
	// Name under which the strategy is configured.
	GetName() string
	// Index of the component to disable given the utilization the dimmer
	// wants to take away, or -1 if no enabled component is left.
	Select(components []*model.OptionalComponent, target float64) int
}

// All strategies that can be configured.
var supportedStrategies = []Strategy{
	Nearest{},
	LowestUtilizationAboveTarget{},
	HighestUtilizationPriceRatio{},
	LowestPrice{},
}

// Names of all supported strategies, in registration order.
func Names() []string {
	names := make([]string, 0, len(supportedStrategies))
	for _, s := range supportedStrategies {
		names = append(names, s.GetName())
	}
	return names
}

// Get a strategy by its configured name.
func Get(name string) (Strategy, error) {
	for _, s := range supportedStrategies {
		if s.GetName() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("selection strategy %q not supported, use one of %v", name, Names())
}

// Pick the component with the lowest score. Disabled components are
// skipped, ties keep the earliest component.
func argmin(components []*model.OptionalComponent, score func(*model.OptionalComponent) float64) int {
	best, bestScore := -1, math.Inf(1)
	for i, c := range components {
		if c == nil || !c.Enabled {
			continue
		}
		s := score(c)
		if math.IsNaN(s) {
			continue
		}
		if best < 0 || s < bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// Component whose utilization is closest to the target.
type Nearest struct{}

func (Nearest) GetName() string { return "nearest" }

func (Nearest) Select(components []*model.OptionalComponent, target float64) int {
	return argmin(components, func(c *model.OptionalComponent) float64 {
		return math.Abs(c.Utilization - target)
	})
}

// Smallest component that still takes away more than the target. If no
// component is large enough, the first enabled one is chosen.
type LowestUtilizationAboveTarget struct{}

func (LowestUtilizationAboveTarget) GetName() string { return "lowest-utilization-above-target" }

func (LowestUtilizationAboveTarget) Select(components []*model.OptionalComponent, target float64) int {
	above := argmin(components, func(c *model.OptionalComponent) float64 {
		if c.Utilization <= target {
			return math.Inf(1)
		}
		return c.Utilization
	})
	if above >= 0 && components[above].Utilization > target {
		return above
	}
	return slices.IndexFunc(components, func(c *model.OptionalComponent) bool {
		return c != nil && c.Enabled
	})
}

// Component saving the most utilization per unit of price. Free components
// win over any priced one, the earliest free component first.
type HighestUtilizationPriceRatio struct{}

func (HighestUtilizationPriceRatio) GetName() string { return "highest-utilization-price-ratio" }

func (HighestUtilizationPriceRatio) Select(components []*model.OptionalComponent, target float64) int {
	return argmin(components, func(c *model.OptionalComponent) float64 {
		if c.Price <= 0 {
			return math.Inf(-1)
		}
		return -c.Utilization / c.Price
	})
}

// Cheapest component, regardless of the utilization it saves.
type LowestPrice struct{}

func (LowestPrice) GetName() string { return "lowest-price" }

func (LowestPrice) Select(components []*model.OptionalComponent, target float64) int {
	return argmin(components, func(c *model.OptionalComponent) float64 {
		return c.Price
	})
}
