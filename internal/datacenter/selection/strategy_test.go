// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"testing"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

func components(specs ...[2]float64) []*model.OptionalComponent {
	var cs []*model.OptionalComponent
	for i, s := range specs {
		cs = append(cs, &model.OptionalComponent{
			Tag:         string(rune('a' + i)),
			Utilization: s[0],
			Price:       s[1],
			Enabled:     true,
		})
	}
	return cs
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		name       string
		strategy   Strategy
		components []*model.OptionalComponent
		target     float64
		expected   int
	}{
		{
			name:       "nearest picks closest utilization",
			strategy:   Nearest{},
			components: components([2]float64{0.1, 1}, [2]float64{0.25, 1}, [2]float64{0.5, 1}),
			target:     0.3,
			expected:   1,
		},
		{
			name:       "nearest keeps earliest on tie",
			strategy:   Nearest{},
			components: components([2]float64{0.2, 1}, [2]float64{0.4, 1}),
			target:     0.3,
			expected:   0,
		},
		{
			name:       "lowest above target",
			strategy:   LowestUtilizationAboveTarget{},
			components: components([2]float64{0.1, 1}, [2]float64{0.5, 1}, [2]float64{0.35, 1}),
			target:     0.3,
			expected:   2,
		},
		{
			name:       "lowest above target falls back to first",
			strategy:   LowestUtilizationAboveTarget{},
			components: components([2]float64{0.1, 1}, [2]float64{0.2, 1}),
			target:     0.3,
			expected:   0,
		},
		{
			name:       "highest ratio",
			strategy:   HighestUtilizationPriceRatio{},
			components: components([2]float64{0.2, 4}, [2]float64{0.1, 1}, [2]float64{0.3, 6}),
			target:     0.3,
			expected:   1,
		},
		{
			name:       "highest ratio prefers free components",
			strategy:   HighestUtilizationPriceRatio{},
			components: components([2]float64{0.9, 0.1}, [2]float64{0.1, 0}),
			target:     0.3,
			expected:   1,
		},
		{
			name:       "lowest price",
			strategy:   LowestPrice{},
			components: components([2]float64{0.2, 3}, [2]float64{0.9, 2}, [2]float64{0.1, 5}),
			target:     0.3,
			expected:   1,
		},
		{
			name:       "no components",
			strategy:   Nearest{},
			components: nil,
			target:     0.3,
			expected:   -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.Select(tt.components, tt.target); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestStrategies_SkipDisabled(t *testing.T) {
	for _, s := range supportedStrategies {
		t.Run(s.GetName(), func(t *testing.T) {
			cs := components([2]float64{0.3, 1}, [2]float64{0.3, 1})
			cs[0].Enabled = false
			if got := s.Select(cs, 0.3); got != 1 {
				t.Errorf("expected the enabled component, got %d", got)
			}
			cs[1].Enabled = false
			if got := s.Select(cs, 0.3); got != -1 {
				t.Errorf("expected -1 with all components disabled, got %d", got)
			}
		})
	}
}

func TestLowestUtilizationAboveTarget_FallbackSkipsDisabled(t *testing.T) {
	cs := components([2]float64{0.1, 1}, [2]float64{0.05, 1}, [2]float64{0.2, 1})
	cs[0].Enabled = false
	if got := (LowestUtilizationAboveTarget{}).Select(cs, 0.3); got != 1 {
		t.Errorf("expected the first enabled component, got %d", got)
	}
}

func TestGet(t *testing.T) {
	for _, name := range Names() {
		s, err := Get(name)
		if err != nil {
			t.Fatalf("expected strategy %s, got error %v", name, err)
		}
		if s.GetName() != name {
			t.Errorf("expected name %s, got %s", name, s.GetName())
		}
	}
	if _, err := Get("random"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if len(Names()) != 4 {
		t.Errorf("expected 4 strategies, got %v", Names())
	}
}
