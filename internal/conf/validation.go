// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cobaltcore-dev/brownout/internal/datacenter/selection"
)

// Check if the simulation configuration is usable.
func (c SimulationConfig) Validate() error {
	if c.OverloadThreshold <= 0 || c.OverloadThreshold >= 1 {
		return fmt.Errorf("overload threshold must be in (0,1), got %v", c.OverloadThreshold)
	}
	if c.ComponentUtilizationFloor < 0 || c.ComponentUtilizationFloor > 1 {
		return fmt.Errorf("component utilization floor must be in [0,1], got %v", c.ComponentUtilizationFloor)
	}
	if c.SchedulingInterval <= 0 {
		return fmt.Errorf("scheduling interval must be positive, got %v", c.SchedulingInterval)
	}
	if c.SamplingPeriod <= 0 {
		return fmt.Errorf("sampling period must be positive, got %v", c.SamplingPeriod)
	}
	if c.BandwidthConversion <= 0 {
		return fmt.Errorf("bandwidth conversion must be positive, got %v", c.BandwidthConversion)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %v", c.Duration)
	}
	if !slices.Contains(selection.Names(), c.SelectionStrategy) {
		return fmt.Errorf("unknown selection strategy %q, supported: %v", c.SelectionStrategy, selection.Names())
	}
	return nil
}

// Check if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.SimulationConfig.Validate(); err != nil {
		return err
	}
	if c.DisableMigrations {
		slog.Warn("migrations are disabled, the allocation policy will not be consulted")
	}
	if c.ResultsConfig.Enabled {
		switch c.DBConfig.Driver {
		case "postgres":
			if c.DBConfig.Host == "" || c.DBConfig.Database == "" {
				return errors.New("postgres results store needs a host and a database")
			}
		case "sqlite":
			if c.DBConfig.Path == "" {
				return errors.New("sqlite results store needs a path")
			}
		default:
			return fmt.Errorf("unsupported database driver %q", c.DBConfig.Driver)
		}
	}
	return nil
}
