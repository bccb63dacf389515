// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package model

// Relocation of a vm to a target host.
type Migration struct {
	VM *VM
	// Host the vm is migrated away from, nil for a first placement.
	Source *Host
	// Host the vm is migrated to.
	Target *Host
	// Simulated transfer time, set when the migration is issued.
	Delay float64
}
