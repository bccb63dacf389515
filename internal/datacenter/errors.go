// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"errors"

	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
)

var (
	// Returned when the dimmer value is computed for a datacenter without hosts.
	ErrDivisionByZero = errors.New("division by zero")
	// Returned for migrations whose target host is missing or unreachable.
	ErrInvalidMigrationTarget = errors.New("invalid migration target")
	// Reported when the dimmer meets a cloudlet without optional components.
	ErrEmptyComponentList = errors.New("cloudlet has no optional components")
	// Reported when a collaborator hands out a utilization outside [0,1].
	ErrOutOfRangeUtilization = model.ErrOutOfRangeUtilization
)
