package store

import (
	"fmt"
	"slices"
)

// Scope selects the devices a command applies to: every device, or an
// explicit non-empty target set. Never both, never neither.
type Scope struct {
	AllDevices bool
	Targets    []int64
}

// AllDevicesScope is the broadcast scope.
func AllDevicesScope() Scope {
	return Scope{AllDevices: true}
}

// TargetScope builds an explicit scope with duplicate ids removed and the
// remaining ids sorted.
func TargetScope(deviceIDs ...int64) Scope {
	targets := slices.Clone(deviceIDs)
	slices.Sort(targets)
	return Scope{Targets: slices.Compact(targets)}
}

func (s Scope) Validate() error {
	switch {
	case s.AllDevices && len(s.Targets) > 0:
		return fmt.Errorf("%w: all_devices scope cannot also list targets", ErrInvalidScope)
	case !s.AllDevices && len(s.Targets) == 0:
		return fmt.Errorf("%w: scope needs all_devices or at least one target", ErrInvalidScope)
	}
	for _, id := range s.Targets {
		if id <= 0 {
			return fmt.Errorf("%w: target ids must be positive", ErrInvalidScope)
		}
	}
	return nil
}

// Includes is the single scoping rule shared by the status query and the
// file endpoint's authorization check.
func (s Scope) Includes(deviceID int64) bool {
	if s.AllDevices {
		return true
	}
	return slices.Contains(s.Targets, deviceID)
}

func (s Scope) clone() Scope {
	return Scope{AllDevices: s.AllDevices, Targets: slices.Clone(s.Targets)}
}
