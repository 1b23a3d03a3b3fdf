// internal/domain/subscription/shared_types.go
package subscription

import "fmt"

// Kind is the service a subscription is billed for.
type Kind string

const (
	KindInternet  Kind = "internet"
	KindSatellite Kind = "satellite"
)

func (k Kind) Valid() bool {
	return k == KindInternet || k == KindSatellite
}

// Cycle is the number of calendar months between two due dates.
type Cycle int

const (
	CycleMonthly   Cycle = 1
	CycleQuarterly Cycle = 3
)

func (c Cycle) Valid() bool {
	return c == CycleMonthly || c == CycleQuarterly
}

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
	StatusExpired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusStopped, StatusExpired:
		return true
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", raw)
	}
	return s, nil
}
