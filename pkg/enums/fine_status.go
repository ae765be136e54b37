package enums

import "fmt"

// FineStatus tracks the settlement state of a fine.
type FineStatus string

const (
	FineStatusPending FineStatus = "pending"
	FineStatusPaid    FineStatus = "paid"
	FineStatusWaived  FineStatus = "waived"
)

var validFineStatuses = []FineStatus{
	FineStatusPending,
	FineStatusPaid,
	FineStatusWaived,
}

// String implements fmt.Stringer.
func (f FineStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FineStatus.
func (f FineStatus) IsValid() bool {
	for _, candidate := range validFineStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFineStatus converts raw input into a FineStatus.
func ParseFineStatus(value string) (FineStatus, error) {
	for _, candidate := range validFineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fine status %q", value)
}
