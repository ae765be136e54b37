package enums

import "fmt"

// CopyStatus tracks the circulation lifecycle of a physical book copy.
type CopyStatus string

const (
	CopyStatusAvailable   CopyStatus = "available"
	CopyStatusLoaned      CopyStatus = "loaned"
	CopyStatusReserved    CopyStatus = "reserved"
	CopyStatusLost        CopyStatus = "lost"
	CopyStatusDamaged     CopyStatus = "damaged"
	CopyStatusUnderRepair CopyStatus = "under_repair"
)

var validCopyStatuses = []CopyStatus{
	CopyStatusAvailable,
	CopyStatusLoaned,
	CopyStatusReserved,
	CopyStatusLost,
	CopyStatusDamaged,
	CopyStatusUnderRepair,
}

// String implements fmt.Stringer.
func (c CopyStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CopyStatus.
func (c CopyStatus) IsValid() bool {
	for _, candidate := range validCopyStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCopyStatus converts raw input into a CopyStatus.
func ParseCopyStatus(value string) (CopyStatus, error) {
	for _, candidate := range validCopyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid copy status %q", value)
}
