package enums

import "fmt"

// FineReason records why a fine was issued against a loan.
type FineReason string

const (
	FineReasonOverdue FineReason = "overdue"
	FineReasonLoss    FineReason = "loss"
)

var validFineReasons = []FineReason{
	FineReasonOverdue,
	FineReasonLoss,
}

// String implements fmt.Stringer.
func (f FineReason) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FineReason.
func (f FineReason) IsValid() bool {
	for _, candidate := range validFineReasons {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFineReason converts raw input into a FineReason.
func ParseFineReason(value string) (FineReason, error) {
	for _, candidate := range validFineReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fine reason %q", value)
}
