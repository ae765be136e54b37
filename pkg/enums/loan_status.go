package enums

import "fmt"

// LoanStatus tracks the lifecycle of a loan.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
	LoanStatusOverdue  LoanStatus = "overdue"
	LoanStatusLost     LoanStatus = "lost"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusActive,
	LoanStatusReturned,
	LoanStatusOverdue,
	LoanStatusLost,
}

// IsOpen reports whether the loan still holds its copy.
func (l LoanStatus) IsOpen() bool {
	return l == LoanStatusActive || l == LoanStatusOverdue
}

// String implements fmt.Stringer.
func (l LoanStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoanStatus.
func (l LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
