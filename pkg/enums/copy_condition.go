package enums

import "fmt"

// CopyCondition grades the physical state of a book copy.
type CopyCondition string

const (
	CopyConditionNew  CopyCondition = "new"
	CopyConditionGood CopyCondition = "good"
	CopyConditionFair CopyCondition = "fair"
	CopyConditionPoor CopyCondition = "poor"
)

var validCopyConditions = []CopyCondition{
	CopyConditionNew,
	CopyConditionGood,
	CopyConditionFair,
	CopyConditionPoor,
}

// String implements fmt.Stringer.
func (c CopyCondition) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CopyCondition.
func (c CopyCondition) IsValid() bool {
	for _, candidate := range validCopyConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCopyCondition converts raw input into a CopyCondition.
func ParseCopyCondition(value string) (CopyCondition, error) {
	for _, candidate := range validCopyConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid copy condition %q", value)
}
