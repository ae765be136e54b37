package enums

import "fmt"

// MemberStatus tracks the standing of a library member.
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusExpired   MemberStatus = "expired"
	MemberStatusSuspended MemberStatus = "suspended"
	MemberStatusCancelled MemberStatus = "cancelled"
)

var validMemberStatuses = []MemberStatus{
	MemberStatusActive,
	MemberStatusExpired,
	MemberStatusSuspended,
	MemberStatusCancelled,
}

// String implements fmt.Stringer.
func (m MemberStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberStatus.
func (m MemberStatus) IsValid() bool {
	for _, candidate := range validMemberStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberStatus converts raw input into a MemberStatus.
func ParseMemberStatus(value string) (MemberStatus, error) {
	for _, candidate := range validMemberStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member status %q", value)
}
