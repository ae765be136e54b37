package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Member is a borrowing party. TotalBorrowed is a lifetime counter mutated
// only by the loan service on successful checkout.
type Member struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	FullName         string             `gorm:"column:full_name;not null"`
	Email            string             `gorm:"column:email;not null;uniqueIndex"`
	Status           enums.MemberStatus `gorm:"column:status;type:text;not null;default:'active'"`
	MembershipExpiry time.Time          `gorm:"column:membership_expiry;not null"`
	TotalBorrowed    int                `gorm:"column:total_borrowed;not null;default:0"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate fills in the id when the caller left it unset.
func (m *Member) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
