package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Reservation is a member's place in the per-book FIFO waitlist. A fulfilled
// reservation holds one specific copy (CopyID set) until the pickup window
// lapses.
type Reservation struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BookID          uuid.UUID               `gorm:"column:book_id;type:uuid;not null;index"`
	MemberID        uuid.UUID               `gorm:"column:member_id;type:uuid;not null;index"`
	CopyID          *uuid.UUID              `gorm:"column:copy_id;type:uuid"`
	ReservationDate time.Time               `gorm:"column:reservation_date;not null"`
	ExpiryDate      time.Time               `gorm:"column:expiry_date;not null;index"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	FulfilledAt     *time.Time              `gorm:"column:fulfilled_at"`
	CancelledAt     *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate generates the id in Go rather than relying on a database
// default.
func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
