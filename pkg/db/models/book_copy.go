package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// BookCopy is one physical, loanable instance of a book title. Its status
// column is owned exclusively by the inventory service; every transition goes
// through a conditional update guarded by the current status.
type BookCopy struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BookID          uuid.UUID           `gorm:"column:book_id;type:uuid;not null;index"`
	Barcode         string              `gorm:"column:barcode;not null;uniqueIndex"`
	Location        string              `gorm:"column:location"`
	AcquisitionDate time.Time           `gorm:"column:acquisition_date"`
	Price           decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Status          enums.CopyStatus    `gorm:"column:status;type:text;not null;default:'available';index"`
	Condition       enums.CopyCondition `gorm:"column:condition;type:text;not null;default:'good'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate fills the id; the sqlite test databases have no server-side
// uuid default.
func (c *BookCopy) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
