package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Fine is a charge derived from an overdue or lost loan. A loan carries at
// most one open (pending) fine at a time; settled fines remain for history.
type Fine struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	LoanID      uuid.UUID        `gorm:"column:loan_id;type:uuid;not null;index"`
	Amount      decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason      enums.FineReason `gorm:"column:reason;type:text;not null"`
	IssueDate   time.Time        `gorm:"column:issue_date;not null"`
	PaymentDate *time.Time       `gorm:"column:payment_date"`
	Status      enums.FineStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	WaivedBy    *uuid.UUID       `gorm:"column:waived_by;type:uuid"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate generates the id client side.
func (f *Fine) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
