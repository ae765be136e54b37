package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Loan links one copy to one borrower for a bounded period. At most one
// open (active/overdue) loan may exist per copy; the inventory status gate
// enforces that, not a scan over this table.
type Loan struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CopyID       uuid.UUID        `gorm:"column:copy_id;type:uuid;not null;index"`
	MemberID     uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	StaffID      uuid.UUID        `gorm:"column:staff_id;type:uuid;not null"`
	LoanDate     time.Time        `gorm:"column:loan_date;not null"`
	DueDate      time.Time        `gorm:"column:due_date;not null;index"`
	ReturnDate   *time.Time       `gorm:"column:return_date"`
	Status       enums.LoanStatus `gorm:"column:status;type:text;not null;default:'active';index"`
	RenewalCount int              `gorm:"column:renewal_count;not null;default:0"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the id so inserts never depend on a database default.
func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
