package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

// OverdueLoan is an open loan past its due date, with lateness derived at
// query time.
type OverdueLoan struct {
	Loan     models.Loan `json:"loan"`
	DaysLate int         `json:"days_late"`
}

// MemberActivity summarizes a member's circulation footprint.
type MemberActivity struct {
	MemberID            uuid.UUID       `json:"member_id"`
	OpenLoans           int64           `json:"open_loans"`
	TotalLoans          int64           `json:"total_loans"`
	PendingReservations int64           `json:"pending_reservations"`
	TotalReservations   int64           `json:"total_reservations"`
	PendingFineTotal    decimal.Decimal `json:"pending_fine_total"`
}

// Service serves the read-only projections consumed by reporting callers.
// Pure queries over current state, computed on demand, never cached.
type Service interface {
	AvailableCopies(ctx context.Context, bookID uuid.UUID) ([]models.BookCopy, error)
	OverdueLoans(ctx context.Context, now time.Time) ([]OverdueLoan, error)
	MemberActivity(ctx context.Context, memberID uuid.UUID, now time.Time) (*MemberActivity, error)
}

type service struct {
	db *gorm.DB
}

// NewService wires a reports service over the provided database.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &service{db: db}, nil
}

func (s *service) AvailableCopies(ctx context.Context, bookID uuid.UUID) ([]models.BookCopy, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	var copies []models.BookCopy
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.CopyStatusAvailable).
		Order("acquisition_date ASC, id ASC").
		Find(&copies).Error
	if err != nil {
		return nil, err
	}
	return copies, nil
}

func (s *service) OverdueLoans(ctx context.Context, now time.Time) ([]OverdueLoan, error) {
	var loans []models.Loan
	err := s.db.WithContext(ctx).
		Where("status IN ? AND due_date < ?",
			[]enums.LoanStatus{enums.LoanStatusActive, enums.LoanStatusOverdue}, now).
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}

	overdue := make([]OverdueLoan, 0, len(loans))
	for _, loan := range loans {
		overdue = append(overdue, OverdueLoan{
			Loan:     loan,
			DaysLate: daysLate(loan.DueDate, now),
		})
	}
	return overdue, nil
}

func (s *service) MemberActivity(ctx context.Context, memberID uuid.UUID, now time.Time) (*MemberActivity, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	activity := &MemberActivity{MemberID: memberID, PendingFineTotal: decimal.Zero}
	db := s.db.WithContext(ctx)

	err := db.Model(&models.Loan{}).
		Where("member_id = ?", memberID).
		Count(&activity.TotalLoans).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Loan{}).
		Where("member_id = ? AND status IN ?", memberID,
			[]enums.LoanStatus{enums.LoanStatusActive, enums.LoanStatusOverdue}).
		Count(&activity.OpenLoans).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Reservation{}).
		Where("member_id = ?", memberID).
		Count(&activity.TotalReservations).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Reservation{}).
		Where("member_id = ? AND status = ?", memberID, enums.ReservationStatusPending).
		Count(&activity.PendingReservations).Error
	if err != nil {
		return nil, err
	}

	var total decimal.NullDecimal
	err = db.Model(&models.Fine{}).
		Select("SUM(fines.amount)").
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.member_id = ? AND fines.status = ?", memberID, enums.FineStatusPending).
		Scan(&total).Error
	if err != nil {
		return nil, err
	}
	if total.Valid {
		activity.PendingFineTotal = total.Decimal
	}
	return activity, nil
}

func daysLate(dueDate, now time.Time) int {
	if !dueDate.Before(now) {
		return 0
	}
	late := now.Sub(dueDate)
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		days++
	}
	return days
}
