package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reports_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.BookCopy{}, &models.Loan{}, &models.Reservation{}, &models.Fine{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAvailableCopiesFiltersByStatus(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	bookID := uuid.New()

	for _, status := range []enums.CopyStatus{
		enums.CopyStatusAvailable,
		enums.CopyStatusLoaned,
		enums.CopyStatusAvailable,
		enums.CopyStatusReserved,
	} {
		copy := &models.BookCopy{
			ID:      uuid.New(),
			BookID:  bookID,
			Barcode: uuid.NewString(),
			Status:  status,
		}
		if err := db.Create(copy).Error; err != nil {
			t.Fatalf("seed copy: %v", err)
		}
	}

	copies, err := svc.AvailableCopies(context.Background(), bookID)
	if err != nil {
		t.Fatalf("available copies: %v", err)
	}
	if len(copies) != 2 {
		t.Fatalf("expected 2 available copies, got %d", len(copies))
	}
	for _, copy := range copies {
		if copy.Status != enums.CopyStatusAvailable {
			t.Fatalf("unexpected status %s", copy.Status)
		}
	}
}

func TestOverdueLoansComputeDaysLate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Now().UTC()

	overdueLoan := &models.Loan{
		ID:       uuid.New(),
		CopyID:   uuid.New(),
		MemberID: uuid.New(),
		StaffID:  uuid.New(),
		LoanDate: now.Add(-19 * 24 * time.Hour),
		DueDate:  now.Add(-5 * 24 * time.Hour),
		Status:   enums.LoanStatusActive,
	}
	onTimeLoan := &models.Loan{
		ID:       uuid.New(),
		CopyID:   uuid.New(),
		MemberID: uuid.New(),
		StaffID:  uuid.New(),
		LoanDate: now,
		DueDate:  now.Add(14 * 24 * time.Hour),
		Status:   enums.LoanStatusActive,
	}
	for _, loan := range []*models.Loan{overdueLoan, onTimeLoan} {
		if err := db.Create(loan).Error; err != nil {
			t.Fatalf("seed loan: %v", err)
		}
	}

	overdue, err := svc.OverdueLoans(context.Background(), now)
	if err != nil {
		t.Fatalf("overdue loans: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected 1 overdue loan, got %d", len(overdue))
	}
	if overdue[0].Loan.ID != overdueLoan.ID {
		t.Fatalf("unexpected loan %s", overdue[0].Loan.ID)
	}
	if overdue[0].DaysLate != 5 {
		t.Fatalf("expected 5 days late, got %d", overdue[0].DaysLate)
	}
}

func TestMemberActivitySummary(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	now := time.Now().UTC()
	memberID := uuid.New()

	openLoan := &models.Loan{
		ID:       uuid.New(),
		CopyID:   uuid.New(),
		MemberID: memberID,
		StaffID:  uuid.New(),
		LoanDate: now,
		DueDate:  now.Add(14 * 24 * time.Hour),
		Status:   enums.LoanStatusActive,
	}
	closedLoan := &models.Loan{
		ID:       uuid.New(),
		CopyID:   uuid.New(),
		MemberID: memberID,
		StaffID:  uuid.New(),
		LoanDate: now.Add(-30 * 24 * time.Hour),
		DueDate:  now.Add(-16 * 24 * time.Hour),
		Status:   enums.LoanStatusReturned,
	}
	for _, loan := range []*models.Loan{openLoan, closedLoan} {
		if err := db.Create(loan).Error; err != nil {
			t.Fatalf("seed loan: %v", err)
		}
	}

	reservation := &models.Reservation{
		ID:              uuid.New(),
		BookID:          uuid.New(),
		MemberID:        memberID,
		ReservationDate: now,
		ExpiryDate:      now.Add(30 * 24 * time.Hour),
		Status:          enums.ReservationStatusPending,
	}
	if err := db.Create(reservation).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	fine := &models.Fine{
		ID:        uuid.New(),
		LoanID:    closedLoan.ID,
		Amount:    decimal.RequireFromString("4.00"),
		Reason:    enums.FineReasonOverdue,
		IssueDate: now,
		Status:    enums.FineStatusPending,
	}
	if err := db.Create(fine).Error; err != nil {
		t.Fatalf("seed fine: %v", err)
	}

	activity, err := svc.MemberActivity(context.Background(), memberID, now)
	if err != nil {
		t.Fatalf("member activity: %v", err)
	}
	if activity.TotalLoans != 2 || activity.OpenLoans != 1 {
		t.Fatalf("unexpected loan counts: %+v", activity)
	}
	if activity.TotalReservations != 1 || activity.PendingReservations != 1 {
		t.Fatalf("unexpected reservation counts: %+v", activity)
	}
	if !activity.PendingFineTotal.Equal(decimal.RequireFromString("4.00")) {
		t.Fatalf("expected 4.00 pending fines, got %s", activity.PendingFineTotal)
	}
}
