package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/internal/members"
	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// copyGate is the slice of the inventory ledger the loan manager consumes.
type copyGate interface {
	GetCopy(ctx context.Context, copyID uuid.UUID) (*models.BookCopy, error)
	TryReserveForLoan(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	ClaimHeld(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	RestoreHold(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
}

type fineChecker interface {
	IsBlocked(ctx context.Context, memberID uuid.UUID) (bool, error)
}

type reservationChecker interface {
	HasPendingForBook(ctx context.Context, bookID uuid.UUID) (bool, error)
	HeldFor(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
}

// Service issues, renews, and closes loans against the inventory ledger's
// copy gate. Checkout is the only writer of Member.total_borrowed.
type Service interface {
	Checkout(ctx context.Context, copyID, memberID, staffID uuid.UUID, now time.Time) (*models.Loan, error)
	Return(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) (*models.Loan, bool, error)
	Renew(ctx context.Context, loanID uuid.UUID, now time.Time) (*models.Loan, error)
	MarkLost(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	Get(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	ListOpenForMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	HasOpenForCopy(ctx context.Context, copyID uuid.UUID) (bool, error)
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	tx           txRunner
	repo         Repository
	memberRepo   members.Repository
	memberSvc    members.Service
	gate         copyGate
	fines        fineChecker
	reservations reservationChecker
	policy       config.CirculationConfig
}

// NewService wires the loan manager with its collaborators.
func NewService(
	tx txRunner,
	repo Repository,
	memberRepo members.Repository,
	memberSvc members.Service,
	gate copyGate,
	fines fineChecker,
	reservations reservationChecker,
	policy config.CirculationConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if memberRepo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	if memberSvc == nil {
		return nil, fmt.Errorf("member service required")
	}
	if gate == nil {
		return nil, fmt.Errorf("copy gate required")
	}
	if fines == nil {
		return nil, fmt.Errorf("fine checker required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation checker required")
	}
	return &service{
		tx:           tx,
		repo:         repo,
		memberRepo:   memberRepo,
		memberSvc:    memberSvc,
		gate:         gate,
		fines:        fines,
		reservations: reservations,
		policy:       policy,
	}, nil
}

// EffectiveStatus derives the overdue label without trusting the stored one.
func EffectiveStatus(loan *models.Loan, now time.Time) enums.LoanStatus {
	if loan.Status.IsOpen() && loan.DueDate.Before(now) {
		return enums.LoanStatusOverdue
	}
	return loan.Status
}

func (s *service) Checkout(ctx context.Context, copyID, memberID, staffID uuid.UUID, now time.Time) (*models.Loan, error) {
	if copyID == uuid.Nil || memberID == uuid.Nil || staffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy id, member id, and staff id required")
	}

	if _, err := s.memberSvc.AssertCanBorrow(ctx, memberID, now); err != nil {
		return nil, err
	}
	blocked, err := s.fines.IsBlocked(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, pkgerrors.New(pkgerrors.CodeMemberIneligible, "outstanding fines exceed the borrowing threshold")
	}

	copy, err := s.gate.GetCopy(ctx, copyID)
	if err != nil {
		return nil, err
	}

	// A reserved copy may only be checked out by the member it is held for.
	heldPickup := false
	if copy.Status == enums.CopyStatusReserved {
		held, err := s.reservations.HeldFor(ctx, copy.BookID, memberID)
		if err != nil {
			return nil, err
		}
		if held == nil || held.CopyID == nil || *held.CopyID != copy.ID {
			return nil, pkgerrors.New(pkgerrors.CodeCopyUnavailable, "copy is held for another member")
		}
		heldPickup = true
	}

	// The gate is its own atomic primitive and commits before the loan row.
	if heldPickup {
		err = s.gate.ClaimHeld(ctx, nil, copyID)
	} else {
		err = s.gate.TryReserveForLoan(ctx, nil, copyID)
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeCopyUnavailable, err, "copy was claimed concurrently")
		}
		return nil, err
	}

	loan := &models.Loan{
		CopyID:   copyID,
		MemberID: memberID,
		StaffID:  staffID,
		LoanDate: now,
		DueDate:  now.Add(s.policy.LoanPeriod()),
		Status:   enums.LoanStatusActive,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, loan); err != nil {
			return err
		}
		return s.memberRepo.WithTx(tx).IncrementTotalBorrowed(ctx, memberID)
	})
	if err != nil {
		// The gate already committed; hand the copy back rather than leaving
		// it stranded in loaned.
		var compensate error
		if heldPickup {
			compensate = s.gate.RestoreHold(ctx, nil, copyID)
		} else {
			compensate = s.gate.Release(ctx, nil, copyID)
		}
		return nil, multierr.Append(err, compensate)
	}
	return loan, nil
}

// Return closes the loan. The boolean reports whether this call performed the
// transition; a repeat of an already-returned loan is a no-op success.
func (s *service) Return(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) (*models.Loan, bool, error) {
	loan, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, false, err
	}

	closed, err := s.repo.CloseReturned(ctx, loanID, returnedAt)
	if err != nil {
		return nil, false, err
	}
	if !closed {
		if loan.Status == enums.LoanStatusReturned {
			return loan, false, nil
		}
		return nil, false, pkgerrors.New(pkgerrors.CodeInvalidState, "loan is not open").
			WithDetails(map[string]string{"status": loan.Status.String()})
	}

	updated, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (s *service) Renew(ctx context.Context, loanID uuid.UUID, now time.Time) (*models.Loan, error) {
	loan, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "loan is not open").
			WithDetails(map[string]string{"status": loan.Status.String()})
	}
	if loan.DueDate.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeRenewalBlocked, "loan is past due")
	}
	if loan.RenewalCount >= s.policy.MaxRenewals {
		return nil, pkgerrors.New(pkgerrors.CodeRenewalBlocked, "renewal limit reached").
			WithDetails(map[string]int{"renewal_count": loan.RenewalCount})
	}

	copy, err := s.gate.GetCopy(ctx, loan.CopyID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.reservations.HasPendingForBook(ctx, copy.BookID)
	if err != nil {
		return nil, err
	}
	if waiting {
		return nil, pkgerrors.New(pkgerrors.CodeRenewalBlocked, "book has pending reservations")
	}

	extended, err := s.repo.ExtendDueDate(ctx, loanID, loan.DueDate.Add(s.policy.LoanPeriod()))
	if err != nil {
		return nil, err
	}
	if !extended {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "loan changed concurrently")
	}
	return s.Get(ctx, loanID)
}

// MarkLost is idempotent: a loan already marked lost reports success.
func (s *service) MarkLost(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}

	closed, err := s.repo.CloseLost(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !closed {
		if loan.Status == enums.LoanStatusLost {
			return loan, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "loan is not open").
			WithDetails(map[string]string{"status": loan.Status.String()})
	}
	return s.Get(ctx, loanID)
}

func (s *service) Get(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, err
	}
	return loan, nil
}

func (s *service) ListOpenForMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	return s.repo.ListOpenByMember(ctx, memberID)
}

// HasOpenForCopy reports whether the copy is out on an active or overdue loan.
func (s *service) HasOpenForCopy(ctx context.Context, copyID uuid.UUID) (bool, error) {
	if copyID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}
	_, err := s.repo.FindOpenByCopy(ctx, copyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *service) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.SweepOverdue(ctx, now)
}
