package fines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

// Service derives fines from overdue and lost loans and tracks settlement.
// A loan carries at most one pending fine; pay and waive are terminal and
// retry-safe.
type Service interface {
	IssueOverdueFine(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, dueDate, returnedAt time.Time) (*models.Fine, error)
	IssueLossFine(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, copyPrice decimal.Decimal, now time.Time) (*models.Fine, error)
	Pay(ctx context.Context, fineID uuid.UUID, now time.Time) (*models.Fine, error)
	Waive(ctx context.Context, fineID uuid.UUID, staffID uuid.UUID) (*models.Fine, error)
	Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error)
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error)
	OutstandingTotal(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	IsBlocked(ctx context.Context, memberID uuid.UUID) (bool, error)
}

type service struct {
	repo   Repository
	policy config.CirculationConfig
}

// NewService wires a fine service with the provided repository and policy.
func NewService(repo Repository, policy config.CirculationConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fine repository required")
	}
	return &service{repo: repo, policy: policy}, nil
}

// OverdueAmount computes daysLate at the daily rate, capped at the policy
// maximum. Partial days count as a full day.
func OverdueAmount(policy config.CirculationConfig, dueDate, returnedAt time.Time) decimal.Decimal {
	late := returnedAt.Sub(dueDate)
	if late <= 0 {
		return decimal.Zero
	}
	daysLate := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		daysLate++
	}
	amount := policy.DailyFineRate.Mul(decimal.NewFromInt(daysLate))
	if amount.GreaterThan(policy.MaxFine) {
		return policy.MaxFine
	}
	return amount
}

func (s *service) IssueOverdueFine(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, dueDate, returnedAt time.Time) (*models.Fine, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	amount := OverdueAmount(s.policy, dueDate, returnedAt)
	if amount.IsZero() {
		return nil, nil
	}
	return s.issue(ctx, tx, &models.Fine{
		LoanID:    loanID,
		Amount:    amount,
		Reason:    enums.FineReasonOverdue,
		IssueDate: returnedAt,
		Status:    enums.FineStatusPending,
	})
}

func (s *service) IssueLossFine(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, copyPrice decimal.Decimal, now time.Time) (*models.Fine, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	return s.issue(ctx, tx, &models.Fine{
		LoanID:    loanID,
		Amount:    copyPrice.Add(s.policy.LossProcessingFee),
		Reason:    enums.FineReasonLoss,
		IssueDate: now,
		Status:    enums.FineStatusPending,
	})
}

// issue enforces the one-pending-fine-per-loan invariant: if the loan already
// has an open fine the existing fine is returned and no new row is written,
// which keeps retried returns from double-charging.
func (s *service) issue(ctx context.Context, tx *gorm.DB, fine *models.Fine) (*models.Fine, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindPendingByLoan(ctx, fine.LoanID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := repo.Create(ctx, fine); err != nil {
		return nil, err
	}
	return fine, nil
}

func (s *service) Pay(ctx context.Context, fineID uuid.UUID, now time.Time) (*models.Fine, error) {
	return s.settle(ctx, fineID, enums.FineStatusPaid, func(ctx context.Context) (bool, error) {
		return s.repo.MarkPaid(ctx, fineID, now)
	})
}

func (s *service) Waive(ctx context.Context, fineID uuid.UUID, staffID uuid.UUID) (*models.Fine, error) {
	if staffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	return s.settle(ctx, fineID, enums.FineStatusWaived, func(ctx context.Context) (bool, error) {
		return s.repo.MarkWaived(ctx, fineID, staffID)
	})
}

// settle applies a terminal transition. When the guarded update misses, a
// retry of the same transition is a no-op success and a conflicting terminal
// state fails with InvalidState.
func (s *service) settle(ctx context.Context, fineID uuid.UUID, target enums.FineStatus, apply func(ctx context.Context) (bool, error)) (*models.Fine, error) {
	if fineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine id required")
	}
	moved, err := apply(ctx)
	if err != nil {
		return nil, err
	}
	fine, err := s.Get(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if moved || fine.Status == target {
		return fine, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "fine is already settled").
		WithDetails(map[string]string{"status": fine.Status.String()})
}

func (s *service) Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	if fineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine id required")
	}
	fine, err := s.repo.FindByID(ctx, fineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fine not found")
		}
		return nil, err
	}
	return fine, nil
}

func (s *service) ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	return s.repo.ListByMember(ctx, memberID)
}

func (s *service) OutstandingTotal(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	if memberID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	return s.repo.SumPendingByMember(ctx, memberID)
}

func (s *service) IsBlocked(ctx context.Context, memberID uuid.UUID) (bool, error) {
	total, err := s.OutstandingTotal(ctx, memberID)
	if err != nil {
		return false, err
	}
	return total.GreaterThanOrEqual(s.policy.FineBlockThreshold), nil
}
