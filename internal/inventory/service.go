package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

// Service is the inventory ledger: the single owner of BookCopy.status. Every
// mutation is a guarded transition; callers racing for the same copy see
// exactly one winner and the rest get Conflict. Methods take an optional tx so
// orchestrating services can run them inside their own transactions.
type Service interface {
	AddCopy(ctx context.Context, copy *models.BookCopy) (*models.BookCopy, error)
	GetCopy(ctx context.Context, copyID uuid.UUID) (*models.BookCopy, error)
	FindAvailableCopy(ctx context.Context, bookID uuid.UUID) (*models.BookCopy, error)

	// TryReserveForLoan is the checkout gate: available -> loaned.
	TryReserveForLoan(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	// ClaimHeld converts a pickup hold into a loan: reserved -> loaned.
	ClaimHeld(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	// Release puts a loaned or held copy back on the shelf.
	Release(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	// RestoreHold undoes a claimed pickup after a downstream failure: loaned -> reserved.
	RestoreHold(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	// HoldForPickup parks an available copy for a fulfilled reservation: available -> reserved.
	HoldForPickup(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error

	MarkReturned(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, condition enums.CopyCondition) error
	MarkDamaged(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, condition enums.CopyCondition) error
	MarkLost(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	MarkUnderRepair(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
	MarkRepaired(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService wires the inventory ledger with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

// AddCopy registers a new physical copy. New copies always start on the shelf.
func (s *service) AddCopy(ctx context.Context, copy *models.BookCopy) (*models.BookCopy, error) {
	if copy == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy required")
	}
	if copy.BookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if copy.Barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode required")
	}
	copy.Status = enums.CopyStatusAvailable
	if !copy.Condition.IsValid() {
		copy.Condition = enums.CopyConditionGood
	}
	if err := s.repo.Create(ctx, copy); err != nil {
		return nil, err
	}
	return copy, nil
}

func (s *service) GetCopy(ctx context.Context, copyID uuid.UUID) (*models.BookCopy, error) {
	if copyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}
	copy, err := s.repo.FindByID(ctx, copyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "copy not found")
		}
		return nil, err
	}
	return copy, nil
}

func (s *service) FindAvailableCopy(ctx context.Context, bookID uuid.UUID) (*models.BookCopy, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	copy, err := s.repo.FindFirstAvailableByBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return copy, nil
}

func (s *service) TryReserveForLoan(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusAvailable}, enums.CopyStatusLoaned,
		pkgerrors.CodeConflict, "copy is not available for loan")
}

func (s *service) ClaimHeld(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusReserved}, enums.CopyStatusLoaned,
		pkgerrors.CodeConflict, "copy hold is no longer claimable")
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusLoaned, enums.CopyStatusReserved}, enums.CopyStatusAvailable,
		pkgerrors.CodeInvalidState, "copy cannot be released")
}

func (s *service) RestoreHold(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusLoaned}, enums.CopyStatusReserved,
		pkgerrors.CodeInvalidState, "copy hold cannot be restored")
}

func (s *service) HoldForPickup(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusAvailable}, enums.CopyStatusReserved,
		pkgerrors.CodeConflict, "copy is not available to hold")
}

func (s *service) MarkReturned(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, condition enums.CopyCondition) error {
	if err := s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusLoaned}, enums.CopyStatusAvailable,
		pkgerrors.CodeInvalidState, "copy is not out on loan"); err != nil {
		return err
	}
	return s.recordCondition(ctx, tx, copyID, condition)
}

func (s *service) MarkDamaged(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, condition enums.CopyCondition) error {
	if err := s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusLoaned, enums.CopyStatusAvailable}, enums.CopyStatusDamaged,
		pkgerrors.CodeInvalidState, "copy cannot be marked damaged"); err != nil {
		return err
	}
	return s.recordCondition(ctx, tx, copyID, condition)
}

func (s *service) MarkLost(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusLoaned, enums.CopyStatusReserved}, enums.CopyStatusLost,
		pkgerrors.CodeInvalidState, "copy cannot be marked lost")
}

func (s *service) MarkUnderRepair(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusAvailable, enums.CopyStatusDamaged}, enums.CopyStatusUnderRepair,
		pkgerrors.CodeInvalidState, "copy cannot be sent to repair")
}

func (s *service) MarkRepaired(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	return s.transition(ctx, tx, copyID,
		[]enums.CopyStatus{enums.CopyStatusUnderRepair}, enums.CopyStatusAvailable,
		pkgerrors.CodeInvalidState, "copy is not under repair")
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, from []enums.CopyStatus, to enums.CopyStatus, failCode pkgerrors.Code, failMessage string) error {
	if copyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}
	repo := s.repo.WithTx(tx)
	moved, err := repo.Transition(ctx, copyID, from, to)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}

	copy, err := repo.FindByID(ctx, copyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "copy not found")
		}
		return err
	}
	return pkgerrors.New(failCode, failMessage).
		WithDetails(map[string]string{"status": copy.Status.String()})
}

func (s *service) recordCondition(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, condition enums.CopyCondition) error {
	if !condition.IsValid() {
		return nil
	}
	return s.repo.WithTx(tx).UpdateCondition(ctx, copyID, condition)
}
