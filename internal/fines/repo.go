package fines

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Repository manages persistence for fines. Settlement transitions are
// guarded updates so a fine can leave pending exactly once.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, fine *models.Fine) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Fine, error)
	FindPendingByLoan(ctx context.Context, loanID uuid.UUID) (*models.Fine, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error)
	SumPendingByMember(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	MarkPaid(ctx context.Context, fineID uuid.UUID, paidAt time.Time) (bool, error)
	MarkWaived(ctx context.Context, fineID uuid.UUID, staffID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a fine repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, fine *models.Fine) error {
	return r.db.WithContext(ctx).Create(fine).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&fine).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *repository) FindPendingByLoan(ctx context.Context, loanID uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status = ?", loanID, enums.FineStatusPending).
		First(&fine).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	var fines []models.Fine
	err := r.db.WithContext(ctx).
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.member_id = ?", memberID).
		Order("fines.issue_date DESC").
		Find(&fines).Error
	if err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *repository) SumPendingByMember(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Select("SUM(fines.amount)").
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.member_id = ? AND fines.status = ?", memberID, enums.FineStatusPending).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) MarkPaid(ctx context.Context, fineID uuid.UUID, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("id = ? AND status = ?", fineID, enums.FineStatusPending).
		Updates(map[string]any{
			"status":       enums.FineStatusPaid,
			"payment_date": paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkWaived(ctx context.Context, fineID uuid.UUID, staffID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("id = ? AND status = ?", fineID, enums.FineStatusPending).
		Updates(map[string]any{
			"status":    enums.FineStatusWaived,
			"waived_by": staffID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
