package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

var openStatuses = []enums.LoanStatus{enums.LoanStatusActive, enums.LoanStatusOverdue}

// Repository manages persistence for loans. Closing transitions are guarded
// updates so a loan leaves the open states exactly once.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindOpenByCopy(ctx context.Context, copyID uuid.UUID) (*models.Loan, error)
	ListOpenByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	ListDueBefore(ctx context.Context, cutoff time.Time) ([]models.Loan, error)
	CloseReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) (bool, error)
	CloseLost(ctx context.Context, loanID uuid.UUID) (bool, error)
	ExtendDueDate(ctx context.Context, loanID uuid.UUID, newDue time.Time) (bool, error)
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) FindOpenByCopy(ctx context.Context, copyID uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Where("copy_id = ? AND status IN ?", copyID, openStatuses).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) ListOpenByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status IN ?", memberID, openStatuses).
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListDueBefore(ctx context.Context, cutoff time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("status IN ? AND due_date < ?", openStatuses, cutoff).
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) CloseReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status IN ?", loanID, openStatuses).
		Updates(map[string]any{
			"status":      enums.LoanStatusReturned,
			"return_date": returnedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CloseLost(ctx context.Context, loanID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status IN ?", loanID, openStatuses).
		Update("status", enums.LoanStatusLost)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ExtendDueDate(ctx context.Context, loanID uuid.UUID, newDue time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, enums.LoanStatusActive).
		Updates(map[string]any{
			"due_date":      newDue,
			"renewal_count": gorm.Expr("renewal_count + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SweepOverdue persists the overdue label on past-due active loans. The label
// is cosmetic for reporting; eligibility and fines always derive lateness
// from due_date.
func (r *repository) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status = ? AND due_date < ?", enums.LoanStatusActive, now).
		Update("status", enums.LoanStatusOverdue)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
