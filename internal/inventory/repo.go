package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Repository manages persistence for book copies. Transition is the
// conditional-update primitive every status change goes through.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, copy *models.BookCopy) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BookCopy, error)
	FindFirstAvailableByBook(ctx context.Context, bookID uuid.UUID) (*models.BookCopy, error)
	CountByBookAndStatus(ctx context.Context, bookID uuid.UUID, status enums.CopyStatus) (int64, error)
	Transition(ctx context.Context, copyID uuid.UUID, from []enums.CopyStatus, to enums.CopyStatus) (bool, error)
	UpdateCondition(ctx context.Context, copyID uuid.UUID, condition enums.CopyCondition) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a copy repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, copy *models.BookCopy) error {
	return r.db.WithContext(ctx).Create(copy).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BookCopy, error) {
	var copy models.BookCopy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&copy).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *repository) FindFirstAvailableByBook(ctx context.Context, bookID uuid.UUID) (*models.BookCopy, error) {
	var copy models.BookCopy
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.CopyStatusAvailable).
		Order("acquisition_date ASC, id ASC").
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *repository) CountByBookAndStatus(ctx context.Context, bookID uuid.UUID, status enums.CopyStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BookCopy{}).
		Where("book_id = ? AND status = ?", bookID, status).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Transition moves a copy from one of the expected statuses to the target
// status in a single guarded UPDATE. A false result means the copy was not in
// any expected status when the statement ran; exactly one concurrent caller
// can win a given transition.
func (r *repository) Transition(ctx context.Context, copyID uuid.UUID, from []enums.CopyStatus, to enums.CopyStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BookCopy{}).
		Where("id = ? AND status IN ?", copyID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateCondition(ctx context.Context, copyID uuid.UUID, condition enums.CopyCondition) error {
	return r.db.WithContext(ctx).
		Model(&models.BookCopy{}).
		Where("id = ?", copyID).
		Update("condition", condition).Error
}
