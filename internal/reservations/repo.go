package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
)

// Repository manages persistence for reservations. Queue order is FIFO by
// reservation_date with id as the tie-breaker; all lifecycle transitions are
// guarded updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindPendingByBookAndMember(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	FindHeldByBookAndMember(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	NextPending(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error)
	HasPendingByBook(ctx context.Context, bookID uuid.UUID) (bool, error)
	CountAhead(ctx context.Context, reservation *models.Reservation) (int64, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Reservation, error)
	ListStale(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	MarkFulfilled(ctx context.Context, id, copyID uuid.UUID, expiry, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
	RevertToPending(ctx context.Context, id uuid.UUID, expiry time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindPendingByBookAndMember(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND member_id = ? AND status = ?", bookID, memberID, enums.ReservationStatusPending).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindHeldByBookAndMember(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND member_id = ? AND status = ? AND copy_id IS NOT NULL",
			bookID, memberID, enums.ReservationStatusFulfilled).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) NextPending(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusPending).
		Order("reservation_date ASC, id ASC").
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) HasPendingByBook(ctx context.Context, bookID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CountAhead(ctx context.Context, reservation *models.Reservation) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("book_id = ? AND status = ?", reservation.BookID, enums.ReservationStatusPending).
		Where("(reservation_date < ?) OR (reservation_date = ? AND id < ?)",
			reservation.ReservationDate, reservation.ReservationDate, reservation.ID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("reservation_date DESC").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) ListStale(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := r.db.WithContext(ctx).
		Where("status IN ? AND expiry_date < ?",
			[]enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusFulfilled}, now).
		Order("expiry_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) MarkFulfilled(ctx context.Context, id, copyID uuid.UUID, expiry, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusPending).
		Updates(map[string]any{
			"status":       enums.ReservationStatusFulfilled,
			"copy_id":      copyID,
			"expiry_date":  expiry,
			"fulfilled_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status IN ?", id,
			[]enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusFulfilled}).
		Updates(map[string]any{
			"status":       enums.ReservationStatusCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status IN ?", id,
			[]enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusFulfilled}).
		Update("status", enums.ReservationStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) RevertToPending(ctx context.Context, id uuid.UUID, expiry time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusFulfilled).
		Updates(map[string]any{
			"status":       enums.ReservationStatusPending,
			"copy_id":      nil,
			"expiry_date":  expiry,
			"fulfilled_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
