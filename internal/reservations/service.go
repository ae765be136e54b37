package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

// Service owns the per-book FIFO waitlist. OnCopyAvailable and Revert are the
// two halves of the fulfillment handshake with the inventory ledger: a popped
// reservation that loses the copy hold race is put back at its original queue
// position.
type Service interface {
	Enqueue(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error)
	Cancel(ctx context.Context, reservationID uuid.UUID, now time.Time) (*models.Reservation, bool, error)
	Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Reservation, error)
	QueuePosition(ctx context.Context, reservationID uuid.UUID) (int, error)

	HasPendingForBook(ctx context.Context, bookID uuid.UUID) (bool, error)
	HeldFor(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)

	OnCopyAvailable(ctx context.Context, tx *gorm.DB, bookID, copyID uuid.UUID, now time.Time) (*models.Reservation, error)
	Revert(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error
	ExpireBatch(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type service struct {
	repo   Repository
	policy config.CirculationConfig
}

// NewService wires a reservation service with the provided repository and policy.
func NewService(repo Repository, policy config.CirculationConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	return &service{repo: repo, policy: policy}, nil
}

func (s *service) Enqueue(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	existing, err := s.repo.FindPendingByBookAndMember(ctx, bookID, memberID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicatePending, "member already has a pending reservation for this book")
	}

	reservation := &models.Reservation{
		BookID:          bookID,
		MemberID:        memberID,
		ReservationDate: now,
		ExpiryDate:      now.Add(s.policy.ReservationTTL()),
	}
	if err := s.repo.Create(ctx, reservation); err != nil {
		// The partial unique index backs the pre-check under concurrency.
		if db.IsUniqueViolation(err, "idx_reservations_one_pending_per_member") {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicatePending, "member already has a pending reservation for this book")
		}
		return nil, err
	}
	return reservation, nil
}

// Cancel is idempotent: cancelling an already-cancelled reservation reports
// no change and succeeds. The returned flag tells the caller whether this
// invocation performed the transition, so held copies are released once.
func (s *service) Cancel(ctx context.Context, reservationID uuid.UUID, now time.Time) (*models.Reservation, bool, error) {
	if reservationID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	reservation, err := s.Get(ctx, reservationID)
	if err != nil {
		return nil, false, err
	}

	changed, err := s.repo.MarkCancelled(ctx, reservationID, now)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return reservation, false, nil
	}

	updated, err := s.Get(ctx, reservationID)
	if err != nil {
		return nil, false, err
	}
	// Report the copy the reservation was holding before cancellation.
	updated.CopyID = reservation.CopyID
	return updated, true, nil
}

func (s *service) Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	reservation, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return reservation, nil
}

func (s *service) ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Reservation, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	return s.repo.ListByMember(ctx, memberID)
}

// QueuePosition reports the 1-based place of a pending reservation in its
// book's waitlist.
func (s *service) QueuePosition(ctx context.Context, reservationID uuid.UUID) (int, error) {
	reservation, err := s.Get(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	ahead, err := s.repo.CountAhead(ctx, reservation)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func (s *service) HasPendingForBook(ctx context.Context, bookID uuid.UUID) (bool, error) {
	if bookID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	return s.repo.HasPendingByBook(ctx, bookID)
}

func (s *service) HeldFor(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindHeldByBookAndMember(ctx, bookID, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return reservation, nil
}

// OnCopyAvailable pops the oldest pending reservation for the book and marks
// it fulfilled holding the given copy for the pickup window. Returns nil when
// the queue is empty. The caller owns the matching copy hold and must Revert
// if that hold cannot be taken.
func (s *service) OnCopyAvailable(ctx context.Context, tx *gorm.DB, bookID, copyID uuid.UUID, now time.Time) (*models.Reservation, error) {
	if bookID == uuid.Nil || copyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id and copy id required")
	}
	repo := s.repo.WithTx(tx)
	next, err := repo.NextPending(ctx, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	expiry := now.Add(s.policy.PickupWindow())
	fulfilled, err := repo.MarkFulfilled(ctx, next.ID, copyID, expiry, now)
	if err != nil {
		return nil, err
	}
	if !fulfilled {
		// Lost a pop race to a concurrent cascade for the same book.
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reservation was claimed concurrently")
	}
	return repo.FindByID(ctx, next.ID)
}

// Revert puts a fulfilled reservation back at the head of the queue after the
// copy hold failed, restoring its original pending expiry.
func (s *service) Revert(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}
	expiry := reservation.ReservationDate.Add(s.policy.ReservationTTL())
	reverted, err := repo.RevertToPending(ctx, reservationID, expiry)
	if err != nil {
		return err
	}
	if !reverted {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "reservation is not fulfilled").
			WithDetails(map[string]string{"status": reservation.Status.String()})
	}
	return nil
}

// ExpireBatch flips stale pending and fulfilled reservations to expired and
// returns them so the caller can release any held copies and re-run the
// cascade per book.
func (s *service) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	stale, err := s.repo.ListStale(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	expired := make([]models.Reservation, 0, len(stale))
	for _, reservation := range stale {
		moved, err := s.repo.MarkExpired(ctx, reservation.ID)
		if err != nil {
			return expired, err
		}
		if moved {
			expired = append(expired, reservation)
		}
	}
	return expired, nil
}
