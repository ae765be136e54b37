package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// reservationExpirer expires lapsed reservations and recycles their copies.
type reservationExpirer interface {
	ExpireStaleReservations(ctx context.Context, now time.Time) (int, error)
}

// ReservationExpiryJobParams configure the reservation expiry job.
type ReservationExpiryJobParams struct {
	Logger      *logger.Logger
	Circulation reservationExpirer
}

// ReservationExpiryJob expires reservations whose pickup or wait window has
// lapsed and offers any freed copies to the next waiters.
type ReservationExpiryJob struct {
	logg        *logger.Logger
	circulation reservationExpirer
	now         func() time.Time
}

// NewReservationExpiryJob builds the reservation expiry job.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (*ReservationExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Circulation == nil {
		return nil, fmt.Errorf("circulation coordinator required")
	}
	return &ReservationExpiryJob{
		logg:        params.Logger,
		circulation: params.Circulation,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *ReservationExpiryJob) Name() string { return JobReservationExpiry }

// Run expires stale reservations and cascades freed copies.
func (j *ReservationExpiryJob) Run(ctx context.Context) error {
	expired, err := j.circulation.ExpireStaleReservations(ctx, j.now())
	if err != nil {
		return fmt.Errorf("expire stale reservations: %w", err)
	}
	ctx = j.logg.WithField(ctx, "reservations_expired", expired)
	j.logg.Info(ctx, "reservation expiry sweep complete")
	return nil
}
