package reservations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

func testPolicy() config.CirculationConfig {
	return config.CirculationConfig{
		PickupWindowDays:   3,
		ReservationTTLDays: 30,
		DailyFineRate:      decimal.RequireFromString("1.00"),
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Reservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), testPolicy())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestEnqueueDuplicatePending(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()
	bookID := uuid.New()
	memberID := uuid.New()

	first, err := svc.Enqueue(ctx, bookID, memberID, now)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.Status != enums.ReservationStatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}
	if !first.ExpiryDate.After(now) {
		t.Fatalf("expected future expiry, got %s", first.ExpiryDate)
	}

	_, err = svc.Enqueue(ctx, bookID, memberID, now.Add(time.Minute))
	if !pkgerrors.HasCode(err, pkgerrors.CodeDuplicatePending) {
		t.Fatalf("expected DUPLICATE_PENDING, got %v", err)
	}

	// Same member may wait on a different book.
	if _, err := svc.Enqueue(ctx, uuid.New(), memberID, now); err != nil {
		t.Fatalf("enqueue other book: %v", err)
	}
}

// racedRepo simulates a rival enqueue committing between the duplicate
// pre-check and the insert: Create fails the way postgres reports the
// partial unique index firing.
type racedRepo struct {
	Repository
}

func (r racedRepo) Create(ctx context.Context, reservation *models.Reservation) error {
	return errors.New(`duplicate key value violates unique constraint "idx_reservations_one_pending_per_member"`)
}

func TestEnqueueInsertRaceMapsToDuplicatePending(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(racedRepo{NewRepository(db)}, testPolicy())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Enqueue(context.Background(), uuid.New(), uuid.New(), time.Now().UTC())
	if !pkgerrors.HasCode(err, pkgerrors.CodeDuplicatePending) {
		t.Fatalf("expected DUPLICATE_PENDING, got %v", err)
	}
}

func TestOnCopyAvailablePopsFIFO(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()
	bookID := uuid.New()
	copyID := uuid.New()

	older, err := svc.Enqueue(ctx, bookID, uuid.New(), now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("enqueue older: %v", err)
	}
	if _, err := svc.Enqueue(ctx, bookID, uuid.New(), now.Add(-time.Hour)); err != nil {
		t.Fatalf("enqueue newer: %v", err)
	}

	popped, err := svc.OnCopyAvailable(ctx, nil, bookID, copyID, now)
	if err != nil {
		t.Fatalf("on copy available: %v", err)
	}
	if popped == nil || popped.ID != older.ID {
		t.Fatalf("expected oldest reservation, got %+v", popped)
	}
	if popped.Status != enums.ReservationStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", popped.Status)
	}
	if popped.CopyID == nil || *popped.CopyID != copyID {
		t.Fatalf("expected held copy %s, got %v", copyID, popped.CopyID)
	}
	wantExpiry := now.Add(testPolicy().PickupWindow())
	if !popped.ExpiryDate.Equal(wantExpiry) {
		t.Fatalf("expected pickup expiry %s, got %s", wantExpiry, popped.ExpiryDate)
	}
}

func TestOnCopyAvailableEmptyQueue(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	popped, err := svc.OnCopyAvailable(context.Background(), nil, uuid.New(), uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatalf("on copy available: %v", err)
	}
	if popped != nil {
		t.Fatalf("expected empty queue, got %+v", popped)
	}
}

func TestRevertRestoresQueuePosition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()
	bookID := uuid.New()

	reservation, err := svc.Enqueue(ctx, bookID, uuid.New(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.OnCopyAvailable(ctx, nil, bookID, uuid.New(), now); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	if err := svc.Revert(ctx, nil, reservation.ID); err != nil {
		t.Fatalf("revert: %v", err)
	}

	reloaded, err := svc.Get(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusPending {
		t.Fatalf("expected pending after revert, got %s", reloaded.Status)
	}
	if reloaded.CopyID != nil {
		t.Fatalf("expected held copy cleared, got %v", reloaded.CopyID)
	}

	pos, err := svc.QueuePosition(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("queue position: %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected head of queue, got %d", pos)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	reservation, err := svc.Enqueue(ctx, uuid.New(), uuid.New(), now)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cancelled, changed, err := svc.Cancel(ctx, reservation.ID, now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !changed || cancelled.Status != enums.ReservationStatusCancelled {
		t.Fatalf("expected cancelled transition, got changed=%v status=%s", changed, cancelled.Status)
	}

	again, changed, err := svc.Cancel(ctx, reservation.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if changed {
		t.Fatal("expected repeated cancel to be a no-op")
	}
	if again.Status != enums.ReservationStatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}
}

func TestExpireBatch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()
	bookID := uuid.New()

	stale, err := svc.Enqueue(ctx, bookID, uuid.New(), now.Add(-31*24*time.Hour))
	if err != nil {
		t.Fatalf("enqueue stale: %v", err)
	}
	fresh, err := svc.Enqueue(ctx, bookID, uuid.New(), now)
	if err != nil {
		t.Fatalf("enqueue fresh: %v", err)
	}

	expired, err := svc.ExpireBatch(ctx, now, 10)
	if err != nil {
		t.Fatalf("expire batch: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected only the stale reservation expired, got %+v", expired)
	}

	reloaded, err := svc.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("reload fresh: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusPending {
		t.Fatalf("expected fresh reservation untouched, got %s", reloaded.Status)
	}
}

func TestQueuePosition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now().UTC()
	bookID := uuid.New()

	if _, err := svc.Enqueue(ctx, bookID, uuid.New(), now.Add(-time.Hour)); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	second, err := svc.Enqueue(ctx, bookID, uuid.New(), now)
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	pos, err := svc.QueuePosition(ctx, second.ID)
	if err != nil {
		t.Fatalf("queue position: %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}
}
