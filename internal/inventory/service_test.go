package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Book{}, &models.BookCopy{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedCopy(t *testing.T, db *gorm.DB, status enums.CopyStatus) *models.BookCopy {
	t.Helper()
	copy := &models.BookCopy{
		ID:        uuid.New(),
		BookID:    uuid.New(),
		Barcode:   uuid.NewString(),
		Status:    status,
		Condition: enums.CopyConditionGood,
	}
	if err := db.Create(copy).Error; err != nil {
		t.Fatalf("seed copy: %v", err)
	}
	return copy
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestTryReserveForLoanWinsOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	copy := seedCopy(t, db, enums.CopyStatusAvailable)

	wins := 0
	conflicts := 0
	for i := 0; i < 5; i++ {
		err := svc.TryReserveForLoan(ctx, nil, copy.ID)
		switch {
		case err == nil:
			wins++
		case pkgerrors.HasCode(err, pkgerrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 4 {
		t.Fatalf("expected 1 win and 4 conflicts, got %d/%d", wins, conflicts)
	}

	var reloaded models.BookCopy
	if err := db.First(&reloaded, "id = ?", copy.ID).Error; err != nil {
		t.Fatalf("reload copy: %v", err)
	}
	if reloaded.Status != enums.CopyStatusLoaned {
		t.Fatalf("expected loaned, got %s", reloaded.Status)
	}
}

func TestTryReserveForLoanConcurrentRacers(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	copy := seedCopy(t, db, enums.CopyStatusAvailable)

	// One writer connection so the racers serialize at the database instead
	// of tripping sqlite table locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	const racers = 8
	var wg sync.WaitGroup
	var wins, conflicts int32
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := svc.TryReserveForLoan(ctx, nil, copy.ID); {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case pkgerrors.HasCode(err, pkgerrors.CodeConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("expected 1 win and %d conflicts, got %d/%d", racers-1, wins, conflicts)
	}
	var reloaded models.BookCopy
	if err := db.First(&reloaded, "id = ?", copy.ID).Error; err != nil {
		t.Fatalf("reload copy: %v", err)
	}
	if reloaded.Status != enums.CopyStatusLoaned {
		t.Fatalf("expected loaned, got %s", reloaded.Status)
	}
}

func TestTryReserveForLoanUnknownCopy(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	err := svc.TryReserveForLoan(context.Background(), nil, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMarkReturnedRecordsCondition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	copy := seedCopy(t, db, enums.CopyStatusLoaned)

	if err := svc.MarkReturned(ctx, nil, copy.ID, enums.CopyConditionFair); err != nil {
		t.Fatalf("mark returned: %v", err)
	}

	var reloaded models.BookCopy
	if err := db.First(&reloaded, "id = ?", copy.ID).Error; err != nil {
		t.Fatalf("reload copy: %v", err)
	}
	if reloaded.Status != enums.CopyStatusAvailable {
		t.Fatalf("expected available, got %s", reloaded.Status)
	}
	if reloaded.Condition != enums.CopyConditionFair {
		t.Fatalf("expected condition fair, got %s", reloaded.Condition)
	}
}

func TestMarkReturnedRejectsShelvedCopy(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	copy := seedCopy(t, db, enums.CopyStatusAvailable)

	err := svc.MarkReturned(context.Background(), nil, copy.ID, enums.CopyConditionGood)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestHoldAndRelease(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	copy := seedCopy(t, db, enums.CopyStatusAvailable)

	if err := svc.HoldForPickup(ctx, nil, copy.ID); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := svc.HoldForPickup(ctx, nil, copy.ID); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT on double hold, got %v", err)
	}
	if err := svc.Release(ctx, nil, copy.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	var reloaded models.BookCopy
	if err := db.First(&reloaded, "id = ?", copy.ID).Error; err != nil {
		t.Fatalf("reload copy: %v", err)
	}
	if reloaded.Status != enums.CopyStatusAvailable {
		t.Fatalf("expected available after release, got %s", reloaded.Status)
	}
}

func TestRepairCycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	copy := seedCopy(t, db, enums.CopyStatusAvailable)

	if err := svc.MarkUnderRepair(ctx, nil, copy.ID); err != nil {
		t.Fatalf("send to repair: %v", err)
	}
	if err := svc.MarkRepaired(ctx, nil, copy.ID); err != nil {
		t.Fatalf("finish repair: %v", err)
	}
	if err := svc.MarkRepaired(ctx, nil, copy.ID); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected INVALID_STATE on double repair, got %v", err)
	}
}

func TestFindAvailableCopySkipsHeldCopies(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	bookID := uuid.New()
	held := seedCopy(t, db, enums.CopyStatusReserved)
	held.BookID = bookID
	if err := db.Save(held).Error; err != nil {
		t.Fatalf("update held copy: %v", err)
	}

	found, err := svc.FindAvailableCopy(ctx, bookID)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no available copy, got %s", found.ID)
	}

	shelved := seedCopy(t, db, enums.CopyStatusAvailable)
	shelved.BookID = bookID
	if err := db.Save(shelved).Error; err != nil {
		t.Fatalf("update shelved copy: %v", err)
	}

	found, err = svc.FindAvailableCopy(ctx, bookID)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if found == nil || found.ID != shelved.ID {
		t.Fatalf("expected shelved copy, got %+v", found)
	}
}
