package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/internal/fines"
	"github.com/emiliogarza/libraria-backend/internal/inventory"
	"github.com/emiliogarza/libraria-backend/internal/loans"
	"github.com/emiliogarza/libraria-backend/internal/reservations"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
	"github.com/emiliogarza/libraria-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReturnInput captures the declared state of a copy at return time.
type ReturnInput struct {
	LoanID    uuid.UUID
	Condition enums.CopyCondition
	Damaged   bool
	Lost      bool
}

// Coordinator is the sole compound-operation entry point: every operation
// that touches more than one of loans, reservations, fines, and the
// inventory ledger goes through here. Steps after a loan closes are logged
// and never rolled back; the underlying operations are idempotent so a full
// retry is safe.
type Coordinator interface {
	Checkout(ctx context.Context, copyID, memberID, staffID uuid.UUID) (*models.Loan, error)
	Return(ctx context.Context, input ReturnInput) (*models.Loan, error)
	RenewLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	ReportLost(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	PayFine(ctx context.Context, fineID uuid.UUID) (*models.Fine, error)
	WaiveFine(ctx context.Context, fineID, staffID uuid.UUID) (*models.Fine, error)
	ExpireStaleReservations(ctx context.Context, now time.Time) (int, error)
}

type coordinator struct {
	tx           txRunner
	loans        loans.Service
	reservations reservations.Service
	fines        fines.Service
	inventory    inventory.Service
	logg         *logger.Logger
	metrics      *metrics.CirculationMetrics
	clock        func() time.Time
}

// NewCoordinator wires the circulation coordinator with its component services.
func NewCoordinator(
	tx txRunner,
	loanSvc loans.Service,
	reservationSvc reservations.Service,
	fineSvc fines.Service,
	inventorySvc inventory.Service,
	logg *logger.Logger,
	circMetrics *metrics.CirculationMetrics,
) (Coordinator, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if loanSvc == nil {
		return nil, fmt.Errorf("loan service required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if fineSvc == nil {
		return nil, fmt.Errorf("fine service required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &coordinator{
		tx:           tx,
		loans:        loanSvc,
		reservations: reservationSvc,
		fines:        fineSvc,
		inventory:    inventorySvc,
		logg:         logg,
		metrics:      circMetrics,
		clock:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *coordinator) Checkout(ctx context.Context, copyID, memberID, staffID uuid.UUID) (*models.Loan, error) {
	loan, err := c.loans.Checkout(ctx, copyID, memberID, staffID, c.clock())
	if err != nil {
		c.metrics.IncCheckout(outcomeFor(err))
		return nil, err
	}
	c.metrics.IncCheckout("success")
	return loan, nil
}

// Return closes the loan, updates the ledger, runs the reservation cascade,
// and issues an overdue fine when the copy came back late. Failures past loan
// closure are logged so a retry of the whole call can repair them.
func (c *coordinator) Return(ctx context.Context, input ReturnInput) (*models.Loan, error) {
	now := c.clock()
	ctx = c.logg.WithField(ctx, "loan_id", input.LoanID.String())

	loan, closedNow, err := c.loans.Return(ctx, input.LoanID, now)
	if err != nil {
		return nil, err
	}
	ctx = c.logg.WithCopyID(ctx, loan.CopyID.String())

	if closedNow {
		c.metrics.IncReturn()
	} else {
		// An earlier call already closed the loan but may have failed before
		// the ledger update or the fine, so the repeat runs both again. The
		// copy must not be touched once it has gone out on a new loan.
		reloaned, err := c.loans.HasOpenForCopy(ctx, loan.CopyID)
		if err != nil {
			c.logg.Error(ctx, "return: open loan lookup failed", err)
			return loan, nil
		}
		if reloaned {
			return loan, nil
		}
	}

	if err := c.shelveReturnedCopy(ctx, loan, input); err != nil {
		// On a repeat the copy is usually shelved already and the guarded
		// transition reports an invalid state; that is the expected no-op.
		if closedNow || !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
			c.logg.Error(ctx, "return: ledger update failed", err)
		}
	}

	if loan.ReturnDate != nil && loan.ReturnDate.After(loan.DueDate) {
		fine, err := c.fines.IssueOverdueFine(ctx, nil, loan.ID, loan.DueDate, *loan.ReturnDate)
		if err != nil {
			c.logg.Error(ctx, "return: overdue fine issuance failed", err)
		} else if fine != nil && closedNow {
			c.metrics.IncFineIssued(enums.FineReasonOverdue.String())
		}
	}
	return loan, nil
}

func (c *coordinator) shelveReturnedCopy(ctx context.Context, loan *models.Loan, input ReturnInput) error {
	if input.Lost {
		return c.inventory.MarkLost(ctx, nil, loan.CopyID)
	}
	if input.Damaged {
		return c.inventory.MarkDamaged(ctx, nil, loan.CopyID, input.Condition)
	}

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := c.inventory.MarkReturned(ctx, tx, loan.CopyID, input.Condition); err != nil {
			return err
		}
		copy, err := c.inventory.GetCopy(ctx, loan.CopyID)
		if err != nil {
			return err
		}
		return c.cascade(ctx, tx, copy.BookID, loan.CopyID, c.clock())
	})
}

// cascade offers a freshly available copy to the book's waitlist. Losing the
// copy hold race puts the popped reservation back at the head of the queue.
func (c *coordinator) cascade(ctx context.Context, tx *gorm.DB, bookID, copyID uuid.UUID, now time.Time) error {
	reservation, err := c.reservations.OnCopyAvailable(ctx, tx, bookID, copyID, now)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return nil
		}
		return err
	}
	if reservation == nil {
		return nil
	}

	if err := c.inventory.HoldForPickup(ctx, tx, copyID); err != nil {
		if revertErr := c.reservations.Revert(ctx, tx, reservation.ID); revertErr != nil {
			c.logg.Error(ctx, "cascade: reservation revert failed", revertErr)
		}
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return nil
		}
		return err
	}
	c.metrics.IncReservation("fulfilled")
	return nil
}

func (c *coordinator) RenewLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return c.loans.Renew(ctx, loanID, c.clock())
}

// ReportLost closes the loan as lost, writes the ledger, and charges the
// replacement fine.
func (c *coordinator) ReportLost(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := c.loans.MarkLost(ctx, loanID)
	if err != nil {
		return nil, err
	}

	copy, err := c.inventory.GetCopy(ctx, loan.CopyID)
	if err != nil {
		return nil, err
	}
	if err := c.inventory.MarkLost(ctx, nil, loan.CopyID); err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
			c.logg.Error(ctx, "report lost: ledger update failed", err)
		}
	}

	fine, err := c.fines.IssueLossFine(ctx, nil, loan.ID, copy.Price, c.clock())
	if err != nil {
		c.logg.Error(ctx, "report lost: loss fine issuance failed", err)
	} else if fine != nil {
		c.metrics.IncFineIssued(enums.FineReasonLoss.String())
	}
	return loan, nil
}

func (c *coordinator) Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	reservation, err := c.reservations.Enqueue(ctx, bookID, memberID, c.clock())
	if err != nil {
		return nil, err
	}
	c.metrics.IncReservation("enqueued")
	return reservation, nil
}

// CancelReservation releases any held copy and re-offers it to the next
// waiter.
func (c *coordinator) CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	reservation, changed, err := c.reservations.Cancel(ctx, reservationID, c.clock())
	if err != nil {
		return nil, err
	}
	if !changed {
		return reservation, nil
	}
	c.metrics.IncReservation("cancelled")

	if reservation.CopyID != nil {
		if err := c.releaseAndCascade(ctx, reservation.BookID, *reservation.CopyID, c.clock()); err != nil {
			c.logg.Error(ctx, "cancel reservation: copy release failed", err)
		}
	}
	return reservation, nil
}

func (c *coordinator) PayFine(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	return c.fines.Pay(ctx, fineID, c.clock())
}

func (c *coordinator) WaiveFine(ctx context.Context, fineID, staffID uuid.UUID) (*models.Fine, error) {
	return c.fines.Waive(ctx, fineID, staffID)
}

// ExpireStaleReservations sweeps lapsed reservations, releases their held
// copies, and re-runs the cascade per book. Returns the number expired.
func (c *coordinator) ExpireStaleReservations(ctx context.Context, now time.Time) (int, error) {
	expired, err := c.reservations.ExpireBatch(ctx, now, 0)
	if err != nil {
		return len(expired), err
	}

	for _, reservation := range expired {
		c.metrics.IncReservation("expired")
		if reservation.CopyID == nil {
			continue
		}
		if err := c.releaseAndCascade(ctx, reservation.BookID, *reservation.CopyID, now); err != nil {
			c.logg.Error(ctx, "expire sweep: copy release failed", err)
		}
	}
	return len(expired), nil
}

func (c *coordinator) releaseAndCascade(ctx context.Context, bookID, copyID uuid.UUID, now time.Time) error {
	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := c.inventory.Release(ctx, tx, copyID); err != nil {
			// A checkout racing the sweep may have claimed the copy already;
			// the hold CAS resolved the race and there is nothing to release.
			if pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
				return nil
			}
			return err
		}
		return c.cascade(ctx, tx, bookID, copyID, now)
	})
}

func outcomeFor(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeCopyUnavailable, pkgerrors.CodeConflict:
		return "conflict"
	case pkgerrors.CodeMemberIneligible:
		return "ineligible"
	default:
		return "error"
	}
}
