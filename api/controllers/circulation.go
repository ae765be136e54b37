package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/loans"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// Checkout lends one copy to one member.
func Checkout(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if coord == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation coordinator unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := coord.Checkout(r.Context(), payload.CopyID, payload.MemberID, payload.StaffID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newLoanResponse(loan))
	}
}

// ReturnLoan closes a loan and shelves its copy per the declared condition.
func ReturnLoan(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := validators.ParseUUIDParam(chi.URLParam(r, "loanId"), "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := coord.Return(r.Context(), circulation.ReturnInput{
			LoanID:    loanID,
			Condition: enums.CopyCondition(payload.Condition),
			Damaged:   payload.Damaged,
			Lost:      payload.Lost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLoanResponse(loan))
	}
}

// RenewLoan extends a loan's due date when the renewal guards allow it.
func RenewLoan(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := validators.ParseUUIDParam(chi.URLParam(r, "loanId"), "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := coord.RenewLoan(r.Context(), loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLoanResponse(loan))
	}
}

// ReportLost closes the loan as lost and charges the replacement fine.
func ReportLost(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := validators.ParseUUIDParam(chi.URLParam(r, "loanId"), "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := coord.ReportLost(r.Context(), loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLoanResponse(loan))
	}
}

// LoanDetail fetches a single loan.
func LoanDetail(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := validators.ParseUUIDParam(chi.URLParam(r, "loanId"), "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.Get(r.Context(), loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLoanResponse(loan))
	}
}

// MemberLoans lists a member's open loans.
func MemberLoans(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(chi.URLParam(r, "memberId"), "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		open, err := svc.ListOpenForMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]loanResponse, 0, len(open))
		for i := range open {
			items = append(items, newLoanResponse(&open[i]))
		}
		responses.WriteSuccess(w, map[string]any{"loans": items})
	}
}

type checkoutRequest struct {
	CopyID   uuid.UUID `json:"copy_id" validate:"required"`
	MemberID uuid.UUID `json:"member_id" validate:"required"`
	StaffID  uuid.UUID `json:"staff_id" validate:"required"`
}

type returnRequest struct {
	Condition string `json:"condition" validate:"omitempty,oneof=new good fair poor"`
	Damaged   bool   `json:"damaged"`
	Lost      bool   `json:"lost"`
}

type loanResponse struct {
	LoanID       uuid.UUID  `json:"loan_id"`
	CopyID       uuid.UUID  `json:"copy_id"`
	MemberID     uuid.UUID  `json:"member_id"`
	StaffID      uuid.UUID  `json:"staff_id"`
	LoanDate     time.Time  `json:"loan_date"`
	DueDate      time.Time  `json:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Status       string     `json:"status"`
	RenewalCount int        `json:"renewal_count"`
}

func newLoanResponse(loan *models.Loan) loanResponse {
	if loan == nil {
		return loanResponse{}
	}
	return loanResponse{
		LoanID:       loan.ID,
		CopyID:       loan.CopyID,
		MemberID:     loan.MemberID,
		StaffID:      loan.StaffID,
		LoanDate:     loan.LoanDate,
		DueDate:      loan.DueDate,
		ReturnDate:   loan.ReturnDate,
		Status:       loans.EffectiveStatus(loan, time.Now().UTC()).String(),
		RenewalCount: loan.RenewalCount,
	}
}
