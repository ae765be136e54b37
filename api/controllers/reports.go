package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/reports"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// AvailableCopies lists a book's shelved copies in acquisition order.
func AvailableCopies(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID, err := validators.ParseUUIDParam(chi.URLParam(r, "bookId"), "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		copies, err := svc.AvailableCopies(r.Context(), bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]copyResponse, 0, len(copies))
		for i := range copies {
			items = append(items, newCopyResponse(&copies[i]))
		}
		responses.WriteSuccess(w, map[string]any{"copies": items})
	}
}

// OverdueLoans lists every open loan past its due date.
func OverdueLoans(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overdue, err := svc.OverdueLoans(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]overdueLoanResponse, 0, len(overdue))
		for i := range overdue {
			items = append(items, overdueLoanResponse{
				Loan:     newLoanResponse(&overdue[i].Loan),
				DaysLate: overdue[i].DaysLate,
			})
		}
		responses.WriteSuccess(w, map[string]any{"overdue": items})
	}
}

// MemberActivity summarizes a member's loans, reservations, and fines.
func MemberActivity(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(chi.URLParam(r, "memberId"), "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activity, err := svc.MemberActivity(r.Context(), memberID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, activity)
	}
}

type overdueLoanResponse struct {
	Loan     loanResponse `json:"loan"`
	DaysLate int          `json:"days_late"`
}
