package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/fines"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// PayFine settles a pending fine.
func PayFine(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fineID, err := validators.ParseUUIDParam(chi.URLParam(r, "fineId"), "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := coord.PayFine(r.Context(), fineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newFineResponse(fine))
	}
}

// WaiveFine forgives a pending fine on a staff member's authority.
func WaiveFine(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fineID, err := validators.ParseUUIDParam(chi.URLParam(r, "fineId"), "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload waiveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := coord.WaiveFine(r.Context(), fineID, payload.StaffID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newFineResponse(fine))
	}
}

// MemberFines lists a member's fines with their outstanding balance.
func MemberFines(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(chi.URLParam(r, "memberId"), "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outstanding, err := svc.OutstandingTotal(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blocked, err := svc.IsBlocked(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]fineResponse, 0, len(list))
		for i := range list {
			items = append(items, newFineResponse(&list[i]))
		}
		responses.WriteSuccess(w, memberFinesResponse{
			Fines:            items,
			OutstandingTotal: outstanding,
			BorrowingBlocked: blocked,
		})
	}
}

type waiveRequest struct {
	StaffID uuid.UUID `json:"staff_id" validate:"required"`
}

type fineResponse struct {
	FineID      uuid.UUID       `json:"fine_id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	IssueDate   time.Time       `json:"issue_date"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	Status      string          `json:"status"`
	WaivedBy    *uuid.UUID      `json:"waived_by,omitempty"`
}

type memberFinesResponse struct {
	Fines            []fineResponse  `json:"fines"`
	OutstandingTotal decimal.Decimal `json:"outstanding_total"`
	BorrowingBlocked bool            `json:"borrowing_blocked"`
}

func newFineResponse(fine *models.Fine) fineResponse {
	if fine == nil {
		return fineResponse{}
	}
	return fineResponse{
		FineID:      fine.ID,
		LoanID:      fine.LoanID,
		Amount:      fine.Amount,
		Reason:      fine.Reason.String(),
		IssueDate:   fine.IssueDate,
		PaymentDate: fine.PaymentDate,
		Status:      fine.Status.String(),
		WaivedBy:    fine.WaivedBy,
	}
}
