package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/reservations"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// CreateReservation puts a member on a book's waitlist.
func CreateReservation(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if coord == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circulation coordinator unavailable"))
			return
		}

		var payload reservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := coord.Reserve(r.Context(), payload.BookID, payload.MemberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(reservation, 0))
	}
}

// CancelReservation withdraws a reservation and re-offers any held copy.
func CancelReservation(coord circulation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := validators.ParseUUIDParam(chi.URLParam(r, "reservationId"), "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := coord.CancelReservation(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReservationResponse(reservation, 0))
	}
}

// ReservationDetail fetches a reservation with its live queue position.
func ReservationDetail(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := validators.ParseUUIDParam(chi.URLParam(r, "reservationId"), "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Get(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		position := 0
		if reservation.Status == enums.ReservationStatusPending {
			position, err = svc.QueuePosition(r.Context(), reservationID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		responses.WriteSuccess(w, newReservationResponse(reservation, position))
	}
}

// MemberReservations lists a member's reservations, newest first.
func MemberReservations(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
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

		items := make([]reservationResponse, 0, len(list))
		for i := range list {
			items = append(items, newReservationResponse(&list[i], 0))
		}
		responses.WriteSuccess(w, map[string]any{"reservations": items})
	}
}

type reservationRequest struct {
	BookID   uuid.UUID `json:"book_id" validate:"required"`
	MemberID uuid.UUID `json:"member_id" validate:"required"`
}

type reservationResponse struct {
	ReservationID   uuid.UUID  `json:"reservation_id"`
	BookID          uuid.UUID  `json:"book_id"`
	MemberID        uuid.UUID  `json:"member_id"`
	CopyID          *uuid.UUID `json:"copy_id,omitempty"`
	ReservationDate time.Time  `json:"reservation_date"`
	ExpiryDate      time.Time  `json:"expiry_date"`
	Status          string     `json:"status"`
	QueuePosition   int        `json:"queue_position,omitempty"`
}

func newReservationResponse(reservation *models.Reservation, position int) reservationResponse {
	if reservation == nil {
		return reservationResponse{}
	}
	return reservationResponse{
		ReservationID:   reservation.ID,
		BookID:          reservation.BookID,
		MemberID:        reservation.MemberID,
		CopyID:          reservation.CopyID,
		ReservationDate: reservation.ReservationDate,
		ExpiryDate:      reservation.ExpiryDate,
		Status:          reservation.Status.String(),
		QueuePosition:   position,
	}
}
