package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/inventory"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// AddCopy registers a new physical copy for a title.
func AddCopy(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload addCopyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := decimal.NewFromString(payload.Price)
		if err != nil || price.IsNegative() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "price must be a non-negative decimal").
					WithDetails(map[string]any{"field": "price"}))
			return
		}

		copy := &models.BookCopy{
			BookID:          payload.BookID,
			Barcode:         payload.Barcode,
			Location:        payload.Location,
			AcquisitionDate: time.Now().UTC(),
			Price:           price,
			Condition:       enums.CopyCondition(payload.Condition),
		}
		created, err := svc.AddCopy(r.Context(), copy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCopyResponse(created))
	}
}

// CopyDetail fetches one copy from the ledger.
func CopyDetail(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		copyID, err := validators.ParseUUIDParam(chi.URLParam(r, "copyId"), "copyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		copy, err := svc.GetCopy(r.Context(), copyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCopyResponse(copy))
	}
}

// SendCopyToRepair pulls a shelved or damaged copy out of circulation.
func SendCopyToRepair(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return copyTransition(svc, logg, func(r *http.Request, copyID uuid.UUID) error {
		return svc.MarkUnderRepair(r.Context(), nil, copyID)
	})
}

// FinishCopyRepair returns a repaired copy to the shelf.
func FinishCopyRepair(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return copyTransition(svc, logg, func(r *http.Request, copyID uuid.UUID) error {
		return svc.MarkRepaired(r.Context(), nil, copyID)
	})
}

func copyTransition(svc inventory.Service, logg *logger.Logger, apply func(*http.Request, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		copyID, err := validators.ParseUUIDParam(chi.URLParam(r, "copyId"), "copyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := apply(r, copyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		copy, err := svc.GetCopy(r.Context(), copyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCopyResponse(copy))
	}
}

type addCopyRequest struct {
	BookID    uuid.UUID `json:"book_id" validate:"required"`
	Barcode   string    `json:"barcode" validate:"required,min=4,max=64"`
	Location  string    `json:"location" validate:"omitempty,max=128"`
	Price     string    `json:"price" validate:"required"`
	Condition string    `json:"condition" validate:"omitempty,oneof=new good fair poor"`
}

type copyResponse struct {
	CopyID          uuid.UUID       `json:"copy_id"`
	BookID          uuid.UUID       `json:"book_id"`
	Barcode         string          `json:"barcode"`
	Location        string          `json:"location,omitempty"`
	AcquisitionDate time.Time       `json:"acquisition_date"`
	Price           decimal.Decimal `json:"price"`
	Status          string          `json:"status"`
	Condition       string          `json:"condition"`
}

func newCopyResponse(copy *models.BookCopy) copyResponse {
	if copy == nil {
		return copyResponse{}
	}
	return copyResponse{
		CopyID:          copy.ID,
		BookID:          copy.BookID,
		Barcode:         copy.Barcode,
		Location:        copy.Location,
		AcquisitionDate: copy.AcquisitionDate,
		Price:           copy.Price,
		Status:          copy.Status.String(),
		Condition:       copy.Condition.String(),
	}
}
