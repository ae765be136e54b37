package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emiliogarza/libraria-backend/api/responses"
	"github.com/emiliogarza/libraria-backend/api/validators"
	"github.com/emiliogarza/libraria-backend/internal/members"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
)

// MemberDetail fetches one member.
func MemberDetail(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(chi.URLParam(r, "memberId"), "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.Get(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newMemberResponse(member))
	}
}

type memberResponse struct {
	MemberID         uuid.UUID `json:"member_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Status           string    `json:"status"`
	MembershipExpiry time.Time `json:"membership_expiry"`
	TotalBorrowed    int       `json:"total_borrowed"`
}

func newMemberResponse(member *models.Member) memberResponse {
	if member == nil {
		return memberResponse{}
	}
	return memberResponse{
		MemberID:         member.ID,
		FullName:         member.FullName,
		Email:            member.Email,
		Status:           member.Status.String(),
		MembershipExpiry: member.MembershipExpiry,
		TotalBorrowed:    member.TotalBorrowed,
	}
}
