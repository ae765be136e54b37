package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

// Service exposes member lookups and the borrowing eligibility check consulted
// before any checkout.
type Service interface {
	Get(ctx context.Context, memberID uuid.UUID) (*models.Member, error)
	AssertCanBorrow(ctx context.Context, memberID uuid.UUID, now time.Time) (*models.Member, error)
}

type service struct {
	repo Repository
}

// NewService wires a member service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, err
	}
	return member, nil
}

func (s *service) AssertCanBorrow(ctx context.Context, memberID uuid.UUID, now time.Time) (*models.Member, error) {
	member, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Status != enums.MemberStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeMemberIneligible, "member is not active").
			WithDetails(map[string]string{"status": member.Status.String()})
	}
	if member.MembershipExpiry.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeMemberIneligible, "membership has expired").
			WithDetails(map[string]string{"membership_expiry": member.MembershipExpiry.Format(time.RFC3339)})
	}
	return member, nil
}
