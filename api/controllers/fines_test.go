package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

type stubFineService struct {
	fine        *models.Fine
	list        []models.Fine
	outstanding decimal.Decimal
	blocked     bool
	err         error
}

func (s *stubFineService) ListForMember(_ context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	return s.list, s.err
}

func (s *stubFineService) OutstandingTotal(_ context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	return s.outstanding, s.err
}

func (s *stubFineService) IsBlocked(_ context.Context, memberID uuid.UUID) (bool, error) {
	return s.blocked, s.err
}

// Get implements [fines.Service].
func (s *stubFineService) Get(_ context.Context, fineID uuid.UUID) (*models.Fine, error) {
	panic("unimplemented")
}

// Pay implements [fines.Service].
func (s *stubFineService) Pay(_ context.Context, fineID uuid.UUID, now time.Time) (*models.Fine, error) {
	panic("unimplemented")
}

// Waive implements [fines.Service].
func (s *stubFineService) Waive(_ context.Context, fineID, staffID uuid.UUID) (*models.Fine, error) {
	panic("unimplemented")
}

// IssueOverdueFine implements [fines.Service].
func (s *stubFineService) IssueOverdueFine(_ context.Context, tx *gorm.DB, loanID uuid.UUID, dueDate, returnedAt time.Time) (*models.Fine, error) {
	panic("unimplemented")
}

// IssueLossFine implements [fines.Service].
func (s *stubFineService) IssueLossFine(_ context.Context, tx *gorm.DB, loanID uuid.UUID, copyPrice decimal.Decimal, now time.Time) (*models.Fine, error) {
	panic("unimplemented")
}

func testFine(status enums.FineStatus) *models.Fine {
	return &models.Fine{
		ID:        uuid.New(),
		LoanID:    uuid.New(),
		Amount:    decimal.RequireFromString("5.00"),
		Reason:    enums.FineReasonOverdue,
		IssueDate: time.Now().UTC(),
		Status:    status,
	}
}

func TestPayFineSuccess(t *testing.T) {
	t.Parallel()

	fine := testFine(enums.FineStatusPaid)
	handler := PayFine(&stubCoordinator{fine: fine}, nil)
	req := urlParamRequest(http.MethodPost, "/api/v1/fines/"+fine.ID.String()+"/pay", "",
		map[string]string{"fineId": fine.ID.String()})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data fineResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != enums.FineStatusPaid.String() {
		t.Fatalf("unexpected status: %s", envelope.Data.Status)
	}
}

func TestWaiveFineMapsInvalidState(t *testing.T) {
	t.Parallel()

	handler := WaiveFine(&stubCoordinator{err: pkgerrors.New(pkgerrors.CodeInvalidState, "fine is not pending")}, nil)
	fineID := uuid.NewString()
	req := urlParamRequest(http.MethodPost, "/api/v1/fines/"+fineID+"/waive",
		`{"staff_id":"`+uuid.NewString()+`"}`, map[string]string{"fineId": fineID})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestWaiveFineRequiresStaffID(t *testing.T) {
	t.Parallel()

	handler := WaiveFine(&stubCoordinator{fine: testFine(enums.FineStatusWaived)}, nil)
	fineID := uuid.NewString()
	req := urlParamRequest(http.MethodPost, "/api/v1/fines/"+fineID+"/waive", `{}`,
		map[string]string{"fineId": fineID})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMemberFinesIncludesBalance(t *testing.T) {
	t.Parallel()

	memberID := uuid.New()
	svc := &stubFineService{
		list:        []models.Fine{*testFine(enums.FineStatusPending), *testFine(enums.FineStatusPaid)},
		outstanding: decimal.RequireFromString("12.50"),
		blocked:     true,
	}
	handler := MemberFines(svc, nil)
	req := urlParamRequest(http.MethodGet, "/api/v1/members/"+memberID.String()+"/fines", "",
		map[string]string{"memberId": memberID.String()})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data memberFinesResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Fines) != 2 {
		t.Fatalf("expected 2 fines got %d", len(envelope.Data.Fines))
	}
	if !envelope.Data.OutstandingTotal.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("unexpected outstanding total: %s", envelope.Data.OutstandingTotal)
	}
	if !envelope.Data.BorrowingBlocked {
		t.Fatalf("expected borrowing blocked")
	}
}
