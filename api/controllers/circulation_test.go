package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/pkg/db/models"
	"github.com/emiliogarza/libraria-backend/pkg/enums"
	pkgerrors "github.com/emiliogarza/libraria-backend/pkg/errors"
)

type stubCoordinator struct {
	loan        *models.Loan
	reservation *models.Reservation
	fine        *models.Fine
	err         error

	lastReturn circulation.ReturnInput
}

func (s *stubCoordinator) Checkout(_ context.Context, copyID, memberID, staffID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCoordinator) Return(_ context.Context, input circulation.ReturnInput) (*models.Loan, error) {
	s.lastReturn = input
	return s.loan, s.err
}

func (s *stubCoordinator) RenewLoan(_ context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCoordinator) ReportLost(_ context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCoordinator) Reserve(_ context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	return s.reservation, s.err
}

func (s *stubCoordinator) CancelReservation(_ context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	return s.reservation, s.err
}

func (s *stubCoordinator) PayFine(_ context.Context, fineID uuid.UUID) (*models.Fine, error) {
	return s.fine, s.err
}

func (s *stubCoordinator) WaiveFine(_ context.Context, fineID, staffID uuid.UUID) (*models.Fine, error) {
	return s.fine, s.err
}

func (s *stubCoordinator) ExpireStaleReservations(_ context.Context, now time.Time) (int, error) {
	return 0, s.err
}

func testLoan() *models.Loan {
	now := time.Now().UTC()
	return &models.Loan{
		ID:       uuid.New(),
		CopyID:   uuid.New(),
		MemberID: uuid.New(),
		StaffID:  uuid.New(),
		LoanDate: now,
		DueDate:  now.Add(14 * 24 * time.Hour),
		Status:   enums.LoanStatusActive,
	}
}

func urlParamRequest(method, target string, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	loan := testLoan()
	handler := Checkout(&stubCoordinator{loan: loan}, nil)

	body := `{"copy_id":"` + loan.CopyID.String() + `","member_id":"` + loan.MemberID.String() + `","staff_id":"` + loan.StaffID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data loanResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.LoanID != loan.ID {
		t.Fatalf("unexpected loan id: %s", envelope.Data.LoanID)
	}
	if envelope.Data.Status != enums.LoanStatusActive.String() {
		t.Fatalf("unexpected status: %s", envelope.Data.Status)
	}
}

func TestCheckoutValidationError(t *testing.T) {
	t.Parallel()

	handler := Checkout(&stubCoordinator{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutMapsCopyUnavailable(t *testing.T) {
	t.Parallel()

	handler := Checkout(&stubCoordinator{err: pkgerrors.New(pkgerrors.CodeCopyUnavailable, "copy is not available")}, nil)
	body := `{"copy_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `","staff_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeCopyUnavailable) {
		t.Fatalf("unexpected error code: %s", envelope.Error.Code)
	}
}

func TestReturnLoanPassesDeclaredCondition(t *testing.T) {
	t.Parallel()

	loan := testLoan()
	coord := &stubCoordinator{loan: loan}
	handler := ReturnLoan(coord, nil)

	req := urlParamRequest(http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/return",
		`{"condition":"fair","damaged":true}`, map[string]string{"loanId": loan.ID.String()})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if coord.lastReturn.LoanID != loan.ID {
		t.Fatalf("unexpected loan id: %s", coord.lastReturn.LoanID)
	}
	if coord.lastReturn.Condition != enums.CopyConditionFair || !coord.lastReturn.Damaged {
		t.Fatalf("return input not forwarded: %+v", coord.lastReturn)
	}
}

func TestReturnLoanRejectsBadCondition(t *testing.T) {
	t.Parallel()

	handler := ReturnLoan(&stubCoordinator{loan: testLoan()}, nil)
	loanID := uuid.NewString()
	req := urlParamRequest(http.MethodPost, "/api/v1/loans/"+loanID+"/return",
		`{"condition":"shredded"}`, map[string]string{"loanId": loanID})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRenewLoanMapsRenewalBlocked(t *testing.T) {
	t.Parallel()

	handler := RenewLoan(&stubCoordinator{err: pkgerrors.New(pkgerrors.CodeRenewalBlocked, "renewal limit reached")}, nil)
	loanID := uuid.NewString()
	req := urlParamRequest(http.MethodPost, "/api/v1/loans/"+loanID+"/renew", "", map[string]string{"loanId": loanID})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestReportLostReturnsLoan(t *testing.T) {
	t.Parallel()

	loan := testLoan()
	loan.Status = enums.LoanStatusLost
	handler := ReportLost(&stubCoordinator{loan: loan}, nil)
	req := urlParamRequest(http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/lost", "", map[string]string{"loanId": loan.ID.String()})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data loanResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != enums.LoanStatusLost.String() {
		t.Fatalf("unexpected status: %s", envelope.Data.Status)
	}
}
