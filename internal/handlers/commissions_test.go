package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/services"
)

type stubCommissionService struct {
	recordFn  func(context.Context, services.RecordCommissionPaymentCommand) (services.CommissionPayment, services.Organization, error)
	summaryFn func(context.Context, string) (services.CommissionSummary, error)
	listFn    func(context.Context, string, services.Pagination) (domain.CursorPage[services.CommissionPayment], error)
}

func (s *stubCommissionService) RecordPayment(ctx context.Context, cmd services.RecordCommissionPaymentCommand) (services.CommissionPayment, services.Organization, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, cmd)
	}
	return services.CommissionPayment{}, services.Organization{}, errors.New("not implemented")
}

func (s *stubCommissionService) Summary(ctx context.Context, organizationID string) (services.CommissionSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, organizationID)
	}
	return services.CommissionSummary{}, errors.New("not implemented")
}

func (s *stubCommissionService) ListPayments(ctx context.Context, organizationID string, pager services.Pagination) (domain.CursorPage[services.CommissionPayment], error) {
	if s.listFn != nil {
		return s.listFn(ctx, organizationID, pager)
	}
	return domain.CursorPage[services.CommissionPayment]{}, nil
}

func newCommissionRouter(service services.CommissionService) chi.Router {
	handler := NewCommissionHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/organizations", handler.Routes)
	return router
}

func TestCommissionHandlersRecordPayment(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	var captured services.RecordCommissionPaymentCommand
	service := &stubCommissionService{
		recordFn: func(ctx context.Context, cmd services.RecordCommissionPaymentCommand) (services.CommissionPayment, services.Organization, error) {
			captured = cmd
			return services.CommissionPayment{
					ID:               "pay-1",
					OrganizationID:   cmd.OrganizationID,
					Amount:           200.00,
					RemainingBalance: 300.00,
					Status:           domain.CommissionPaymentPartial,
					CreatedAt:        now,
				}, services.Organization{
					ID:        cmd.OrganizationID,
					TotalDue:  300.00,
					TotalPaid: 200.00,
				}, nil
		},
	}

	body := bytes.NewBufferString(`{"amount":200.00,"method":"bank_transfer","remarks":"march settlement"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/organizations/org-1/commission-payments", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newCommissionRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrganizationID != "org-1" || captured.Amount != 200.00 || captured.RecordedBy != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp recordPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Payment.RemainingBalance != 300.00 || resp.Organization.TotalPaid != 200.00 {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestCommissionHandlersRecordPaymentRequiresAdmin(t *testing.T) {
	service := &stubCommissionService{
		recordFn: func(ctx context.Context, cmd services.RecordCommissionPaymentCommand) (services.CommissionPayment, services.Organization, error) {
			t.Fatal("service should not be called")
			return services.CommissionPayment{}, services.Organization{}, nil
		},
	}

	body := bytes.NewBufferString(`{"amount":200.00}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/organizations/org-1/commission-payments", body), "org-user", auth.RoleOrganization)
	rr := httptest.NewRecorder()
	newCommissionRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestCommissionHandlersRecordPaymentExceedsBalance(t *testing.T) {
	service := &stubCommissionService{
		recordFn: func(ctx context.Context, cmd services.RecordCommissionPaymentCommand) (services.CommissionPayment, services.Organization, error) {
			return services.CommissionPayment{}, services.Organization{}, fmt.Errorf("%w: 100.00 due", services.ErrCommissionExceedsBalance)
		},
	}

	body := bytes.NewBufferString(`{"amount":500.00}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/organizations/org-1/commission-payments", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newCommissionRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCommissionHandlersSummary(t *testing.T) {
	service := &stubCommissionService{
		summaryFn: func(ctx context.Context, organizationID string) (services.CommissionSummary, error) {
			return services.CommissionSummary{
				OrganizationID: organizationID,
				TotalDue:       300.00,
				TotalPaid:      200.00,
				PaidOrders:     4,
				UnpaidOrders:   2,
			}, nil
		},
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/organizations/org-1/commission-summary", nil), "acct-1")
	rr := httptest.NewRecorder()
	newCommissionRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp commissionSummaryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.TotalDue != 300.00 || resp.PaidOrders != 4 {
		t.Fatalf("unexpected summary: %#v", resp)
	}
}
