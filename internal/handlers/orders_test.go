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

type stubOrderService struct {
	getFn      func(context.Context, string) (services.Order, error)
	itemsFn    func(context.Context, string) ([]services.OrderItem, error)
	listFn     func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	timelineFn func(context.Context, string) ([]services.TimelineEvent, error)
	readyFn    func(context.Context, services.OrderToggleCommand) (services.Order, error)
	paidFn     func(context.Context, services.OrderToggleCommand) (services.Order, error)
	claimedFn  func(context.Context, services.OrderToggleCommand) (services.Order, error)
	cancelFn   func(context.Context, services.CancelOrderCommand) (services.Order, error)
	refundFn   func(context.Context, services.RefundOrderCommand) (services.Order, error)
	discountFn func(context.Context, services.DiscountRequestCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderItems(ctx context.Context, orderID string) ([]services.OrderItem, error) {
	if s.itemsFn != nil {
		return s.itemsFn(ctx, orderID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) Timeline(ctx context.Context, orderID string) ([]services.TimelineEvent, error) {
	if s.timelineFn != nil {
		return s.timelineFn(ctx, orderID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) MarkAsReady(ctx context.Context, cmd services.OrderToggleCommand) (services.Order, error) {
	if s.readyFn != nil {
		return s.readyFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkAsPaid(ctx context.Context, cmd services.OrderToggleCommand) (services.Order, error) {
	if s.paidFn != nil {
		return s.paidFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkAsClaimed(ctx context.Context, cmd services.OrderToggleCommand) (services.Order, error) {
	if s.claimedFn != nil {
		return s.claimedFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkAsRefunded(ctx context.Context, cmd services.RefundOrderCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) FlagDiscountRequest(ctx context.Context, cmd services.DiscountRequestCommand) (services.Order, error) {
	if s.discountFn != nil {
		return s.discountFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func newOrderRouter(service services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func withTestIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	if len(roles) == 0 {
		roles = []string{auth.RoleOrganization}
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func TestOrderHandlersListOrdersCapturesFilter(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	fromExpected := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{
						ID:              "ord-1",
						ReferenceNumber: "UM-2025-000001",
						BuyerName:       "Dana Cruz",
						OrderStatus:     domain.OrderStatusPending,
						PaymentStatus:   domain.PaymentStatusPaid,
						TotalPrice:      500.00,
						DateOrdered:     now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newOrderRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/orders?organization_id=org-1&status=pending,ready&payment_status=paid&page_size=10&page_token=tok123&ordered_after=2025-03-01T00:00:00Z", nil)
	req = withTestIdentity(req, "acct-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrganizationID != "org-1" {
		t.Fatalf("expected organization filter org-1, got %s", captured.OrganizationID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filters: %#v", captured.Status)
	}
	if len(captured.PaymentStatus) != 1 || captured.PaymentStatus[0] != domain.PaymentStatusPaid {
		t.Fatalf("unexpected payment status filters: %#v", captured.PaymentStatus)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(fromExpected) {
		t.Fatalf("unexpected date range from: %#v", captured.DateRange.From)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Items))
	}
	if resp.Items[0].ReferenceNumber != "UM-2025-000001" || resp.Items[0].TotalPrice != 500.00 {
		t.Fatalf("unexpected order summary: %#v", resp.Items[0])
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersClampsPageSize(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}

	router := newOrderRouter(service)
	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders?page_size=500", nil), "acct-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Pagination.PageSize != maxPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", maxPageSize, captured.Pagination.PageSize)
	}
}

func TestOrderHandlersTogglePaid(t *testing.T) {
	var captured services.OrderToggleCommand
	service := &stubOrderService{
		paidFn: func(ctx context.Context, cmd services.OrderToggleCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, PaymentStatus: domain.PaymentStatusPaid}, nil
		},
	}

	router := newOrderRouter(service)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/ord-1:paid", nil), "acct-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.ActorID != "acct-7" {
		t.Fatalf("unexpected toggle command: %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Order.PaymentStatus != string(domain.PaymentStatusPaid) {
		t.Fatalf("expected paid payment status, got %s", resp.Order.PaymentStatus)
	}
}

func TestOrderHandlersCancelPassesRemarks(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, OrderStatus: domain.OrderStatusCancelled}, nil
		},
	}

	router := newOrderRouter(service)
	body := bytes.NewBufferString(`{"remarks":"buyer no-show"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/ord-1:cancel", body), "acct-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Remarks != "buyer no-show" {
		t.Fatalf("expected remarks forwarded, got %q", captured.Remarks)
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: ord-x", services.ErrOrderNotFound), http.StatusNotFound},
		{"invalid state", fmt.Errorf("%w: cancelled", services.ErrOrderInvalidState), http.StatusConflict},
		{"invalid input", fmt.Errorf("%w: bad id", services.ErrOrderInvalidInput), http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		service := &stubOrderService{
			getFn: func(ctx context.Context, orderID string) (services.Order, error) {
				return services.Order{}, tc.err
			},
		}
		router := newOrderRouter(service)
		req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord-x", nil), "acct-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, rr.Code)
		}
	}
}

func TestOrderHandlersTimeline(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	service := &stubOrderService{
		timelineFn: func(ctx context.Context, orderID string) ([]services.TimelineEvent, error) {
			return []services.TimelineEvent{
				{Status: "pending", Label: "Order Placed", Date: now},
				{Status: "paid", Label: "Payment Received", Date: now.Add(time.Hour)},
			}, nil
		},
	}

	router := newOrderRouter(service)
	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord-1/timeline", nil), "acct-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp timelineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[1].Label != "Payment Received" {
		t.Fatalf("unexpected timeline: %#v", resp.Events)
	}
}
