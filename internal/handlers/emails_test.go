package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/mail"
	"github.com/unimerch/api/internal/services"
)

type captureSender struct {
	messages []mail.Message
	err      error
}

func (s *captureSender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func newEmailRouter(orders services.OrderService, sender mail.Sender) chi.Router {
	handler := NewEmailHandlers(orders, sender)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)
	return router
}

func TestEmailHandlersOrderNotification(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return services.Order{
				ID:              orderID,
				ReferenceNumber: "UM-2025-000001",
				BuyerName:       "Dana Cruz",
				BuyerEmail:      "dana@example.com",
				OrderStatus:     domain.OrderStatusReady,
				TotalPrice:      500.00,
			}, nil
		},
	}
	sender := &captureSender{}

	body := bytes.NewBufferString(`{"order_id":"ord-1","kind":"ready"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/emails:order-notification", body)
	rr := httptest.NewRecorder()
	newEmailRouter(orders, sender).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.To[0] != "dana@example.com" {
		t.Fatalf("unexpected recipient: %v", msg.To)
	}
	if !strings.Contains(msg.Subject, "UM-2025-000001") {
		t.Fatalf("expected reference in subject, got %s", msg.Subject)
	}
	if !strings.Contains(msg.Text, "ready for pickup") {
		t.Fatalf("unexpected body: %s", msg.Text)
	}
}

func TestEmailHandlersRejectsUnknownKind(t *testing.T) {
	orders := &stubOrderService{}
	sender := &captureSender{}

	body := bytes.NewBufferString(`{"order_id":"ord-1","kind":"shipped"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/emails:order-notification", body)
	rr := httptest.NewRecorder()
	newEmailRouter(orders, sender).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if len(sender.messages) != 0 {
		t.Fatalf("expected no messages sent")
	}
}

func TestEmailHandlersRequiresBuyerEmail(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return services.Order{ID: orderID, BuyerName: "Anon"}, nil
		},
	}
	sender := &captureSender{}

	body := bytes.NewBufferString(`{"order_id":"ord-1","kind":"ready"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/emails:order-notification", body)
	rr := httptest.NewRecorder()
	newEmailRouter(orders, sender).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}
