package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/platform/mail"
	"github.com/unimerch/api/internal/services"
)

const maxEmailBodySize = 4 * 1024

// EmailHandlers serves internal notification delivery. The /internal group is
// expected to sit behind HMAC request signing, so no Firebase auth applies.
type EmailHandlers struct {
	orders services.OrderService
	mailer mail.Sender
}

// NewEmailHandlers constructs a new EmailHandlers instance.
func NewEmailHandlers(orders services.OrderService, mailer mail.Sender) *EmailHandlers {
	return &EmailHandlers{
		orders: orders,
		mailer: mailer,
	}
}

// Routes registers the internal email endpoints.
func (h *EmailHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/emails:order-notification", h.orderNotification)
}

type orderNotificationRequest struct {
	OrderID string `json:"order_id"`
	Kind    string `json:"kind"`
}

var orderNotificationSubjects = map[string]string{
	"ready":     "Your order is ready for pickup",
	"claimed":   "Your order has been claimed",
	"cancelled": "Your order has been cancelled",
	"refunded":  "Your payment has been refunded",
}

func (h *EmailHandlers) orderNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.mailer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_unavailable", "email delivery unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxEmailBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req orderNotificationRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	subject, ok := orderNotificationSubjects[kind]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "kind must be one of ready, claimed, cancelled, refunded", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	recipient := strings.TrimSpace(order.BuyerEmail)
	if recipient == "" {
		httpx.WriteError(ctx, w, httpx.NewError("no_recipient", "order has no buyer email", http.StatusUnprocessableEntity))
		return
	}

	text := fmt.Sprintf("Hi %s,\n\n%s.\n\nOrder reference: %s\nTotal: %.2f\n",
		strings.TrimSpace(order.BuyerName), subject, order.ReferenceNumber, order.TotalPrice)

	if err := h.mailer.Send(ctx, mail.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("%s (%s)", subject, order.ReferenceNumber),
		Text:    text,
	}); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_send_failed", "failed to deliver notification", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusAccepted, map[string]string{
		"status":   "sent",
		"order_id": order.ID,
		"kind":     kind,
	})
}
