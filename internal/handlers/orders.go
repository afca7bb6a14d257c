package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/services"
)

const maxOrderActionBodySize = 4 * 1024

type orderActionRequest struct {
	Remarks string `json:"remarks"`
}

type discountRequestBody struct {
	Requested bool `json:"requested"`
}

// OrderHandlers exposes the order lifecycle endpoints for organization staff.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleOrganization))
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/items", h.listOrderItems)
	r.Get("/{orderID}/timeline", h.orderTimeline)
	r.Post("/{orderID}:ready", h.toggleReady)
	r.Post("/{orderID}:paid", h.togglePaid)
	r.Post("/{orderID}:claimed", h.toggleClaimed)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
	r.Post("/{orderID}:discount", h.flagDiscount)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		OrganizationID: strings.TrimSpace(query.Get("organization_id")),
		BuyerID:        strings.TrimSpace(query.Get("buyer_id")),
		BuyerName:      strings.TrimSpace(query.Get("buyer_name")),
		Pagination:     pager,
	}
	for _, status := range parseFilterValues(query["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(status))
	}
	for _, status := range parseFilterValues(query["payment_status"]) {
		filter.PaymentStatus = append(filter.PaymentStatus, domain.PaymentStatus(status))
	}

	if raw := strings.TrimSpace(query.Get("ordered_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ordered_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("ordered_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ordered_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrderItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	items, err := h.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildOrderItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, orderItemsResponse{Items: payload})
}

func (h *OrderHandlers) orderTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	events, err := h.orders.Timeline(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]timelineEventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, timelineEventPayload{
			Status: event.Status,
			Label:  event.Label,
			Date:   formatTime(event.Date),
		})
	}
	writeJSONResponse(w, http.StatusOK, timelineResponse{Events: payload})
}

func (h *OrderHandlers) toggleReady(w http.ResponseWriter, r *http.Request) {
	h.runToggle(w, r, h.orders.MarkAsReady)
}

func (h *OrderHandlers) togglePaid(w http.ResponseWriter, r *http.Request) {
	h.runToggle(w, r, h.orders.MarkAsPaid)
}

func (h *OrderHandlers) toggleClaimed(w http.ResponseWriter, r *http.Request) {
	h.runToggle(w, r, h.orders.MarkAsClaimed)
}

func (h *OrderHandlers) runToggle(w http.ResponseWriter, r *http.Request, toggle func(context.Context, services.OrderToggleCommand) (services.Order, error)) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := toggle(ctx, services.OrderToggleCommand{
		OrderID: orderID,
		ActorID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, req, ok := h.readAction(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: strings.TrimSpace(identity.UID),
		Remarks: strings.TrimSpace(req.Remarks),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, req, ok := h.readAction(w, r)
	if !ok {
		return
	}

	order, err := h.orders.MarkAsRefunded(ctx, services.RefundOrderCommand{
		OrderID: orderID,
		ActorID: strings.TrimSpace(identity.UID),
		Remarks: strings.TrimSpace(req.Remarks),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) flagDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderActionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req discountRequestBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.FlagDiscountRequest(ctx, services.DiscountRequestCommand{
		OrderID:   orderID,
		ActorID:   strings.TrimSpace(identity.UID),
		Requested: req.Requested,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) readAction(w http.ResponseWriter, r *http.Request) (*auth.Identity, string, orderActionRequest, bool) {
	ctx := r.Context()
	var req orderActionRequest

	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, "", req, false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, "", req, false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return nil, "", req, false
	}

	body, err := readLimitedBody(r, maxOrderActionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return nil, "", req, false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return nil, "", req, false
		}
	}

	return identity, orderID, req, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID              string  `json:"id"`
	ReferenceNumber string  `json:"reference_number"`
	BuyerName       string  `json:"buyer_name"`
	OrderStatus     string  `json:"order_status"`
	PaymentStatus   string  `json:"payment_status"`
	TotalPrice      float64 `json:"total_price"`
	DateOrdered     string  `json:"date_ordered"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderItemsResponse struct {
	Items []orderItemPayload `json:"items"`
}

type timelineResponse struct {
	Events []timelineEventPayload `json:"events"`
}

type timelineEventPayload struct {
	Status string `json:"status"`
	Label  string `json:"label"`
	Date   string `json:"date"`
}

type orderPayload struct {
	ID                     string                `json:"id"`
	ReferenceNumber        string                `json:"reference_number"`
	BuyerID                string                `json:"buyer_id,omitempty"`
	BuyerName              string                `json:"buyer_name"`
	BuyerEmail             string                `json:"buyer_email,omitempty"`
	OrganizationID         string                `json:"organization_id"`
	OrganizationName       string                `json:"organization_name,omitempty"`
	OrderStatus            string                `json:"order_status"`
	PaymentStatus          string                `json:"payment_status"`
	TotalPrice             float64               `json:"total_price"`
	CommissionRate         float64               `json:"commission_rate"`
	CommissionAmount       float64               `json:"commission_amount"`
	Remarks                string                `json:"remarks,omitempty"`
	IsRequestedForDiscount bool                  `json:"is_requested_for_discount,omitempty"`
	DiscountValue          float64               `json:"discount_value,omitempty"`
	StatusHistory          []statusChangePayload `json:"status_history,omitempty"`
	DateOrdered            string                `json:"date_ordered"`
	DateReady              string                `json:"date_ready,omitempty"`
	DatePaid               string                `json:"date_paid,omitempty"`
	DateCompleted          string                `json:"date_completed,omitempty"`
	DateCancelled          string                `json:"date_cancelled,omitempty"`
	DateRefunded           string                `json:"date_refunded,omitempty"`
	ReceivedDate           string                `json:"received_date,omitempty"`
	CreatedAt              string                `json:"created_at"`
	UpdatedAt              string                `json:"updated_at,omitempty"`
}

type statusChangePayload struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
	Date           string `json:"date"`
}

type orderItemPayload struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	VariationID     string  `json:"variation_id"`
	VariationName   string  `json:"variation_name,omitempty"`
	IsPreOrder      bool    `json:"is_pre_order"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	DiscountedPrice float64 `json:"discounted_price,omitempty"`
	TotalPrice      float64 `json:"total_price"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:              strings.TrimSpace(order.ID),
		ReferenceNumber: strings.TrimSpace(order.ReferenceNumber),
		BuyerName:       strings.TrimSpace(order.BuyerName),
		OrderStatus:     string(order.OrderStatus),
		PaymentStatus:   string(order.PaymentStatus),
		TotalPrice:      order.TotalPrice,
		DateOrdered:     formatTime(order.DateOrdered),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                     strings.TrimSpace(order.ID),
		ReferenceNumber:        strings.TrimSpace(order.ReferenceNumber),
		BuyerID:                strings.TrimSpace(order.BuyerID),
		BuyerName:              strings.TrimSpace(order.BuyerName),
		BuyerEmail:             strings.TrimSpace(order.BuyerEmail),
		OrganizationID:         strings.TrimSpace(order.OrganizationID),
		OrganizationName:       strings.TrimSpace(order.OrganizationName),
		OrderStatus:            string(order.OrderStatus),
		PaymentStatus:          string(order.PaymentStatus),
		TotalPrice:             order.TotalPrice,
		CommissionRate:         order.CommissionRate,
		CommissionAmount:       order.CommissionAmount,
		Remarks:                strings.TrimSpace(order.Remarks),
		IsRequestedForDiscount: order.IsRequestedForDiscount,
		DiscountValue:          order.DiscountValue,
		DateOrdered:            formatTime(order.DateOrdered),
		DateReady:              formatTime(pointerTime(order.DateReady)),
		DatePaid:               formatTime(pointerTime(order.DatePaid)),
		DateCompleted:          formatTime(pointerTime(order.DateCompleted)),
		DateCancelled:          formatTime(pointerTime(order.DateCancelled)),
		DateRefunded:           formatTime(pointerTime(order.DateRefunded)),
		ReceivedDate:           formatTime(pointerTime(order.ReceivedDate)),
		CreatedAt:              formatTime(order.CreatedAt),
		UpdatedAt:              formatTime(order.UpdatedAt),
	}

	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusChangePayload{
			Status:         entry.Status,
			PreviousStatus: entry.PreviousStatus,
			Remarks:        strings.TrimSpace(entry.Remarks),
			Date:           formatTime(entry.Date),
		})
	}

	return payload
}

func buildOrderItemPayload(item services.OrderItem) orderItemPayload {
	return orderItemPayload{
		ID:              strings.TrimSpace(item.ID),
		ProductID:       strings.TrimSpace(item.ProductID),
		VariationID:     strings.TrimSpace(item.VariationID),
		VariationName:   strings.TrimSpace(item.VariationName),
		IsPreOrder:      item.IsPreOrder,
		Quantity:        item.Quantity,
		Price:           item.Price,
		DiscountedPrice: item.DiscountedPrice,
		TotalPrice:      item.TotalPrice,
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
