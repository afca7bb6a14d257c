package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/services"
)

const (
	maxCheckoutRequestBody = 16 * 1024
	checkoutRateLimit      = 10
	checkoutRateWindow     = time.Minute
)

// CheckoutHandlers exposes the order placement endpoint.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  rateLimiter
}

// CheckoutOption customizes checkout handler construction.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimit overrides the per-minute submission cap.
func WithCheckoutRateLimit(perMinute int) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if perMinute > 0 {
			h.limiter = newSimpleRateLimiter(perMinute, checkoutRateWindow, time.Now)
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		limiter:  newSimpleRateLimiter(checkoutRateLimit, checkoutRateWindow, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleOrganization))
	}
	group.Post("/", h.placeOrder)
}

type placeOrderRequest struct {
	OrganizationID string             `json:"organization_id"`
	Buyer          checkoutBuyer      `json:"buyer"`
	Lines          []checkoutLineBody `json:"lines"`
	Remarks        string             `json:"remarks"`
}

type checkoutBuyer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type checkoutLineBody struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	VariationID   string `json:"variation_id"`
	VariationName string `json:"variation_name"`
	Quantity      int    `json:"quantity"`
	IsPreOrder    bool   `json:"is_pre_order"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req placeOrderRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]services.CheckoutLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.CheckoutLine{
			ProductID:     strings.TrimSpace(line.ProductID),
			ProductName:   strings.TrimSpace(line.ProductName),
			VariationID:   strings.TrimSpace(line.VariationID),
			VariationName: strings.TrimSpace(line.VariationName),
			Quantity:      line.Quantity,
			IsPreOrder:    line.IsPreOrder,
		})
	}

	cmd := services.PlaceOrderCommand{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		BuyerID:        strings.TrimSpace(req.Buyer.ID),
		BuyerName:      strings.TrimSpace(req.Buyer.Name),
		BuyerEmail:     strings.TrimSpace(req.Buyer.Email),
		Lines:          lines,
		Remarks:        strings.TrimSpace(req.Remarks),
		ActorID:        strings.TrimSpace(identity.UID),
	}

	order, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock to reserve items", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "stock has changed; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}
