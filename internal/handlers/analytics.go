package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/services"
)

// AnalyticsHandlers exposes read-only sales aggregates.
type AnalyticsHandlers struct {
	authn     *auth.Authenticator
	analytics services.AnalyticsService
}

// NewAnalyticsHandlers constructs a new AnalyticsHandlers instance.
func NewAnalyticsHandlers(authn *auth.Authenticator, analytics services.AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		authn:     authn,
		analytics: analytics,
	}
}

// Routes registers the /analytics endpoints.
func (h *AnalyticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleOrganization))
	}
	r.Get("/product-sales", h.productSales)
	r.Get("/order-stats", h.orderStats)
	r.Get("/sales-over-time", h.salesOverTime)
	r.Get("/preorder-comparison", h.preOrderComparison)
}

func (h *AnalyticsHandlers) productSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	sales, err := h.analytics.ProductSales(ctx, query)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]productSalesPayload, 0, len(sales))
	for _, entry := range sales {
		items = append(items, productSalesPayload{
			ProductID:   entry.ProductID,
			ProductName: entry.ProductName,
			Quantity:    entry.Quantity,
			Revenue:     entry.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, productSalesResponse{Items: items})
}

func (h *AnalyticsHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	stats, err := h.analytics.OrderStats(ctx, query)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderStatsPayload{
		TotalOrders:     stats.TotalOrders,
		PendingOrders:   stats.PendingOrders,
		ReadyOrders:     stats.ReadyOrders,
		CompletedOrders: stats.CompletedOrders,
		CancelledOrders: stats.CancelledOrders,
		PaidOrders:      stats.PaidOrders,
		UnpaidOrders:    stats.UnpaidOrders,
		RefundedOrders:  stats.RefundedOrders,
		TotalRevenue:    stats.TotalRevenue,
		PaidRevenue:     stats.PaidRevenue,
	})
}

func (h *AnalyticsHandlers) salesOverTime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	urlQuery := r.URL.Query()
	orgID := strings.TrimSpace(urlQuery.Get("organization_id"))
	if orgID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "organization_id is required", http.StatusBadRequest))
		return
	}

	buckets, err := h.analytics.SalesOverTime(ctx, services.SalesOverTimeQuery{
		OrganizationID: orgID,
		Range:          domain.SalesRange(strings.TrimSpace(urlQuery.Get("range"))),
	})
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]salesBucketPayload, 0, len(buckets))
	for _, bucket := range buckets {
		items = append(items, salesBucketPayload{
			Date:    bucket.Date.UTC().Format("2006-01-02"),
			Count:   bucket.Count,
			Revenue: bucket.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, salesOverTimeResponse{Items: items})
}

func (h *AnalyticsHandlers) preOrderComparison(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	comparison, err := h.analytics.PreOrderComparison(ctx, query)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, preOrderComparisonPayload{
		PreOrderQuantity: comparison.PreOrderQuantity,
		PreOrderRevenue:  comparison.PreOrderRevenue,
		DirectQuantity:   comparison.DirectQuantity,
		DirectRevenue:    comparison.DirectRevenue,
	})
}

func (h *AnalyticsHandlers) parseQuery(w http.ResponseWriter, r *http.Request) (services.AnalyticsQuery, bool) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return services.AnalyticsQuery{}, false
	}

	urlQuery := r.URL.Query()
	query := services.AnalyticsQuery{
		OrganizationID: strings.TrimSpace(urlQuery.Get("organization_id")),
	}
	if query.OrganizationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "organization_id is required", http.StatusBadRequest))
		return services.AnalyticsQuery{}, false
	}

	from, ok := parseOptionalTime(ctx, w, urlQuery, "from")
	if !ok {
		return services.AnalyticsQuery{}, false
	}
	query.From = from

	to, ok := parseOptionalTime(ctx, w, urlQuery, "to")
	if !ok {
		return services.AnalyticsQuery{}, false
	}
	query.To = to

	return query, true
}

func parseOptionalTime(ctx context.Context, w http.ResponseWriter, query url.Values, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return nil, true
	}
	ts, err := parseTimeParam(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", key+" must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return nil, false
	}
	return &ts, true
}

type productSalesResponse struct {
	Items []productSalesPayload `json:"items"`
}

type productSalesPayload struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity"`
	Revenue     float64 `json:"revenue"`
}

type orderStatsPayload struct {
	TotalOrders     int     `json:"total_orders"`
	PendingOrders   int     `json:"pending_orders"`
	ReadyOrders     int     `json:"ready_orders"`
	CompletedOrders int     `json:"completed_orders"`
	CancelledOrders int     `json:"cancelled_orders"`
	PaidOrders      int     `json:"paid_orders"`
	UnpaidOrders    int     `json:"unpaid_orders"`
	RefundedOrders  int     `json:"refunded_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
	PaidRevenue     float64 `json:"paid_revenue"`
}

type salesOverTimeResponse struct {
	Items []salesBucketPayload `json:"items"`
}

type salesBucketPayload struct {
	Date    string  `json:"date"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

type preOrderComparisonPayload struct {
	PreOrderQuantity int     `json:"pre_order_quantity"`
	PreOrderRevenue  float64 `json:"pre_order_revenue"`
	DirectQuantity   int     `json:"direct_quantity"`
	DirectRevenue    float64 `json:"direct_revenue"`
}

func writeAnalyticsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAnalyticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("analytics_error", "failed to compute analytics", http.StatusInternalServerError))
	}
}
