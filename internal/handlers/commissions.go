package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/services"
)

const maxCommissionBodySize = 4 * 1024

// CommissionHandlers exposes commission settlement endpoints under /organizations.
type CommissionHandlers struct {
	authn       *auth.Authenticator
	commissions services.CommissionService
}

// NewCommissionHandlers constructs a new CommissionHandlers instance.
func NewCommissionHandlers(authn *auth.Authenticator, commissions services.CommissionService) *CommissionHandlers {
	return &CommissionHandlers{
		authn:       authn,
		commissions: commissions,
	}
}

// Routes registers the commission endpoints.
func (h *CommissionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleOrganization))
	}
	r.Get("/{organizationID}/commission-summary", h.summary)
	r.Get("/{organizationID}/commission-payments", h.listPayments)
	r.With(adminOnly(h.authn)).Post("/{organizationID}/commission-payments", h.recordPayment)
}

// adminOnly restricts a route to admin identities. The group-level auth
// middleware has already run, so this only checks roles.
func adminOnly(authn *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok || !identity.HasRole(auth.RoleAdmin) {
				httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "admin role required", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type recordPaymentRequest struct {
	Amount  float64 `json:"amount"`
	Method  string  `json:"method"`
	Remarks string  `json:"remarks"`
}

func (h *CommissionHandlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.requireOrganizationID(w, r)
	if !ok {
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCommissionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req recordPaymentRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	payment, org, err := h.commissions.RecordPayment(ctx, services.RecordCommissionPaymentCommand{
		OrganizationID: orgID,
		Amount:         req.Amount,
		Method:         strings.TrimSpace(req.Method),
		Remarks:        strings.TrimSpace(req.Remarks),
		RecordedBy:     strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeCommissionError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, recordPaymentResponse{
		Payment: buildCommissionPaymentPayload(payment),
		Organization: organizationBalancePayload{
			ID:        org.ID,
			TotalDue:  org.TotalDue,
			TotalPaid: org.TotalPaid,
		},
	})
}

func (h *CommissionHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.requireOrganizationID(w, r)
	if !ok {
		return
	}

	summary, err := h.commissions.Summary(ctx, orgID)
	if err != nil {
		writeCommissionError(ctx, w, err)
		return
	}

	payments := make([]commissionPaymentPayload, 0, len(summary.Payments))
	for _, payment := range summary.Payments {
		payments = append(payments, buildCommissionPaymentPayload(payment))
	}
	writeJSONResponse(w, http.StatusOK, commissionSummaryPayload{
		OrganizationID: summary.OrganizationID,
		TotalDue:       summary.TotalDue,
		TotalPaid:      summary.TotalPaid,
		PaidOrders:     summary.PaidOrders,
		UnpaidOrders:   summary.UnpaidOrders,
		Payments:       payments,
	})
}

func (h *CommissionHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.requireOrganizationID(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.commissions.ListPayments(ctx, orgID, pager)
	if err != nil {
		writeCommissionError(ctx, w, err)
		return
	}

	items := make([]commissionPaymentPayload, 0, len(page.Items))
	for _, payment := range page.Items {
		items = append(items, buildCommissionPaymentPayload(payment))
	}
	writeJSONResponse(w, http.StatusOK, commissionPaymentListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CommissionHandlers) requireOrganizationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.commissions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("commission_service_unavailable", "commission service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	orgID := strings.TrimSpace(chi.URLParam(r, "organizationID"))
	if orgID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "organization id is required", http.StatusBadRequest))
		return "", false
	}
	return orgID, true
}

type recordPaymentResponse struct {
	Payment      commissionPaymentPayload   `json:"payment"`
	Organization organizationBalancePayload `json:"organization"`
}

type organizationBalancePayload struct {
	ID        string  `json:"id"`
	TotalDue  float64 `json:"total_due"`
	TotalPaid float64 `json:"total_paid"`
}

type commissionSummaryPayload struct {
	OrganizationID string                     `json:"organization_id"`
	TotalDue       float64                    `json:"total_due"`
	TotalPaid      float64                    `json:"total_paid"`
	PaidOrders     int                        `json:"paid_orders"`
	UnpaidOrders   int                        `json:"unpaid_orders"`
	Payments       []commissionPaymentPayload `json:"payments"`
}

type commissionPaymentListResponse struct {
	Items         []commissionPaymentPayload `json:"items"`
	NextPageToken string                     `json:"next_page_token,omitempty"`
}

type commissionPaymentPayload struct {
	ID               string  `json:"id"`
	OrganizationID   string  `json:"organization_id"`
	Amount           float64 `json:"amount"`
	RemainingBalance float64 `json:"remaining_balance"`
	Method           string  `json:"method,omitempty"`
	Remarks          string  `json:"remarks,omitempty"`
	Status           string  `json:"status"`
	RecordedBy       string  `json:"recorded_by,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func buildCommissionPaymentPayload(payment services.CommissionPayment) commissionPaymentPayload {
	return commissionPaymentPayload{
		ID:               payment.ID,
		OrganizationID:   payment.OrganizationID,
		Amount:           payment.Amount,
		RemainingBalance: payment.RemainingBalance,
		Method:           strings.TrimSpace(payment.Method),
		Remarks:          strings.TrimSpace(payment.Remarks),
		Status:           string(payment.Status),
		RecordedBy:       strings.TrimSpace(payment.RecordedBy),
		CreatedAt:        formatTime(payment.CreatedAt),
	}
}

func writeCommissionError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCommissionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCommissionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("organization_not_found", "organization not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCommissionExceedsBalance):
		httpx.WriteError(ctx, w, httpx.NewError("exceeds_balance", "payment amount exceeds unpaid balance", http.StatusConflict))
	case errors.Is(err, services.ErrCommissionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("commission_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("commission_error", "failed to process commission request", http.StatusInternalServerError))
	}
}
