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

const maxAccountBodySize = 8 * 1024

// AccountHandlers exposes staff and organization account management. All
// routes require the admin role.
type AccountHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
}

// NewAccountHandlers constructs a new AccountHandlers instance.
func NewAccountHandlers(authn *auth.Authenticator, accounts services.AccountService) *AccountHandlers {
	return &AccountHandlers{
		authn:    authn,
		accounts: accounts,
	}
}

// Routes registers the /accounts endpoints.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/", h.createAccount)
	r.Get("/", h.listAccounts)
	r.Get("/{accountID}", h.getAccount)
	r.Post("/{accountID}:disable", h.setDisabled)
	r.Post("/{accountID}:archive", h.setArchived)
	r.Delete("/{accountID}", h.deleteAccount)
	r.Post("/password-reset", h.passwordReset)
}

type createAccountRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	DisplayName    string `json:"display_name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

func (h *AccountHandlers) createAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, req, ok := decodeAccountBody[createAccountRequest](h, w, r, true)
	if !ok {
		return
	}

	account, err := h.accounts.CreateAccount(ctx, services.CreateAccountCommand{
		Email:          req.Email,
		Password:       req.Password,
		DisplayName:    req.DisplayName,
		Role:           domain.AccountRole(strings.TrimSpace(req.Role)),
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		ActorID:        strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AccountHandlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.AccountListFilter{
		OrganizationID:  strings.TrimSpace(query.Get("organization_id")),
		IncludeArchived: strings.EqualFold(strings.TrimSpace(query.Get("include_archived")), "true"),
		Pagination:      pager,
	}
	for _, role := range parseFilterValues(query["role"]) {
		filter.Role = append(filter.Role, domain.AccountRole(role))
	}

	page, err := h.accounts.ListAccounts(ctx, filter)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	items := make([]accountPayload, 0, len(page.Items))
	for _, account := range page.Items {
		items = append(items, buildAccountPayload(account))
	}
	writeJSONResponse(w, http.StatusOK, accountListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AccountHandlers) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(ctx, accountID)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

type setDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

func (h *AccountHandlers) setDisabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	identity, req, ok := decodeAccountBody[setDisabledRequest](h, w, r, true)
	if !ok {
		return
	}

	account, err := h.accounts.SetDisabled(ctx, services.SetAccountDisabledCommand{
		AccountID: accountID,
		Disabled:  req.Disabled,
		ActorID:   strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

type setArchivedRequest struct {
	Archived bool `json:"archived"`
}

func (h *AccountHandlers) setArchived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	identity, req, ok := decodeAccountBody[setArchivedRequest](h, w, r, true)
	if !ok {
		return
	}

	account, err := h.accounts.SetArchived(ctx, services.SetAccountArchivedCommand{
		AccountID: accountID,
		Archived:  req.Archived,
		ActorID:   strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AccountHandlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	identity, authed := auth.IdentityFromContext(ctx)
	if !authed || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if err := h.accounts.DeleteAccount(ctx, services.DeleteAccountCommand{
		AccountID: accountID,
		ActorID:   strings.TrimSpace(identity.UID),
	}); err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (h *AccountHandlers) passwordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, req, ok := decodeAccountBody[passwordResetRequest](h, w, r, true)
	if !ok {
		return
	}

	err := h.accounts.SendPasswordReset(ctx, services.PasswordResetCommand{
		Email:   req.Email,
		ActorID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *AccountHandlers) requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account id is required", http.StatusBadRequest))
		return "", false
	}
	return accountID, true
}

func decodeAccountBody[T any](h *AccountHandlers, w http.ResponseWriter, r *http.Request, required bool) (*auth.Identity, T, bool) {
	ctx := r.Context()
	var req T

	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return nil, req, false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, req, false
	}

	body, err := readLimitedBody(r, maxAccountBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return nil, req, false
	}
	if len(body) == 0 {
		if required {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
			return nil, req, false
		}
		return identity, req, true
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return nil, req, false
	}
	return identity, req, true
}

type accountListResponse struct {
	Items         []accountPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type accountResponse struct {
	Account accountPayload `json:"account"`
}

type accountPayload struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
	Disabled       bool   `json:"disabled"`
	Archived       bool   `json:"archived"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

func buildAccountPayload(account services.Account) accountPayload {
	return accountPayload{
		ID:             account.ID,
		Email:          account.Email,
		DisplayName:    account.DisplayName,
		Role:           string(account.Role),
		OrganizationID: account.OrganizationID,
		Disabled:       account.Disabled,
		Archived:       account.Archived,
		CreatedAt:      formatTime(account.CreatedAt),
		UpdatedAt:      formatTime(account.UpdatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAccountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("account_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("account_error", "failed to process account request", http.StatusInternalServerError))
	}
}
