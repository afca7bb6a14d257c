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

type stubAccountService struct {
	createFn  func(context.Context, services.CreateAccountCommand) (services.Account, error)
	getFn     func(context.Context, string) (services.Account, error)
	listFn    func(context.Context, services.AccountListFilter) (domain.CursorPage[services.Account], error)
	disableFn func(context.Context, services.SetAccountDisabledCommand) (services.Account, error)
	archiveFn func(context.Context, services.SetAccountArchivedCommand) (services.Account, error)
	deleteFn  func(context.Context, services.DeleteAccountCommand) error
	resetFn   func(context.Context, services.PasswordResetCommand) error
}

func (s *stubAccountService) CreateAccount(ctx context.Context, cmd services.CreateAccountCommand) (services.Account, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) GetAccount(ctx context.Context, accountID string) (services.Account, error) {
	if s.getFn != nil {
		return s.getFn(ctx, accountID)
	}
	return services.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) ListAccounts(ctx context.Context, filter services.AccountListFilter) (domain.CursorPage[services.Account], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Account]{}, nil
}

func (s *stubAccountService) SetDisabled(ctx context.Context, cmd services.SetAccountDisabledCommand) (services.Account, error) {
	if s.disableFn != nil {
		return s.disableFn(ctx, cmd)
	}
	return services.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) SetArchived(ctx context.Context, cmd services.SetAccountArchivedCommand) (services.Account, error) {
	if s.archiveFn != nil {
		return s.archiveFn(ctx, cmd)
	}
	return services.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) DeleteAccount(ctx context.Context, cmd services.DeleteAccountCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubAccountService) SendPasswordReset(ctx context.Context, cmd services.PasswordResetCommand) error {
	if s.resetFn != nil {
		return s.resetFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func newAccountRouter(service services.AccountService) chi.Router {
	handler := NewAccountHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/accounts", handler.Routes)
	return router
}

func TestAccountHandlersCreateAccount(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	var captured services.CreateAccountCommand
	service := &stubAccountService{
		createFn: func(ctx context.Context, cmd services.CreateAccountCommand) (services.Account, error) {
			captured = cmd
			return services.Account{
				ID:             "uid-42",
				Email:          cmd.Email,
				DisplayName:    cmd.DisplayName,
				Role:           cmd.Role,
				OrganizationID: cmd.OrganizationID,
				CreatedAt:      now,
			}, nil
		},
	}

	body := bytes.NewBufferString(`{
		"email": "staff@example.com",
		"password": "s3cret-pass",
		"display_name": "Org Staff",
		"role": "organization",
		"organization_id": "org-1"
	}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/accounts/", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newAccountRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Role != domain.AccountRoleOrganization || captured.OrganizationID != "org-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor from identity, got %s", captured.ActorID)
	}

	var resp accountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Account.ID != "uid-42" {
		t.Fatalf("unexpected account payload: %#v", resp.Account)
	}
}

func TestAccountHandlersCreateAccountConflict(t *testing.T) {
	service := &stubAccountService{
		createFn: func(ctx context.Context, cmd services.CreateAccountCommand) (services.Account, error) {
			return services.Account{}, fmt.Errorf("%w: email already registered", services.ErrAccountConflict)
		},
	}

	body := bytes.NewBufferString(`{"email":"dup@example.com","password":"s3cret-pass","display_name":"Dup","role":"admin"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/accounts/", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newAccountRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAccountHandlersSetDisabled(t *testing.T) {
	var captured services.SetAccountDisabledCommand
	service := &stubAccountService{
		disableFn: func(ctx context.Context, cmd services.SetAccountDisabledCommand) (services.Account, error) {
			captured = cmd
			return services.Account{ID: cmd.AccountID, Disabled: cmd.Disabled}, nil
		},
	}

	body := bytes.NewBufferString(`{"disabled":true}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/accounts/uid-1:disable", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newAccountRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AccountID != "uid-1" || !captured.Disabled {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestAccountHandlersDeleteAccount(t *testing.T) {
	var deleted string
	service := &stubAccountService{
		deleteFn: func(ctx context.Context, cmd services.DeleteAccountCommand) error {
			deleted = cmd.AccountID
			return nil
		},
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodDelete, "/accounts/uid-1", nil), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newAccountRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "uid-1" {
		t.Fatalf("expected uid-1 deleted, got %s", deleted)
	}
}

func TestAccountHandlersPasswordReset(t *testing.T) {
	var captured services.PasswordResetCommand
	service := &stubAccountService{
		resetFn: func(ctx context.Context, cmd services.PasswordResetCommand) error {
			captured = cmd
			return nil
		},
	}

	body := bytes.NewBufferString(`{"email":"staff@example.com"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/accounts/password-reset", body), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newAccountRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Email != "staff@example.com" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}
