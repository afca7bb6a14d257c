package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/mail"
	"github.com/unimerch/api/internal/repositories"
)

const accountMinPasswordLength = 8

var (
	// ErrAccountInvalidInput indicates the request parameters are malformed.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the email already has an account.
	ErrAccountConflict = errors.New("account: conflict")
)

// IdentityAdmin provisions and retires sign-in identities at the identity
// provider. Account documents mirror these identities by UID.
type IdentityAdmin interface {
	CreateUser(ctx context.Context, email, password, displayName string) (string, error)
	SetDisabled(ctx context.Context, uid string, disabled bool) error
	DeleteUser(ctx context.Context, uid string) error
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

// AccountServiceDeps bundles collaborators for the account service.
type AccountServiceDeps struct {
	Accounts repositories.AccountRepository
	Identity IdentityAdmin
	Mailer   mail.Sender
	Audit    AuditLogService
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	accounts repositories.AccountRepository
	identity IdentityAdmin
	mailer   mail.Sender
	audit    AuditLogService
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewAccountService wires dependencies into a concrete AccountService.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("account service: identity admin is required")
	}

	mailer := deps.Mailer
	if mailer == nil {
		mailer = mail.NopSender{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &accountService{
		accounts: deps.Accounts,
		identity: deps.Identity,
		mailer:   mailer,
		audit:    deps.Audit,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateAccount provisions the sign-in identity first and mirrors it into the
// account collection under the provider UID. The identity is rolled back when
// the document write fails.
func (s *accountService) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (Account, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	displayName := strings.TrimSpace(cmd.DisplayName)
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, fmt.Errorf("%w: a valid email is required", ErrAccountInvalidInput)
	}
	if len(cmd.Password) < accountMinPasswordLength {
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrAccountInvalidInput, accountMinPasswordLength)
	}
	if displayName == "" {
		return Account{}, fmt.Errorf("%w: display name is required", ErrAccountInvalidInput)
	}
	switch cmd.Role {
	case domain.AccountRoleAdmin:
	case domain.AccountRoleOrganization:
		if strings.TrimSpace(cmd.OrganizationID) == "" {
			return Account{}, fmt.Errorf("%w: organization accounts require an organization id", ErrAccountInvalidInput)
		}
	default:
		return Account{}, fmt.Errorf("%w: unsupported role %q", ErrAccountInvalidInput, cmd.Role)
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return Account{}, fmt.Errorf("%w: email %s already registered", ErrAccountConflict, email)
	} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrAccountNotFound) {
		return Account{}, mapped
	}

	uid, err := s.identity.CreateUser(ctx, email, cmd.Password, displayName)
	if err != nil {
		return Account{}, fmt.Errorf("account: provision identity: %w", err)
	}

	now := s.clock()
	account := Account{
		ID:             uid,
		Email:          email,
		DisplayName:    displayName,
		Role:           cmd.Role,
		OrganizationID: strings.TrimSpace(cmd.OrganizationID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.accounts.Insert(ctx, account); err != nil {
		if rollbackErr := s.identity.DeleteUser(ctx, uid); rollbackErr != nil {
			s.logger(ctx, "account.identity.rollback.failed", map[string]any{
				"uid":   uid,
				"error": rollbackErr.Error(),
			})
		}
		return Account{}, s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, "account.created", account.ID, map[string]any{
		"email": email,
		"role":  string(cmd.Role),
	}, now)
	return account, nil
}

func (s *accountService) GetAccount(ctx context.Context, accountID string) (Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrAccountInvalidInput)
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return Account{}, s.mapRepositoryError(err)
	}
	return account, nil
}

func (s *accountService) ListAccounts(ctx context.Context, filter AccountListFilter) (domain.CursorPage[Account], error) {
	page, err := s.accounts.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Account]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// SetDisabled flips the sign-in block at the identity provider and mirrors the
// flag on the account document.
func (s *accountService) SetDisabled(ctx context.Context, cmd SetAccountDisabledCommand) (Account, error) {
	account, err := s.GetAccount(ctx, cmd.AccountID)
	if err != nil {
		return Account{}, err
	}
	if account.Disabled == cmd.Disabled {
		return account, nil
	}

	if err := s.identity.SetDisabled(ctx, account.ID, cmd.Disabled); err != nil {
		return Account{}, fmt.Errorf("account: update identity: %w", err)
	}

	now := s.clock()
	account.Disabled = cmd.Disabled
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return Account{}, s.mapRepositoryError(err)
	}

	action := "account.disabled"
	if !cmd.Disabled {
		action = "account.enabled"
	}
	s.recordAudit(ctx, cmd.ActorID, action, account.ID, nil, now)
	return account, nil
}

// SetArchived hides the account from default listings without touching the
// identity provider.
func (s *accountService) SetArchived(ctx context.Context, cmd SetAccountArchivedCommand) (Account, error) {
	account, err := s.GetAccount(ctx, cmd.AccountID)
	if err != nil {
		return Account{}, err
	}
	if account.Archived == cmd.Archived {
		return account, nil
	}

	now := s.clock()
	account.Archived = cmd.Archived
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return Account{}, s.mapRepositoryError(err)
	}

	action := "account.archived"
	if !cmd.Archived {
		action = "account.unarchived"
	}
	s.recordAudit(ctx, cmd.ActorID, action, account.ID, nil, now)
	return account, nil
}

// DeleteAccount removes both the identity and the account document.
func (s *accountService) DeleteAccount(ctx context.Context, cmd DeleteAccountCommand) error {
	account, err := s.GetAccount(ctx, cmd.AccountID)
	if err != nil {
		return err
	}

	if err := s.identity.DeleteUser(ctx, account.ID); err != nil {
		return fmt.Errorf("account: delete identity: %w", err)
	}
	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, "account.deleted", account.ID, map[string]any{
		"email": account.Email,
	}, s.clock())
	return nil
}

// SendPasswordReset emails a reset link to the account's address. Unknown
// emails return ErrAccountNotFound so handlers can decide what to disclose.
func (s *accountService) SendPasswordReset(ctx context.Context, cmd PasswordResetCommand) error {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrAccountInvalidInput)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	link, err := s.identity.PasswordResetLink(ctx, email)
	if err != nil {
		return fmt.Errorf("account: generate reset link: %w", err)
	}

	err = s.mailer.Send(ctx, mail.Message{
		To:      []string{email},
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Hi %s,\n\nUse the link below to reset your password:\n%s\n", account.DisplayName, link),
	})
	if err != nil {
		return fmt.Errorf("account: send reset email: %w", err)
	}

	s.recordAudit(ctx, cmd.ActorID, "account.password_reset_sent", account.ID, nil, s.clock())
	return nil
}

func (s *accountService) recordAudit(ctx context.Context, actorID, action, targetRef string, metadata map[string]any, now time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actorID,
		ActorType:  "account",
		Action:     action,
		TargetRef:  "accounts/" + targetRef,
		OccurredAt: now,
		Metadata:   metadata,
	})
}

func (s *accountService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAccountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("account: repository unavailable: %w", err)
		}
	}

	return err
}
