package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/unimerch/api/internal/domain"
	pfirestore "github.com/unimerch/api/internal/platform/firestore"
	"github.com/unimerch/api/internal/repositories"
)

const accountsCollection = "accounts"

// AccountRepository implements repositories.AccountRepository backed by Firestore.
// Account documents are keyed by the Firebase UID.
type AccountRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.BaseRepository[accountDocument]
}

// NewAccountRepository constructs a Firestore-backed account repository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[accountDocument](provider, accountsCollection, nil, nil)
	return &AccountRepository{provider: provider, accounts: base}, nil
}

// Insert creates the account document.
func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) error {
	if r == nil || r.provider == nil {
		return errors.New("account repository not initialised")
	}
	if strings.TrimSpace(account.ID) == "" {
		return errors.New("account insert: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("accounts.insert", err)
	}
	_, err = client.Collection(accountsCollection).Doc(account.ID).Create(ctx, newAccountDocument(account))
	if err != nil {
		return pfirestore.WrapError("accounts.insert", err)
	}
	return nil
}

// Update replaces the account document.
func (r *AccountRepository) Update(ctx context.Context, account domain.Account) error {
	if r == nil || r.accounts == nil {
		return errors.New("account repository not initialised")
	}
	if strings.TrimSpace(account.ID) == "" {
		return errors.New("account update: id is required")
	}
	_, err := r.accounts.Set(ctx, account.ID, newAccountDocument(account))
	return err
}

// Delete removes the account document.
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	if r == nil || r.provider == nil {
		return errors.New("account repository not initialised")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return errors.New("account delete: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("accounts.delete", err)
	}
	if _, err := client.Collection(accountsCollection).Doc(accountID).Delete(ctx); err != nil {
		return pfirestore.WrapError("accounts.delete", err)
	}
	return nil
}

// FindByID fetches a single account.
func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	if r == nil || r.accounts == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, errors.New("account find: id is required")
	}
	doc, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail locates an account by its unique email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	if r == nil || r.accounts == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Account{}, errors.New("account find by email: email is required")
	}

	docs, err := r.accounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Account{}, err
	}
	if len(docs) == 0 {
		return domain.Account{}, pfirestore.NotFoundError("accounts.findByEmail", fmt.Sprintf("account with email %s not found", email))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List pages through accounts matching the filter.
func (r *AccountRepository) List(ctx context.Context, filter repositories.AccountListFilter) (domain.CursorPage[domain.Account], error) {
	if r == nil || r.accounts == nil {
		return domain.CursorPage[domain.Account]{}, errors.New("account repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	docs, err := r.accounts.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Role) == 1 {
			q = q.Where("role", "==", string(filter.Role[0]))
		} else if len(filter.Role) > 1 {
			values := make([]string, len(filter.Role))
			for i, role := range filter.Role {
				values[i] = string(role)
			}
			q = q.Where("role", "in", values)
		}
		if org := strings.TrimSpace(filter.OrganizationID); org != "" {
			q = q.Where("organizationId", "==", org)
		}
		if !filter.IncludeArchived {
			q = q.Where("archived", "==", false)
		}
		q = q.OrderBy("email", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)
		if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
			var cursor accountPageToken
			if err := decodeJSONPageToken(token, &cursor); err == nil {
				q = q.StartAfter(cursor.Email, cursor.ID)
			}
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Account]{}, err
	}

	accounts := make([]domain.Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(accounts) > pageSize
	if hasMore {
		accounts = accounts[:pageSize]
	}
	var nextToken string
	if hasMore && len(accounts) > 0 {
		last := accounts[len(accounts)-1]
		encoded, err := encodeJSONPageToken(accountPageToken{ID: last.ID, Email: last.Email})
		if err != nil {
			return domain.CursorPage[domain.Account]{}, pfirestore.WrapError("accounts.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Account]{Items: accounts, NextPageToken: nextToken}, nil
}

// Document mapping ----------------------------------------------------------

type accountDocument struct {
	Email          string    `firestore:"email"`
	DisplayName    string    `firestore:"displayName,omitempty"`
	Role           string    `firestore:"role"`
	OrganizationID string    `firestore:"organizationId,omitempty"`
	Disabled       bool      `firestore:"disabled"`
	Archived       bool      `firestore:"archived"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newAccountDocument(account domain.Account) accountDocument {
	return accountDocument{
		Email:          strings.ToLower(strings.TrimSpace(account.Email)),
		DisplayName:    strings.TrimSpace(account.DisplayName),
		Role:           string(account.Role),
		OrganizationID: strings.TrimSpace(account.OrganizationID),
		Disabled:       account.Disabled,
		Archived:       account.Archived,
		CreatedAt:      account.CreatedAt.UTC(),
		UpdatedAt:      account.UpdatedAt.UTC(),
	}
}

func (d accountDocument) toDomain(id string) domain.Account {
	return domain.Account{
		ID:             id,
		Email:          d.Email,
		DisplayName:    d.DisplayName,
		Role:           domain.AccountRole(d.Role),
		OrganizationID: d.OrganizationID,
		Disabled:       d.Disabled,
		Archived:       d.Archived,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type accountPageToken struct {
	ID    string
	Email string
}
