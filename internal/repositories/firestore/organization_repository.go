package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/unimerch/api/internal/domain"
	pfirestore "github.com/unimerch/api/internal/platform/firestore"
)

const organizationsCollection = "organizations"

// OrganizationRepository implements repositories.OrganizationRepository backed
// by Firestore.
type OrganizationRepository struct {
	provider *pfirestore.Provider
	orgs     *pfirestore.BaseRepository[organizationDocument]
}

// NewOrganizationRepository constructs a Firestore-backed organization repository.
func NewOrganizationRepository(provider *pfirestore.Provider) (*OrganizationRepository, error) {
	if provider == nil {
		return nil, errors.New("organization repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[organizationDocument](provider, organizationsCollection, nil, nil)
	return &OrganizationRepository{provider: provider, orgs: base}, nil
}

// Insert creates the organization document.
func (r *OrganizationRepository) Insert(ctx context.Context, org domain.Organization) error {
	if r == nil || r.provider == nil {
		return errors.New("organization repository not initialised")
	}
	if strings.TrimSpace(org.ID) == "" {
		return errors.New("organization insert: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("organizations.insert", err)
	}
	_, err = client.Collection(organizationsCollection).Doc(org.ID).Create(ctx, newOrganizationDocument(org))
	if err != nil {
		return pfirestore.WrapError("organizations.insert", err)
	}
	return nil
}

// Update replaces the organization document.
func (r *OrganizationRepository) Update(ctx context.Context, org domain.Organization) error {
	if r == nil || r.orgs == nil {
		return errors.New("organization repository not initialised")
	}
	if strings.TrimSpace(org.ID) == "" {
		return errors.New("organization update: id is required")
	}
	_, err := r.orgs.Set(ctx, org.ID, newOrganizationDocument(org))
	return err
}

// FindByID fetches a single organization.
func (r *OrganizationRepository) FindByID(ctx context.Context, organizationID string) (domain.Organization, error) {
	if r == nil || r.orgs == nil {
		return domain.Organization{}, errors.New("organization repository not initialised")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return domain.Organization{}, errors.New("organization find: id is required")
	}
	doc, err := r.orgs.Get(ctx, organizationID)
	if err != nil {
		return domain.Organization{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through organizations ordered by name.
func (r *OrganizationRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Organization], error) {
	if r == nil || r.orgs == nil {
		return domain.CursorPage[domain.Organization]{}, errors.New("organization repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	docs, err := r.orgs.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)
		if token := strings.TrimSpace(pager.PageToken); token != "" {
			var cursor organizationPageToken
			if err := decodeJSONPageToken(token, &cursor); err == nil {
				q = q.StartAfter(cursor.Name, cursor.ID)
			}
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Organization]{}, err
	}

	orgs := make([]domain.Organization, 0, len(docs))
	for _, doc := range docs {
		orgs = append(orgs, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(orgs) > pageSize
	if hasMore {
		orgs = orgs[:pageSize]
	}
	var nextToken string
	if hasMore && len(orgs) > 0 {
		last := orgs[len(orgs)-1]
		encoded, err := encodeJSONPageToken(organizationPageToken{ID: last.ID, Name: last.Name})
		if err != nil {
			return domain.CursorPage[domain.Organization]{}, pfirestore.WrapError("organizations.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Organization]{Items: orgs, NextPageToken: nextToken}, nil
}

// AdjustBalance applies a signed delta to totalDue. The write is blind so it
// can run after reads inside an ambient transaction.
func (r *OrganizationRepository) AdjustBalance(ctx context.Context, organizationID string, delta float64, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("organization repository not initialised")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return errors.New("organization adjust balance: id is required")
	}

	updates := []firestore.Update{
		{Path: "totalDue", Value: firestore.Increment(domain.Round2(delta))},
		{Path: "updatedAt", Value: now.UTC()},
	}
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		return tx.Update(client.Collection(organizationsCollection).Doc(organizationID), updates)
	})
	if err != nil {
		return pfirestore.WrapError("organizations.adjustBalance", err)
	}
	return nil
}

// Document mapping ----------------------------------------------------------

type organizationDocument struct {
	Name            string     `firestore:"name"`
	ContactEmail    string     `firestore:"contactEmail"`
	LogoImageURL    string     `firestore:"logoImageUrl,omitempty"`
	CommissionRate  float64    `firestore:"commissionRate"`
	TotalDue        float64    `firestore:"totalDue"`
	TotalPaid       float64    `firestore:"totalPaid"`
	LastPaymentDate *time.Time `firestore:"lastPaymentDate,omitempty"`
	Status          string     `firestore:"status"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func newOrganizationDocument(org domain.Organization) organizationDocument {
	return organizationDocument{
		Name:            strings.TrimSpace(org.Name),
		ContactEmail:    strings.TrimSpace(org.ContactEmail),
		LogoImageURL:    strings.TrimSpace(org.LogoImageURL),
		CommissionRate:  org.CommissionRate,
		TotalDue:        domain.Round2(org.TotalDue),
		TotalPaid:       domain.Round2(org.TotalPaid),
		LastPaymentDate: utcPtr(org.LastPaymentDate),
		Status:          strings.TrimSpace(org.Status),
		CreatedAt:       org.CreatedAt.UTC(),
		UpdatedAt:       org.UpdatedAt.UTC(),
	}
}

func (d organizationDocument) toDomain(id string) domain.Organization {
	return domain.Organization{
		ID:              id,
		Name:            d.Name,
		ContactEmail:    d.ContactEmail,
		LogoImageURL:    d.LogoImageURL,
		CommissionRate:  d.CommissionRate,
		TotalDue:        d.TotalDue,
		TotalPaid:       d.TotalPaid,
		LastPaymentDate: d.LastPaymentDate,
		Status:          d.Status,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type organizationPageToken struct {
	ID   string
	Name string
}
