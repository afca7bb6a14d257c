package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/unimerch/api/internal/domain"
	pfirestore "github.com/unimerch/api/internal/platform/firestore"
	"github.com/unimerch/api/internal/repositories"
)

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: base}, nil
}

// Insert creates the product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	_, err = client.Collection(productsCollection).Doc(product.ID).Create(ctx, newProductDocument(product))
	if err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product update: id is required")
	}
	_, err := r.products.Set(ctx, product.ID, newProductDocument(product))
	return err
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through products matching the filter, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if org := strings.TrimSpace(filter.OrganizationID); org != "" {
			q = q.Where("organizationId", "==", org)
		}
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", filter.Status[0])
		} else if len(filter.Status) > 1 {
			q = q.Where("status", "in", filter.Status)
		}
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)
		if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
			var cursor productPageToken
			if err := decodeJSONPageToken(token, &cursor); err == nil {
				q = q.StartAfter(cursor.CreatedAt, cursor.ID)
			}
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		encoded, err := encodeJSONPageToken(productPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}

// AddTotals increments the lifetime order/sales counters. The write is blind so
// it can run after reads inside an ambient transaction.
func (r *ProductRepository) AddTotals(ctx context.Context, productID string, ordersDelta int, salesDelta int, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product totals: id is required")
	}
	if ordersDelta == 0 && salesDelta == 0 {
		return nil
	}

	updates := make([]firestore.Update, 0, 3)
	if ordersDelta != 0 {
		updates = append(updates, firestore.Update{Path: "totalOrders", Value: firestore.Increment(ordersDelta)})
	}
	if salesDelta != 0 {
		updates = append(updates, firestore.Update{Path: "totalSales", Value: firestore.Increment(salesDelta)})
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: now.UTC()})

	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		return tx.Update(client.Collection(productsCollection).Doc(productID), updates)
	})
	if err != nil {
		return pfirestore.WrapError("products.addTotals", err)
	}
	return nil
}

// Document mapping ----------------------------------------------------------

type productDocument struct {
	OrganizationID string    `firestore:"organizationId"`
	Name           string    `firestore:"name"`
	Description    string    `firestore:"description,omitempty"`
	Status         string    `firestore:"status"`
	Category       string    `firestore:"category,omitempty"`
	PhotoURL       string    `firestore:"photoUrl,omitempty"`
	TotalOrders    int       `firestore:"totalOrders"`
	TotalSales     int       `firestore:"totalSales"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		OrganizationID: strings.TrimSpace(product.OrganizationID),
		Name:           strings.TrimSpace(product.Name),
		Description:    product.Description,
		Status:         strings.TrimSpace(product.Status),
		Category:       strings.TrimSpace(product.Category),
		PhotoURL:       strings.TrimSpace(product.PhotoURL),
		TotalOrders:    product.TotalOrders,
		TotalSales:     product.TotalSales,
		CreatedAt:      product.CreatedAt.UTC(),
		UpdatedAt:      product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		OrganizationID: d.OrganizationID,
		Name:           d.Name,
		Description:    d.Description,
		Status:         d.Status,
		Category:       d.Category,
		PhotoURL:       d.PhotoURL,
		TotalOrders:    d.TotalOrders,
		TotalSales:     d.TotalSales,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type productPageToken struct {
	ID        string
	CreatedAt time.Time
}
