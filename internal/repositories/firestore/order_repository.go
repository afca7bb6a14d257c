package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/text/cases"
	"google.golang.org/api/iterator"

	domain "github.com/unimerch/api/internal/domain"
	pfirestore "github.com/unimerch/api/internal/platform/firestore"
	"github.com/unimerch/api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "items"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	folder   cases.Caser
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: base, folder: cases.Fold()}, nil
}

// Insert atomically creates the order document and its item subcollection.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order, items []domain.OrderItem) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}

	doc := newOrderDocument(order, r.folder)
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		for _, item := range items {
			if strings.TrimSpace(item.ID) == "" {
				return fmt.Errorf("order insert: item id is required for order %s", order.ID)
			}
			itemRef := orderRef.Collection(orderItemsCollection).Doc(item.ID)
			if err := tx.Create(itemRef, newOrderItemDocument(item)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document. Participates in the ambient transaction.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: id is required")
	}

	doc := newOrderDocument(order, r.folder)
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches a single order header.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByReference locates an order by its unique reference number.
func (r *OrderRepository) FindByReference(ctx context.Context, referenceNumber string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref := strings.TrimSpace(referenceNumber)
	if ref == "" {
		return domain.Order{}, errors.New("order find by reference: reference number is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("referenceNumber", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.findByReference", fmt.Sprintf("order with reference %s not found", ref))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders matching the filter ordered by dateOrdered descending.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if org := strings.TrimSpace(filter.OrganizationID); org != "" {
		query = query.Where("organizationId", "==", org)
	}
	if buyer := strings.TrimSpace(filter.BuyerID); buyer != "" {
		query = query.Where("buyerId", "==", buyer)
	}
	if len(filter.Status) == 1 {
		query = query.Where("orderStatus", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		values := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			values[i] = string(s)
		}
		query = query.Where("orderStatus", "in", values)
	}
	if len(filter.PaymentStatus) == 1 {
		query = query.Where("paymentStatus", "==", string(filter.PaymentStatus[0]))
	} else if len(filter.PaymentStatus) > 1 {
		values := make([]string, len(filter.PaymentStatus))
		for i, s := range filter.PaymentStatus {
			values[i] = string(s)
		}
		query = query.Where("paymentStatus", "in", values)
	}
	if name := strings.TrimSpace(filter.BuyerName); name != "" {
		folded := r.folder.String(name)
		query = query.Where("buyerNameFolded", ">=", folded).
			Where("buyerNameFolded", "<", folded+"\uf8ff").
			OrderBy("buyerNameFolded", firestore.Asc)
	}
	if filter.DateRange.From != nil {
		query = query.Where("dateOrdered", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("dateOrdered", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("dateOrdered", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.DateOrdered, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, DateOrdered: last.DateOrdered})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// ListItems returns the line items beneath an order.
func (r *OrderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order items: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.items", err)
	}

	iter := client.Collection(ordersCollection).Doc(orderID).Collection(orderItemsCollection).Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.items", err)
		}
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID, orderID))
	}
	return items, nil
}

// ListBetween returns orders placed in [from, to) for aggregation queries.
func (r *OrderRepository) ListBetween(ctx context.Context, organizationID string, from, to time.Time) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	org := strings.TrimSpace(organizationID)
	if org == "" {
		return nil, errors.New("order list between: organization id is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("organizationId", "==", org)
		if !from.IsZero() {
			q = q.Where("dateOrdered", ">=", from.UTC())
		}
		if !to.IsZero() {
			q = q.Where("dateOrdered", "<", to.UTC())
		}
		return q.OrderBy("dateOrdered", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, len(docs))
	for i, doc := range docs {
		orders[i] = doc.Data.toDomain(doc.ID)
	}
	return orders, nil
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	ReferenceNumber        string                 `firestore:"referenceNumber"`
	BuyerID                string                 `firestore:"buyerId"`
	BuyerName              string                 `firestore:"buyerName"`
	BuyerNameFolded        string                 `firestore:"buyerNameFolded"`
	BuyerEmail             string                 `firestore:"buyerEmail"`
	OrganizationID         string                 `firestore:"organizationId"`
	OrganizationName       string                 `firestore:"organizationName"`
	OrderStatus            string                 `firestore:"orderStatus"`
	PaymentStatus          string                 `firestore:"paymentStatus"`
	TotalPrice             float64                `firestore:"totalPrice"`
	CommissionRate         float64                `firestore:"commissionRate"`
	CommissionAmount       float64                `firestore:"commissionAmount"`
	Remarks                string                 `firestore:"remarks,omitempty"`
	IsRequestedForDiscount bool                   `firestore:"isRequestedForDiscount"`
	DiscountValue          float64                `firestore:"discountValue,omitempty"`
	StatusHistory          []statusHistoryElement `firestore:"statusHistory"`
	DateOrdered            time.Time              `firestore:"dateOrdered"`
	DatePending            *time.Time             `firestore:"datePending,omitempty"`
	DateReady              *time.Time             `firestore:"dateReady,omitempty"`
	DatePaid               *time.Time             `firestore:"datePaid,omitempty"`
	DateCompleted          *time.Time             `firestore:"dateCompleted,omitempty"`
	DateCancelled          *time.Time             `firestore:"dateCancelled,omitempty"`
	DateRefunded           *time.Time             `firestore:"dateRefunded,omitempty"`
	ReceivedDate           *time.Time             `firestore:"receivedDate,omitempty"`
	CreatedAt              time.Time              `firestore:"createdAt"`
	UpdatedAt              time.Time              `firestore:"updatedAt"`
}

type statusHistoryElement struct {
	Status         string    `firestore:"status"`
	PreviousStatus string    `firestore:"previousStatus"`
	Remarks        string    `firestore:"remarks,omitempty"`
	Date           time.Time `firestore:"date"`
}

func newOrderDocument(order domain.Order, folder cases.Caser) orderDocument {
	history := make([]statusHistoryElement, len(order.StatusHistory))
	for i, entry := range order.StatusHistory {
		history[i] = statusHistoryElement{
			Status:         entry.Status,
			PreviousStatus: entry.PreviousStatus,
			Remarks:        entry.Remarks,
			Date:           entry.Date.UTC(),
		}
	}
	name := strings.TrimSpace(order.BuyerName)
	return orderDocument{
		ReferenceNumber:        strings.TrimSpace(order.ReferenceNumber),
		BuyerID:                strings.TrimSpace(order.BuyerID),
		BuyerName:              name,
		BuyerNameFolded:        folder.String(name),
		BuyerEmail:             strings.TrimSpace(order.BuyerEmail),
		OrganizationID:         strings.TrimSpace(order.OrganizationID),
		OrganizationName:       strings.TrimSpace(order.OrganizationName),
		OrderStatus:            string(order.OrderStatus),
		PaymentStatus:          string(order.PaymentStatus),
		TotalPrice:             order.TotalPrice,
		CommissionRate:         order.CommissionRate,
		CommissionAmount:       order.CommissionAmount,
		Remarks:                order.Remarks,
		IsRequestedForDiscount: order.IsRequestedForDiscount,
		DiscountValue:          order.DiscountValue,
		StatusHistory:          history,
		DateOrdered:            order.DateOrdered.UTC(),
		DatePending:            utcPtr(order.DatePending),
		DateReady:              utcPtr(order.DateReady),
		DatePaid:               utcPtr(order.DatePaid),
		DateCompleted:          utcPtr(order.DateCompleted),
		DateCancelled:          utcPtr(order.DateCancelled),
		DateRefunded:           utcPtr(order.DateRefunded),
		ReceivedDate:           utcPtr(order.ReceivedDate),
		CreatedAt:              order.CreatedAt.UTC(),
		UpdatedAt:              order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	history := make([]domain.StatusHistoryEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.StatusHistoryEntry{
			Status:         entry.Status,
			PreviousStatus: entry.PreviousStatus,
			Remarks:        entry.Remarks,
			Date:           entry.Date,
		}
	}
	return domain.Order{
		ID:                     id,
		ReferenceNumber:        d.ReferenceNumber,
		BuyerID:                d.BuyerID,
		BuyerName:              d.BuyerName,
		BuyerEmail:             d.BuyerEmail,
		OrganizationID:         d.OrganizationID,
		OrganizationName:       d.OrganizationName,
		OrderStatus:            domain.OrderStatus(d.OrderStatus),
		PaymentStatus:          domain.PaymentStatus(d.PaymentStatus),
		TotalPrice:             d.TotalPrice,
		CommissionRate:         d.CommissionRate,
		CommissionAmount:       d.CommissionAmount,
		Remarks:                d.Remarks,
		IsRequestedForDiscount: d.IsRequestedForDiscount,
		DiscountValue:          d.DiscountValue,
		StatusHistory:          history,
		DateOrdered:            d.DateOrdered,
		DatePending:            d.DatePending,
		DateReady:              d.DateReady,
		DatePaid:               d.DatePaid,
		DateCompleted:          d.DateCompleted,
		DateCancelled:          d.DateCancelled,
		DateRefunded:           d.DateRefunded,
		ReceivedDate:           d.ReceivedDate,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

type orderItemDocument struct {
	ProductID       string  `firestore:"productId"`
	VariationID     string  `firestore:"variationId"`
	VariationName   string  `firestore:"variationName"`
	IsPreOrder      bool    `firestore:"isPreOrder"`
	Quantity        int     `firestore:"quantity"`
	Price           float64 `firestore:"price"`
	DiscountedPrice float64 `firestore:"discountedPrice"`
	TotalPrice      float64 `firestore:"totalPrice"`
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
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

func (d orderItemDocument) toDomain(id string, orderID string) domain.OrderItem {
	return domain.OrderItem{
		ID:              id,
		OrderID:         orderID,
		ProductID:       d.ProductID,
		VariationID:     d.VariationID,
		VariationName:   d.VariationName,
		IsPreOrder:      d.IsPreOrder,
		Quantity:        d.Quantity,
		Price:           d.Price,
		DiscountedPrice: d.DiscountedPrice,
		TotalPrice:      d.TotalPrice,
	}
}

type orderPageToken struct {
	ID          string
	DateOrdered time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	return encodeJSONPageToken(token)
}

func decodeOrderPageToken(encoded string) (orderPageToken, error) {
	var token orderPageToken
	if err := decodeJSONPageToken(encoded, &token); err != nil {
		return orderPageToken{}, err
	}
	return token, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
