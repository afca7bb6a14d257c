package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/unimerch/api/internal/domain"
	pfirestore "github.com/unimerch/api/internal/platform/firestore"
	"github.com/unimerch/api/internal/repositories"
)

const (
	productsCollection   = "products"
	variationsCollection = "variations"
	stocksLogsCollection = "stocksLogs"

	defaultStockLogPageSize = 50
	maxStockLogPageSize     = 200
)

// StockRepository implements repositories.StockRepository over the
// products/{id}/variations subcollections. Every mutation reads all affected
// variations before writing any of them so the operation can join an ambient
// transaction without violating Firestore's read-before-write ordering.
type StockRepository struct {
	provider *pfirestore.Provider
	idgen    func() string
}

// NewStockRepository constructs a Firestore-backed stock repository. The ID
// generator names new stock log documents.
func NewStockRepository(provider *pfirestore.Provider, idgen func() string) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	if idgen == nil {
		return nil, errors.New("stock repository requires an id generator")
	}
	return &StockRepository{provider: provider, idgen: idgen}, nil
}

// ReserveLines applies checkout effects for every line of a new order.
func (r *StockRepository) ReserveLines(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.reserve", req, reserveLine)
}

// HoldLines moves direct pending quantities into the reserved pool when an
// order becomes ready.
func (r *StockRepository) HoldLines(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.hold", req, holdLine)
}

// ReleaseHold reverses HoldLines when a ready order returns to pending.
func (r *StockRepository) ReleaseHold(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.releaseHold", req, releaseHoldLine)
}

// CompleteLines finalises claimed orders.
func (r *StockRepository) CompleteLines(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.complete", req, completeLine)
}

// RevertCompletion undoes CompleteLines when a claim toggles back to pending.
func (r *StockRepository) RevertCompletion(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.revertCompletion", req, revertCompletionLine)
}

// CancelLines returns cancelled quantities to the sellable pool and logs the
// movement per line.
func (r *StockRepository) CancelLines(ctx context.Context, req repositories.StockOrderRequest) error {
	return r.mutateLines(ctx, "stocks.cancel", req, cancelLine(strings.TrimSpace(req.OrderRef)))
}

func reserveLine(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
	if line.IsPreOrder {
		doc.PreOrderStocks += line.Quantity
		return nil, nil
	}
	if doc.RemainingStocks < line.Quantity {
		return nil, repositories.NewStockError(repositories.StockErrorInsufficientStock, fmt.Sprintf("insufficient stock for variation %s", line.VariationID), nil)
	}
	doc.RemainingStocks -= line.Quantity
	doc.PendingOrders += line.Quantity
	return &stockLogEntry{
		Quantity: line.Quantity,
		Action:   domain.StockActionOrdered,
		Remarks:  "ordered",
	}, nil
}

func holdLine(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
	if line.IsPreOrder {
		return nil, nil
	}
	doc.PendingOrders = clampZero(doc.PendingOrders - line.Quantity)
	doc.ReservedStocks += line.Quantity
	return nil, nil
}

func releaseHoldLine(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
	if line.IsPreOrder {
		return nil, nil
	}
	doc.ReservedStocks = clampZero(doc.ReservedStocks - line.Quantity)
	doc.PendingOrders += line.Quantity
	return nil, nil
}

func completeLine(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
	doc.CompletedOrders += line.Quantity
	if line.IsPreOrder {
		doc.PreOrderStocks = clampZero(doc.PreOrderStocks - line.Quantity)
		return nil, nil
	}
	// An order claimed straight from pending still carries its quantity in
	// pendingOrders; only the ready toggle moves it into reservedStocks.
	// Drain whichever pool holds it.
	fromPending := line.Quantity
	if doc.PendingOrders < fromPending {
		fromPending = doc.PendingOrders
	}
	doc.PendingOrders -= fromPending
	doc.ReservedStocks = clampZero(doc.ReservedStocks - (line.Quantity - fromPending))
	return nil, nil
}

func revertCompletionLine(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
	doc.CompletedOrders = clampZero(doc.CompletedOrders - line.Quantity)
	if line.IsPreOrder {
		doc.PreOrderStocks += line.Quantity
	} else {
		// The order returns to pending, so the quantity goes back to the
		// pending pool. A later ready toggle re-runs the hold.
		doc.PendingOrders += line.Quantity
	}
	return nil, nil
}

func cancelLine(orderRef string) lineMutation {
	return func(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error) {
		doc.CancelledOrders += line.Quantity
		if line.IsPreOrder {
			doc.PreOrderStocks = clampZero(doc.PreOrderStocks - line.Quantity)
		} else {
			doc.RemainingStocks += line.Quantity
			// The hold may sit in either pool depending on the order status at
			// cancellation time.
			fromReserved := line.Quantity
			if doc.ReservedStocks < fromReserved {
				fromReserved = doc.ReservedStocks
			}
			doc.ReservedStocks -= fromReserved
			doc.PendingOrders = clampZero(doc.PendingOrders - (line.Quantity - fromReserved))
		}
		return &stockLogEntry{
			Quantity: line.Quantity,
			Action:   domain.StockActionCancelled,
			Remarks:  fmt.Sprintf("Order %s cancelled", orderRef),
		}, nil
	}
}

// Adjust applies a manual stock correction outside the order lifecycle.
func (r *StockRepository) Adjust(ctx context.Context, req repositories.StockAdjustment) (domain.Variation, error) {
	if r == nil || r.provider == nil {
		return domain.Variation{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	variationID := strings.TrimSpace(req.VariationID)
	if productID == "" || variationID == "" {
		return domain.Variation{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock adjust: product and variation ids are required", nil)
	}
	if req.Quantity <= 0 {
		return domain.Variation{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock adjust: quantity must be > 0", nil)
	}

	now := req.Now.UTC()
	var updated domain.Variation
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ref := variationRef(client, productID, variationID)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorVariationNotFound, fmt.Sprintf("variation %s not found", variationID), err)
			}
			return err
		}
		var doc variationDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode variation %s: %w", variationID, err)
		}

		switch req.Action {
		case domain.StockActionIncrement, domain.StockActionRestock:
			doc.RemainingStocks += req.Quantity
		case domain.StockActionDecrement:
			if doc.RemainingStocks < req.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficientStock, fmt.Sprintf("insufficient stock for variation %s", variationID), nil)
			}
			doc.RemainingStocks -= req.Quantity
		default:
			return repositories.NewStockError(repositories.StockErrorInvalidInput, fmt.Sprintf("stock adjust: unsupported action %q", req.Action), nil)
		}
		doc.LastStockUpdate = &now
		doc.UpdatedAt = now

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		logDoc := stockLogDocument{
			VariationID: variationID,
			Quantity:    req.Quantity,
			Action:      string(req.Action),
			Remarks:     strings.TrimSpace(req.Remarks),
			CreatedAt:   now,
		}
		if err := tx.Create(ref.Collection(stocksLogsCollection).Doc(r.idgen()), logDoc); err != nil {
			return err
		}
		updated = doc.toDomain(variationID, productID)
		return nil
	})
	if err != nil {
		return domain.Variation{}, wrapStockError("stocks.adjust", err)
	}
	return updated, nil
}

// GetVariation fetches a single variation with its stock counters. The read
// joins an ambient transaction when the context carries one, so checkout can
// price lines from the same snapshot it reserves against.
func (r *StockRepository) GetVariation(ctx context.Context, productID string, variationID string) (domain.Variation, error) {
	if r == nil || r.provider == nil {
		return domain.Variation{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	variationID = strings.TrimSpace(variationID)
	if productID == "" || variationID == "" {
		return domain.Variation{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock get: product and variation ids are required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Variation{}, wrapStockError("stocks.get", err)
	}
	ref := variationRef(client, productID, variationID)
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Variation{}, repositories.NewStockError(repositories.StockErrorVariationNotFound, fmt.Sprintf("variation %s not found", variationID), err)
		}
		return domain.Variation{}, wrapStockError("stocks.get", err)
	}
	var doc variationDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Variation{}, fmt.Errorf("decode variation %s: %w", variationID, err)
	}
	return doc.toDomain(variationID, productID), nil
}

// ListVariations returns every variation beneath a product.
func (r *StockRepository) ListVariations(ctx context.Context, productID string) ([]domain.Variation, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock list: product id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("stocks.list", err)
	}
	iter := client.Collection(productsCollection).Doc(productID).Collection(variationsCollection).Documents(ctx)
	defer iter.Stop()

	var variations []domain.Variation
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapStockError("stocks.list", err)
		}
		var doc variationDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variation %s: %w", snap.Ref.ID, err)
		}
		variations = append(variations, doc.toDomain(snap.Ref.ID, productID))
	}
	return variations, nil
}

// ListStockLogs pages through the append-only movement log, newest first.
func (r *StockRepository) ListStockLogs(ctx context.Context, productID string, variationID string, pager domain.Pagination) (domain.CursorPage[domain.StocksLog], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StocksLog]{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	variationID = strings.TrimSpace(variationID)
	if productID == "" || variationID == "" {
		return domain.CursorPage[domain.StocksLog]{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock logs: product and variation ids are required", nil)
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultStockLogPageSize
	}
	if pageSize > maxStockLogPageSize {
		pageSize = maxStockLogPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.StocksLog]{}, wrapStockError("stocks.logs", err)
	}

	query := variationRef(client, productID, variationID).Collection(stocksLogsCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := decodeStockLogPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.StocksLog]{}, wrapStockError("stocks.logs", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var logs []domain.StocksLog
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StocksLog]{}, wrapStockError("stocks.logs", err)
		}
		var doc stockLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StocksLog]{}, fmt.Errorf("decode stock log %s: %w", snap.Ref.ID, err)
		}
		logs = append(logs, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(logs) > pageSize
	if hasMore {
		logs = logs[:pageSize]
	}
	var nextToken string
	if hasMore && len(logs) > 0 {
		last := logs[len(logs)-1]
		encoded, err := encodeStockLogPageToken(stockLogPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.StocksLog]{}, wrapStockError("stocks.logs", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.StocksLog]{Items: logs, NextPageToken: nextToken}, nil
}

// stockLogEntry describes a log row a mutation wants appended for a line.
type stockLogEntry struct {
	Quantity int
	Action   domain.StockAction
	Remarks  string
}

type lineMutation func(doc *variationDocument, line repositories.StockLine) (*stockLogEntry, error)

// mutateLines reads every affected variation, applies fn per line, then writes
// the updated documents and any stock log rows.
func (r *StockRepository) mutateLines(ctx context.Context, op string, req repositories.StockOrderRequest, fn lineMutation) error {
	if r == nil || r.provider == nil {
		return errors.New("stock repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.NewStockError(repositories.StockErrorInvalidInput, "stock mutation: at least one line is required", nil)
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" || strings.TrimSpace(line.VariationID) == "" {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, "stock mutation: product and variation ids are required", nil)
		}
		if line.Quantity <= 0 {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, fmt.Sprintf("stock mutation: quantity for variation %s must be > 0", line.VariationID), nil)
		}
	}

	now := req.Now.UTC()
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		refs := make([]*firestore.DocumentRef, len(req.Lines))
		docs := make([]variationDocument, len(req.Lines))
		for i, line := range req.Lines {
			ref := variationRef(client, strings.TrimSpace(line.ProductID), strings.TrimSpace(line.VariationID))
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorVariationNotFound, fmt.Sprintf("variation %s not found", line.VariationID), err)
				}
				return err
			}
			var doc variationDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode variation %s: %w", line.VariationID, err)
			}
			refs[i] = ref
			docs[i] = doc
		}

		for i, line := range req.Lines {
			logEntry, err := fn(&docs[i], line)
			if err != nil {
				return err
			}
			docs[i].LastStockUpdate = &now
			docs[i].UpdatedAt = now
			if err := tx.Set(refs[i], docs[i]); err != nil {
				return err
			}
			if logEntry != nil {
				logDoc := stockLogDocument{
					VariationID: strings.TrimSpace(line.VariationID),
					Quantity:    logEntry.Quantity,
					Action:      string(logEntry.Action),
					Remarks:     logEntry.Remarks,
					CreatedAt:   now,
				}
				if err := tx.Create(refs[i].Collection(stocksLogsCollection).Doc(r.idgen()), logDoc); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return wrapStockError(op, err)
	}
	return nil
}

// Document mapping ----------------------------------------------------------

type variationDocument struct {
	Name            string     `firestore:"name"`
	Price           float64    `firestore:"price"`
	DiscountPrice   float64    `firestore:"discountPrice,omitempty"`
	RemainingStocks int        `firestore:"remainingStocks"`
	PendingOrders   int        `firestore:"pendingOrders"`
	ReservedStocks  int        `firestore:"reservedStocks"`
	PreOrderStocks  int        `firestore:"preOrderStocks"`
	CompletedOrders int        `firestore:"completedOrders"`
	CancelledOrders int        `firestore:"cancelledOrders"`
	LastStockUpdate *time.Time `firestore:"lastStockUpdate,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func (d variationDocument) toDomain(id string, productID string) domain.Variation {
	return domain.Variation{
		ID:              id,
		ProductID:       productID,
		Name:            d.Name,
		Price:           d.Price,
		DiscountPrice:   d.DiscountPrice,
		RemainingStocks: d.RemainingStocks,
		PendingOrders:   d.PendingOrders,
		ReservedStocks:  d.ReservedStocks,
		PreOrderStocks:  d.PreOrderStocks,
		CompletedOrders: d.CompletedOrders,
		CancelledOrders: d.CancelledOrders,
		LastStockUpdate: d.LastStockUpdate,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type stockLogDocument struct {
	VariationID string    `firestore:"variationId"`
	Quantity    int       `firestore:"quantity"`
	Action      string    `firestore:"action"`
	Remarks     string    `firestore:"remarks,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func (d stockLogDocument) toDomain(id string) domain.StocksLog {
	return domain.StocksLog{
		ID:          id,
		VariationID: d.VariationID,
		Quantity:    d.Quantity,
		Action:      domain.StockAction(d.Action),
		Remarks:     d.Remarks,
		CreatedAt:   d.CreatedAt,
	}
}

type stockLogPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeStockLogPageToken(token stockLogPageToken) (string, error) {
	return encodeJSONPageToken(token)
}

func decodeStockLogPageToken(encoded string) (stockLogPageToken, error) {
	var token stockLogPageToken
	if err := decodeJSONPageToken(encoded, &token); err != nil {
		return stockLogPageToken{}, err
	}
	return token, nil
}

func variationRef(client *firestore.Client, productID string, variationID string) *firestore.DocumentRef {
	return client.Collection(productsCollection).Doc(productID).Collection(variationsCollection).Doc(variationID)
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
