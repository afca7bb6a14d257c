package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/repositories"
)

const (
	orderEventPlaced = "order.placed"

	ordersCounterID = "orders"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutNotFound indicates a referenced organization or variation is missing.
	ErrCheckoutNotFound = errors.New("checkout: not found")
	// ErrCheckoutInsufficientStock indicates a direct line exceeds the sellable pool.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders        repositories.OrderRepository
	Stocks        repositories.StockRepository
	Organizations repositories.OrganizationRepository
	Products      repositories.ProductRepository
	Counters      repositories.CounterRepository
	UnitOfWork    repositories.UnitOfWork
	Cache         cache.Store
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
	// DisablePreOrders rejects submissions carrying pre-order lines. Driven by
	// the pre-orders feature flag.
	DisablePreOrders bool
}

type checkoutService struct {
	orders           repositories.OrderRepository
	stocks           repositories.StockRepository
	organizations    repositories.OrganizationRepository
	products         repositories.ProductRepository
	counters         repositories.CounterRepository
	unitOfWork       repositories.UnitOfWork
	cache            cache.Store
	clock            func() time.Time
	newID            func() string
	events           OrderEventPublisher
	logger           func(context.Context, string, map[string]any)
	disablePreOrders bool
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("checkout service: stock repository is required")
	}
	if deps.Organizations == nil {
		return nil, errors.New("checkout service: organization repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:        deps.Orders,
		stocks:        deps.Stocks,
		organizations: deps.Organizations,
		products:      deps.Products,
		counters:      deps.Counters,
		unitOfWork:    unit,
		cache:         deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:            idGen,
		events:           deps.Events,
		logger:           logger,
		disablePreOrders: deps.DisablePreOrders,
	}, nil
}

// PlaceOrder validates the submission, allocates a reference number, and
// creates the order, its items, and the stock reservations in one transaction.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	organizationID := strings.TrimSpace(cmd.OrganizationID)
	buyerName := strings.TrimSpace(cmd.BuyerName)
	if organizationID == "" {
		return Order{}, fmt.Errorf("%w: organization id is required", ErrCheckoutInvalidInput)
	}
	if buyerName == "" {
		return Order{}, fmt.Errorf("%w: buyer name is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line is required", ErrCheckoutInvalidInput)
	}
	for i, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" || strings.TrimSpace(line.VariationID) == "" {
			return Order{}, fmt.Errorf("%w: line %d is missing product or variation id", ErrCheckoutInvalidInput, i)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: line %d quantity must be positive", ErrCheckoutInvalidInput, i)
		}
		if line.IsPreOrder && s.disablePreOrders {
			return Order{}, fmt.Errorf("%w: pre-orders are not accepted", ErrCheckoutInvalidInput)
		}
	}

	org, err := s.organizations.FindByID(ctx, organizationID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	seq, err := s.counters.Next(ctx, fmt.Sprintf("%s:%04d", ordersCounterID, now.Year()), 1)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	reference := fmt.Sprintf("UM-%04d-%06d", now.Year(), seq)

	order := Order{
		ID:               orderIDPrefix + s.newID(),
		ReferenceNumber:  reference,
		BuyerID:          strings.TrimSpace(cmd.BuyerID),
		BuyerName:        buyerName,
		BuyerEmail:       strings.TrimSpace(cmd.BuyerEmail),
		OrganizationID:   organizationID,
		OrganizationName: org.Name,
		OrderStatus:      domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusNotPaid,
		CommissionRate:   org.CommissionRate,
		Remarks:          strings.TrimSpace(cmd.Remarks),
		StatusHistory: []StatusHistoryEntry{
			{Status: string(domain.OrderStatusPending), Date: now},
		},
		DateOrdered: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	itemIDs := make([]string, len(cmd.Lines))
	for i := range cmd.Lines {
		itemIDs[i] = orderItemIDPrefix + s.newID()
	}

	var items []OrderItem
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// Prices come from the variation documents, not the submission, so a
		// stale or tampered client cannot set its own totals. The reads share
		// the transaction with the reservation below.
		items = make([]OrderItem, 0, len(cmd.Lines))
		lines := make([]repositories.StockLine, 0, len(cmd.Lines))
		ordersByProduct := make(map[string]int, len(cmd.Lines))
		var total float64
		for i, line := range cmd.Lines {
			productID := strings.TrimSpace(line.ProductID)
			variationID := strings.TrimSpace(line.VariationID)
			variation, err := s.stocks.GetVariation(txCtx, productID, variationID)
			if err != nil {
				return s.mapStockError(err)
			}
			unit := variation.Price
			var discounted float64
			if variation.DiscountPrice > 0 && variation.DiscountPrice < variation.Price {
				discounted = variation.DiscountPrice
				unit = discounted
			}
			lineTotal := domain.Round2(float64(line.Quantity) * unit)
			total += lineTotal
			name := strings.TrimSpace(variation.Name)
			if name == "" {
				name = strings.TrimSpace(line.VariationName)
			}
			items = append(items, OrderItem{
				ID:              itemIDs[i],
				OrderID:         order.ID,
				ProductID:       productID,
				VariationID:     variationID,
				VariationName:   name,
				IsPreOrder:      line.IsPreOrder,
				Quantity:        line.Quantity,
				Price:           variation.Price,
				DiscountedPrice: discounted,
				TotalPrice:      lineTotal,
			})
			lines = append(lines, repositories.StockLine{
				ProductID:   productID,
				VariationID: variationID,
				Quantity:    line.Quantity,
				IsPreOrder:  line.IsPreOrder,
			})
			ordersByProduct[productID] += line.Quantity
		}
		order.TotalPrice = domain.Round2(total)
		order.CommissionAmount = domain.Round2(order.TotalPrice * org.CommissionRate)

		req := repositories.StockOrderRequest{OrderRef: reference, Lines: lines, Now: now}
		if err := s.stocks.ReserveLines(txCtx, req); err != nil {
			return s.mapStockError(err)
		}
		for productID, qty := range ordersByProduct {
			if err := s.products.AddTotals(txCtx, productID, qty, 0, now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Insert(txCtx, order, items); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateCheckoutCaches(ctx, order, items)
	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventPlaced,
		OrderID:         order.ID,
		ReferenceNumber: order.ReferenceNumber,
		CurrentStatus:   string(order.OrderStatus),
		ActorID:         cmd.ActorID,
		OccurredAt:      now,
		Metadata: map[string]any{
			"organizationId": organizationID,
			"totalPrice":     order.TotalPrice,
		},
	})

	return order, nil
}

func (s *checkoutService) invalidateCheckoutCaches(ctx context.Context, order Order, items []OrderItem) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(ctx, filteredOrdersCachePrefix)
	s.cache.DeletePrefix(ctx, analyticsCachePrefix)
	if order.BuyerID != "" {
		s.cache.Delete(ctx, buyerDetailsKey(order.BuyerID))
	}
	for _, item := range items {
		s.cache.Delete(ctx, productDetailsKey(item.ProductID))
		s.cache.Delete(ctx, variationDetailsKey(item.ProductID, item.VariationID))
	}
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCheckoutNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}

	return err
}

func (s *checkoutService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %v", ErrCheckoutInsufficientStock, err)
		case repositories.StockErrorVariationNotFound:
			return fmt.Errorf("%w: %v", ErrCheckoutNotFound, err)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *checkoutService) now() time.Time {
	return s.clock()
}
