package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/repositories"
)

const (
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentChanged  = "order.payment.changed"
	orderEventDiscountFlagged = "order.discount.requested"

	filteredOrdersCachePrefix = "filtered_orders_"
	analyticsCachePrefix      = "analytics_"

	historyStatusPaymentPaid   = "payment_paid"
	historyStatusPaymentUnpaid = "payment_not_paid"
	historyStatusRefunded      = "refunded"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the operation does not apply to the order's current state.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type            string
	OrderID         string
	ReferenceNumber string
	PreviousStatus  string
	CurrentStatus   string
	ActorID         string
	OccurredAt      time.Time
	Metadata        map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Stocks        repositories.StockRepository
	Organizations repositories.OrganizationRepository
	Products      repositories.ProductRepository
	UnitOfWork    repositories.UnitOfWork
	Cache         cache.Store
	CacheTTL      time.Duration
	Clock         func() time.Time
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	stocks        repositories.StockRepository
	organizations repositories.OrganizationRepository
	products      repositories.ProductRepository
	unitOfWork    repositories.UnitOfWork
	cache         cache.Store
	cacheTTL      time.Duration
	clock         func() time.Time
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("order service: stock repository is required")
	}
	if deps.Organizations == nil {
		return nil, errors.New("order service: organization repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = cacheTTLOrders
	}

	return &orderService{
		orders:        deps.Orders,
		stocks:        deps.Stocks,
		organizations: deps.Organizations,
		products:      deps.Products,
		unitOfWork:    unit,
		cache:         deps.Cache,
		cacheTTL:      ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	key := orderDetailsKey(orderID)
	if s.cache != nil {
		if value, ok := s.cache.Get(ctx, key); ok {
			if order, ok := value.(Order); ok {
				return order, nil
			}
		}
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, order, s.cacheTTL)
	}
	return order, nil
}

func (s *orderService) GetOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	key := orderItemsKey(orderID)
	if s.cache != nil {
		if value, ok := s.cache.Get(ctx, key); ok {
			if items, ok := value.([]OrderItem); ok {
				return items, nil
			}
		}
	}

	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, items, s.cacheTTL)
	}
	return items, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	cacheable := s.cache != nil && strings.TrimSpace(filter.Pagination.PageToken) == ""
	var key string
	if cacheable {
		key = filteredOrdersKey(filter)
		if value, ok := s.cache.Get(ctx, key); ok {
			if page, ok := value.(domain.CursorPage[Order]); ok {
				return page, nil
			}
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	if cacheable {
		s.cache.Set(ctx, key, page, s.cacheTTL)
	}
	return page, nil
}

// Timeline projects the order's populated lifecycle dates into ascending events.
func (s *orderService) Timeline(ctx context.Context, orderID string) ([]TimelineEvent, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	events := make([]TimelineEvent, 0, 7)
	appendEvent := func(status, label string, at *time.Time) {
		if at == nil || at.IsZero() {
			return
		}
		events = append(events, TimelineEvent{Status: status, Label: label, Date: at.UTC()})
	}

	if !order.DateOrdered.IsZero() {
		events = append(events, TimelineEvent{Status: string(domain.OrderStatusPending), Label: "Order Placed", Date: order.DateOrdered.UTC()})
	}
	appendEvent("pending", "Processing", order.DatePending)
	appendEvent(string(domain.OrderStatusReady), "Ready for Pickup", order.DateReady)
	appendEvent(string(domain.PaymentStatusPaid), "Payment Completed", order.DatePaid)
	appendEvent(string(domain.OrderStatusCompleted), "Order Completed", order.DateCompleted)
	appendEvent(string(domain.OrderStatusCancelled), "Order Cancelled", order.DateCancelled)
	appendEvent(string(domain.PaymentStatusRefunded), "Payment Refunded", order.DateRefunded)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}

// MarkAsReady toggles pending and ready. Direct stock moves between the
// pending and reserved pools inside the same transaction.
func (s *orderService) MarkAsReady(ctx context.Context, cmd OrderToggleCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	var becomingReady bool
	switch order.OrderStatus {
	case domain.OrderStatusPending:
		becomingReady = true
	case domain.OrderStatusReady:
		becomingReady = false
	default:
		return Order{}, fmt.Errorf("%w: order status %q cannot toggle ready", ErrOrderInvalidState, order.OrderStatus)
	}

	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.OrderStatus
	if becomingReady {
		order.OrderStatus = domain.OrderStatusReady
		order.DateReady = &now
	} else {
		order.OrderStatus = domain.OrderStatusPending
		order.DatePending = &now
	}
	appendHistory(&order, string(order.OrderStatus), string(prev), "", now)
	order.UpdatedAt = now

	req := repositories.StockOrderRequest{OrderRef: order.ReferenceNumber, Lines: stockLines(items), Now: now}
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if becomingReady {
			if err := s.stocks.HoldLines(txCtx, req); err != nil {
				return s.mapStockError(err)
			}
		} else {
			if err := s.stocks.ReleaseHold(txCtx, req); err != nil {
				return s.mapStockError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, items)
	s.publishStatusEvent(ctx, order, string(prev), cmd.ActorID, now, nil)
	return order, nil
}

// MarkAsPaid toggles the payment status and moves the commission amount on the
// organization's unpaid balance in the same transaction.
func (s *orderService) MarkAsPaid(ctx context.Context, cmd OrderToggleCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusRefunded {
		return Order{}, fmt.Errorf("%w: refunded orders cannot change payment status", ErrOrderInvalidState)
	}

	now := s.now()
	becomingPaid := order.PaymentStatus == domain.PaymentStatusNotPaid
	prev := order.PaymentStatus
	if becomingPaid {
		order.PaymentStatus = domain.PaymentStatusPaid
		order.DatePaid = &now
		appendHistory(&order, historyStatusPaymentPaid, string(prev), "", now)
	} else {
		order.PaymentStatus = domain.PaymentStatusNotPaid
		appendHistory(&order, historyStatusPaymentUnpaid, string(prev), "", now)
	}
	order.UpdatedAt = now

	delta := domain.Round2(order.CommissionAmount)
	if !becomingPaid {
		delta = -delta
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if delta != 0 {
			if err := s.organizations.AdjustBalance(txCtx, order.OrganizationID, delta, now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, nil)
	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventPaymentChanged,
		OrderID:         order.ID,
		ReferenceNumber: order.ReferenceNumber,
		PreviousStatus:  string(prev),
		CurrentStatus:   string(order.PaymentStatus),
		ActorID:         cmd.ActorID,
		OccurredAt:      now,
	})
	return order, nil
}

// MarkAsClaimed toggles completed and pending. Completion finalises the stock
// counters and the product sales tallies.
func (s *orderService) MarkAsClaimed(ctx context.Context, cmd OrderToggleCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	var becomingCompleted bool
	switch order.OrderStatus {
	case domain.OrderStatusPending, domain.OrderStatusReady:
		becomingCompleted = true
	case domain.OrderStatusCompleted:
		becomingCompleted = false
	default:
		return Order{}, fmt.Errorf("%w: order status %q cannot toggle claimed", ErrOrderInvalidState, order.OrderStatus)
	}

	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.OrderStatus
	if becomingCompleted {
		order.OrderStatus = domain.OrderStatusCompleted
		order.DateCompleted = &now
		order.ReceivedDate = &now
	} else {
		order.OrderStatus = domain.OrderStatusPending
		order.DatePending = &now
	}
	appendHistory(&order, string(order.OrderStatus), string(prev), "", now)
	order.UpdatedAt = now

	req := repositories.StockOrderRequest{OrderRef: order.ReferenceNumber, Lines: stockLines(items), Now: now}
	salesByProduct := quantityByProduct(items)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if becomingCompleted {
			if err := s.stocks.CompleteLines(txCtx, req); err != nil {
				return s.mapStockError(err)
			}
		} else {
			if err := s.stocks.RevertCompletion(txCtx, req); err != nil {
				return s.mapStockError(err)
			}
		}
		for productID, qty := range salesByProduct {
			delta := qty
			if !becomingCompleted {
				delta = -qty
			}
			if err := s.products.AddTotals(txCtx, productID, 0, delta, now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, items)
	s.publishStatusEvent(ctx, order, string(prev), cmd.ActorID, now, nil)
	return order, nil
}

// Cancel terminates a pending or ready order, returning stock to the sellable
// pool and reversing the commission when the order was already paid.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	remarks := strings.TrimSpace(cmd.Remarks)
	if remarks == "" {
		return Order{}, fmt.Errorf("%w: cancellation remarks are required", ErrOrderInvalidInput)
	}

	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.OrderStatus != domain.OrderStatusPending && order.OrderStatus != domain.OrderStatusReady {
		return Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.OrderStatus)
	}

	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.OrderStatus
	order.OrderStatus = domain.OrderStatusCancelled
	order.DateCancelled = &now
	order.Remarks = remarks
	appendHistory(&order, string(domain.OrderStatusCancelled), string(prev), remarks, now)
	order.UpdatedAt = now

	wasPaid := order.PaymentStatus == domain.PaymentStatusPaid
	req := repositories.StockOrderRequest{OrderRef: order.ReferenceNumber, Lines: stockLines(items), Now: now}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.stocks.CancelLines(txCtx, req); err != nil {
			return s.mapStockError(err)
		}
		if wasPaid {
			if err := s.organizations.AdjustBalance(txCtx, order.OrganizationID, -domain.Round2(order.CommissionAmount), now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, items)
	s.publishStatusEvent(ctx, order, string(prev), cmd.ActorID, now, map[string]any{"remarks": remarks})
	return order, nil
}

// MarkAsRefunded reverses the payment of a paid order. Remarks are appended
// to the order's remarks field. The organization balance is untouched; the
// commission reversal happens only when the order itself is cancelled.
func (s *orderService) MarkAsRefunded(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	remarks := strings.TrimSpace(cmd.Remarks)

	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return Order{}, fmt.Errorf("%w: only paid orders can be refunded", ErrOrderInvalidState)
	}

	now := s.now()
	order.PaymentStatus = domain.PaymentStatusRefunded
	order.DateRefunded = &now
	refundNote := "Refund: " + remarks
	if existing := strings.TrimSpace(order.Remarks); existing != "" {
		order.Remarks = existing + "\n" + refundNote
	} else {
		order.Remarks = refundNote
	}
	appendHistory(&order, historyStatusRefunded, string(domain.PaymentStatusPaid), remarks, now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, nil)
	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventPaymentChanged,
		OrderID:         order.ID,
		ReferenceNumber: order.ReferenceNumber,
		PreviousStatus:  string(domain.PaymentStatusPaid),
		CurrentStatus:   string(domain.PaymentStatusRefunded),
		ActorID:         cmd.ActorID,
		OccurredAt:      now,
		Metadata:        map[string]any{"remarks": remarks},
	})
	return order, nil
}

// FlagDiscountRequest records a buyer's discount request flag on the order.
func (s *orderService) FlagDiscountRequest(ctx context.Context, cmd DiscountRequestCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.OrderStatus == domain.OrderStatusCancelled || order.OrderStatus == domain.OrderStatusCompleted {
		return Order{}, fmt.Errorf("%w: order status %q cannot request a discount", ErrOrderInvalidState, order.OrderStatus)
	}

	now := s.now()
	order.IsRequestedForDiscount = cmd.Requested
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateOrderCaches(ctx, order, nil)
	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventDiscountFlagged,
		OrderID:         order.ID,
		ReferenceNumber: order.ReferenceNumber,
		ActorID:         cmd.ActorID,
		OccurredAt:      now,
		Metadata:        map[string]any{"requested": cmd.Requested},
	})
	return order, nil
}

// Internals ------------------------------------------------------------------

func (s *orderService) findOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorVariationNotFound:
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) invalidateOrderCaches(ctx context.Context, order Order, items []OrderItem) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, orderDetailsKey(order.ID))
	s.cache.Delete(ctx, orderItemsKey(order.ID))
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

func (s *orderService) publishStatusEvent(ctx context.Context, order Order, previous, actorID string, now time.Time, metadata map[string]any) {
	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventStatusChanged,
		OrderID:         order.ID,
		ReferenceNumber: order.ReferenceNumber,
		PreviousStatus:  previous,
		CurrentStatus:   string(order.OrderStatus),
		ActorID:         actorID,
		OccurredAt:      now,
		Metadata:        metadata,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func appendHistory(order *Order, status, previous, remarks string, now time.Time) {
	order.StatusHistory = append(order.StatusHistory, StatusHistoryEntry{
		Status:         status,
		PreviousStatus: previous,
		Remarks:        remarks,
		Date:           now,
	})
}

func stockLines(items []OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			IsPreOrder:  item.IsPreOrder,
		})
	}
	return lines
}

func quantityByProduct(items []OrderItem) map[string]int {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}
	return totals
}
