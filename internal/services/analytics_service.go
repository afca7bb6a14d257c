package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/repositories"
)

// ErrAnalyticsInvalidInput indicates the query parameters are malformed.
var ErrAnalyticsInvalidInput = errors.New("analytics: invalid input")

// AnalyticsServiceDeps bundles the collaborators for the analytics aggregator.
type AnalyticsServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type analyticsService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	cache    cache.Store
	cacheTTL time.Duration
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewAnalyticsService constructs the read-only aggregator over order history.
// Revenue figures only count paid orders; cancelled orders are excluded from
// everything except the cancellation counters.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("analytics service: product repository is required")
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
		ttl = cacheTTLAnalytics
	}

	return &analyticsService{
		orders:   deps.Orders,
		products: deps.Products,
		cache:    deps.Cache,
		cacheTTL: ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ProductSales ranks products by paid revenue inside the query window.
func (s *analyticsService) ProductSales(ctx context.Context, query AnalyticsQuery) ([]ProductSales, error) {
	organizationID, from, to, err := s.resolveWindow(query)
	if err != nil {
		return nil, err
	}

	key := analyticsKey("product_sales", organizationID, windowPart(from), windowPart(to))
	if cached, ok := s.cachedValue(ctx, key); ok {
		if sales, ok := cached.([]ProductSales); ok {
			return sales, nil
		}
	}

	orders, err := s.orders.ListBetween(ctx, organizationID, from, to)
	if err != nil {
		return nil, err
	}

	totals := map[string]*ProductSales{}
	names := map[string]string{}
	for _, order := range orders {
		if !countsForRevenue(order) {
			continue
		}
		items, err := s.orders.ListItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			entry, ok := totals[item.ProductID]
			if !ok {
				entry = &ProductSales{ProductID: item.ProductID}
				totals[item.ProductID] = entry
			}
			entry.Quantity += item.Quantity
			entry.Revenue = domain.Round2(entry.Revenue + lineRevenue(item))
		}
	}

	sales := make([]ProductSales, 0, len(totals))
	for productID, entry := range totals {
		entry.ProductName = s.productName(ctx, names, productID)
		sales = append(sales, *entry)
	}
	sort.Slice(sales, func(i, j int) bool {
		if sales[i].Revenue != sales[j].Revenue {
			return sales[i].Revenue > sales[j].Revenue
		}
		return sales[i].ProductID < sales[j].ProductID
	})

	s.cacheValue(ctx, key, sales)
	return sales, nil
}

// OrderStats counts orders by lifecycle and payment status over the window.
func (s *analyticsService) OrderStats(ctx context.Context, query AnalyticsQuery) (OrderStats, error) {
	organizationID, from, to, err := s.resolveWindow(query)
	if err != nil {
		return OrderStats{}, err
	}

	key := analyticsKey("order_stats", organizationID, windowPart(from), windowPart(to))
	if cached, ok := s.cachedValue(ctx, key); ok {
		if stats, ok := cached.(OrderStats); ok {
			return stats, nil
		}
	}

	orders, err := s.orders.ListBetween(ctx, organizationID, from, to)
	if err != nil {
		return OrderStats{}, err
	}

	var stats OrderStats
	for _, order := range orders {
		stats.TotalOrders++
		switch order.OrderStatus {
		case domain.OrderStatusPending:
			stats.PendingOrders++
		case domain.OrderStatusReady:
			stats.ReadyOrders++
		case domain.OrderStatusCompleted:
			stats.CompletedOrders++
		case domain.OrderStatusCancelled:
			stats.CancelledOrders++
		}
		switch order.PaymentStatus {
		case domain.PaymentStatusPaid:
			stats.PaidOrders++
		case domain.PaymentStatusRefunded:
			stats.RefundedOrders++
		default:
			stats.UnpaidOrders++
		}
		if order.OrderStatus != domain.OrderStatusCancelled {
			stats.TotalRevenue = domain.Round2(stats.TotalRevenue + order.TotalPrice)
		}
		if countsForRevenue(order) {
			stats.PaidRevenue = domain.Round2(stats.PaidRevenue + order.TotalPrice)
		}
	}

	s.cacheValue(ctx, key, stats)
	return stats, nil
}

// SalesOverTime buckets paid revenue into UTC days for the requested range.
// Every day in the range appears in the result, zero-filled when quiet.
func (s *analyticsService) SalesOverTime(ctx context.Context, query SalesOverTimeQuery) ([]SalesBucket, error) {
	organizationID := strings.TrimSpace(query.OrganizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrAnalyticsInvalidInput)
	}

	now := s.clock()
	from, err := rangeStart(query.Range, now)
	if err != nil {
		return nil, err
	}

	key := analyticsKey("sales_over_time", organizationID, string(query.Range), windowPart(now.Truncate(24*time.Hour)))
	if cached, ok := s.cachedValue(ctx, key); ok {
		if buckets, ok := cached.([]SalesBucket); ok {
			return buckets, nil
		}
	}

	orders, err := s.orders.ListBetween(ctx, organizationID, from, now)
	if err != nil {
		return nil, err
	}

	byDay := map[time.Time]*SalesBucket{}
	for day := dayOf(from); !day.After(dayOf(now)); day = day.AddDate(0, 0, 1) {
		byDay[day] = &SalesBucket{Date: day}
	}
	for _, order := range orders {
		if !countsForRevenue(order) {
			continue
		}
		day := dayOf(revenueDate(order))
		bucket, ok := byDay[day]
		if !ok {
			continue
		}
		bucket.Count++
		bucket.Revenue = domain.Round2(bucket.Revenue + order.TotalPrice)
	}

	buckets := make([]SalesBucket, 0, len(byDay))
	for _, bucket := range byDay {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})

	s.cacheValue(ctx, key, buckets)
	return buckets, nil
}

// PreOrderComparison contrasts pre-order against direct volume for paid orders.
func (s *analyticsService) PreOrderComparison(ctx context.Context, query AnalyticsQuery) (PreOrderComparison, error) {
	organizationID, from, to, err := s.resolveWindow(query)
	if err != nil {
		return PreOrderComparison{}, err
	}

	key := analyticsKey("preorder_comparison", organizationID, windowPart(from), windowPart(to))
	if cached, ok := s.cachedValue(ctx, key); ok {
		if comparison, ok := cached.(PreOrderComparison); ok {
			return comparison, nil
		}
	}

	orders, err := s.orders.ListBetween(ctx, organizationID, from, to)
	if err != nil {
		return PreOrderComparison{}, err
	}

	var comparison PreOrderComparison
	for _, order := range orders {
		if !countsForRevenue(order) {
			continue
		}
		items, err := s.orders.ListItems(ctx, order.ID)
		if err != nil {
			return PreOrderComparison{}, err
		}
		for _, item := range items {
			if item.IsPreOrder {
				comparison.PreOrderQuantity += item.Quantity
				comparison.PreOrderRevenue = domain.Round2(comparison.PreOrderRevenue + lineRevenue(item))
			} else {
				comparison.DirectQuantity += item.Quantity
				comparison.DirectRevenue = domain.Round2(comparison.DirectRevenue + lineRevenue(item))
			}
		}
	}

	s.cacheValue(ctx, key, comparison)
	return comparison, nil
}

func (s *analyticsService) resolveWindow(query AnalyticsQuery) (string, time.Time, time.Time, error) {
	organizationID := strings.TrimSpace(query.OrganizationID)
	if organizationID == "" {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: organization id is required", ErrAnalyticsInvalidInput)
	}

	var from time.Time
	if query.From != nil {
		from = query.From.UTC()
	}
	to := s.clock()
	if query.To != nil {
		to = query.To.UTC()
	}
	if !from.IsZero() && to.Before(from) {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: window end precedes start", ErrAnalyticsInvalidInput)
	}
	return organizationID, from, to, nil
}

func (s *analyticsService) productName(ctx context.Context, memo map[string]string, productID string) string {
	if name, ok := memo[productID]; ok {
		return name
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		s.logger(ctx, "analytics.product.lookup.failed", map[string]any{
			"product": productID,
			"error":   err.Error(),
		})
		memo[productID] = ""
		return ""
	}
	memo[productID] = product.Name
	return product.Name
}

func (s *analyticsService) cachedValue(ctx context.Context, key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *analyticsService) cacheValue(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	s.cache.Set(ctx, key, value, s.cacheTTL)
}

// countsForRevenue reports whether the order contributes to revenue figures.
// Refunded orders stay excluded even though they were paid at some point.
func countsForRevenue(order domain.Order) bool {
	return order.PaymentStatus == domain.PaymentStatusPaid &&
		order.OrderStatus != domain.OrderStatusCancelled
}

func lineRevenue(item domain.OrderItem) float64 {
	if item.DiscountedPrice > 0 {
		return domain.Round2(float64(item.Quantity) * item.DiscountedPrice)
	}
	return item.TotalPrice
}

// revenueDate picks the day a paid order is attributed to.
func revenueDate(order domain.Order) time.Time {
	if order.DatePaid != nil {
		return *order.DatePaid
	}
	return order.DateOrdered
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func rangeStart(r SalesRange, now time.Time) (time.Time, error) {
	switch r {
	case domain.SalesRangeWeek, "":
		return now.AddDate(0, 0, -6), nil
	case domain.SalesRange30Days:
		return now.AddDate(0, 0, -29), nil
	case domain.SalesRangeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case domain.SalesRangeQuarter:
		quarterMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
		return time.Date(now.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC), nil
	case domain.SalesRangeYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported range %q", ErrAnalyticsInvalidInput, r)
	}
}

func windowPart(t time.Time) string {
	if t.IsZero() {
		return "all"
	}
	return t.UTC().Format("20060102")
}
