package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus describes the fulfilment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is placed and awaiting preparation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusReady indicates the order is prepared and waiting for pickup.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusCompleted indicates the buyer has claimed the order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled and stock returned.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus describes the payment lifecycle of an order.
type PaymentStatus string

const (
	// PaymentStatusNotPaid indicates no payment has been recorded.
	PaymentStatusNotPaid PaymentStatus = "not_paid"
	// PaymentStatusPaid indicates the organization recorded the buyer's payment.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates a recorded payment was returned to the buyer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// StatusHistoryEntry records a single transition in an order's audit trail.
type StatusHistoryEntry struct {
	Status         string
	PreviousStatus string
	Remarks        string
	Date           time.Time
}

// Order is the canonical order document shared across layers.
type Order struct {
	ID                     string
	ReferenceNumber        string
	BuyerID                string
	BuyerName              string
	BuyerEmail             string
	OrganizationID         string
	OrganizationName       string
	OrderStatus            OrderStatus
	PaymentStatus          PaymentStatus
	TotalPrice             float64
	CommissionRate         float64
	CommissionAmount       float64
	Remarks                string
	IsRequestedForDiscount bool
	DiscountValue          float64
	StatusHistory          []StatusHistoryEntry
	DateOrdered            time.Time
	DatePending            *time.Time
	DateReady              *time.Time
	DatePaid               *time.Time
	DateCompleted          *time.Time
	DateCancelled          *time.Time
	DateRefunded           *time.Time
	ReceivedDate           *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// OrderItem is a purchased line within an order. Quantities are immutable after
// checkout; stock effects are applied through the variation counters instead.
type OrderItem struct {
	ID              string
	OrderID         string
	ProductID       string
	VariationID     string
	VariationName   string
	IsPreOrder      bool
	Quantity        int
	Price           float64
	DiscountedPrice float64
	TotalPrice      float64
}

// TimelineEvent is a single entry in the chronological order timeline projection.
type TimelineEvent struct {
	Status string
	Label  string
	Date   time.Time
}

// Product groups sellable variations under one organization listing.
type Product struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	Status         string
	Category       string
	PhotoURL       string
	TotalOrders    int
	TotalSales     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Variation is a sellable flavour of a product with its own price and stock pools.
//
// Counter semantics: RemainingStocks is the sellable pool, PendingOrders counts
// unfulfilled direct orders, ReservedStocks counts stock held for ready orders,
// PreOrderStocks counts committed pre-orders, and CompletedOrders/CancelledOrders
// are lifetime tallies.
type Variation struct {
	ID              string
	ProductID       string
	Name            string
	Price           float64
	DiscountPrice   float64
	RemainingStocks int
	PendingOrders   int
	ReservedStocks  int
	PreOrderStocks  int
	CompletedOrders int
	CancelledOrders int
	LastStockUpdate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockAction enumerates the movement kinds recorded in the stock log.
type StockAction string

const (
	// StockActionOrdered records a decrement caused by a direct-order checkout.
	StockActionOrdered StockAction = "ordered"
	// StockActionDecrement records a manual stock reduction.
	StockActionDecrement StockAction = "decrement"
	// StockActionIncrement records a manual stock addition.
	StockActionIncrement StockAction = "increment"
	// StockActionCancelled records stock returned by a cancelled order.
	StockActionCancelled StockAction = "cancelled"
	// StockActionRestock records replenishment from the organization.
	StockActionRestock StockAction = "restock"
)

// StocksLog is an append-only record of one stock movement on a variation.
type StocksLog struct {
	ID          string
	VariationID string
	Quantity    int
	Action      StockAction
	Remarks     string
	CreatedAt   time.Time
}

// Organization is a seller on the marketplace with a running commission balance.
type Organization struct {
	ID              string
	Name            string
	ContactEmail    string
	LogoImageURL    string
	CommissionRate  float64
	TotalDue        float64
	TotalPaid       float64
	LastPaymentDate *time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CommissionPaymentStatus describes how far a payment settled the balance.
type CommissionPaymentStatus string

const (
	// CommissionPaymentCompleted indicates the payment cleared the whole balance.
	CommissionPaymentCompleted CommissionPaymentStatus = "completed"
	// CommissionPaymentPartial indicates a balance remains after the payment.
	CommissionPaymentPartial CommissionPaymentStatus = "partial"
)

// CommissionPayment records a settlement an organization made against its
// commission balance.
type CommissionPayment struct {
	ID               string
	OrganizationID   string
	Amount           float64
	RemainingBalance float64
	Method           string
	Remarks          string
	Status           CommissionPaymentStatus
	RecordedBy       string
	CreatedAt        time.Time
}

// AccountRole separates platform staff from organization managers.
type AccountRole string

const (
	// AccountRoleAdmin marks platform staff accounts.
	AccountRoleAdmin AccountRole = "admin"
	// AccountRoleOrganization marks organization manager accounts.
	AccountRoleOrganization AccountRole = "organization"
)

// Account is a managed sign-in identity. The ID mirrors the Firebase UID.
type Account struct {
	ID             string
	Email          string
	DisplayName    string
	Role           AccountRole
	OrganizationID string
	Disabled       bool
	Archived       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductSales aggregates revenue and quantity for one product. Only paid
// orders contribute.
type ProductSales struct {
	ProductID   string
	ProductName string
	Quantity    int
	Revenue     float64
}

// OrderStats summarises order and payment status counts for an organization.
type OrderStats struct {
	TotalOrders     int
	PendingOrders   int
	ReadyOrders     int
	CompletedOrders int
	CancelledOrders int
	PaidOrders      int
	UnpaidOrders    int
	RefundedOrders  int
	TotalRevenue    float64
	PaidRevenue     float64
}

// SalesBucket is one UTC day of paid sales within a SalesOverTime range.
type SalesBucket struct {
	Date    time.Time
	Count   int
	Revenue float64
}

// SalesRange enumerates the supported sales-over-time windows.
type SalesRange string

const (
	// SalesRangeWeek covers the trailing 7 days.
	SalesRangeWeek SalesRange = "week"
	// SalesRange30Days covers the trailing 30 days.
	SalesRange30Days SalesRange = "30days"
	// SalesRangeMonth covers the current calendar month.
	SalesRangeMonth SalesRange = "month"
	// SalesRangeQuarter covers the current calendar quarter.
	SalesRangeQuarter SalesRange = "quarter"
	// SalesRangeYear covers the current calendar year.
	SalesRangeYear SalesRange = "year"
)

// PreOrderComparison contrasts pre-order and direct-order volume.
type PreOrderComparison struct {
	PreOrderQuantity int
	PreOrderRevenue  float64
	DirectQuantity   int
	DirectRevenue    float64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// SignedAssetResponse returns signed URL payloads for upload/download flows.
type SignedAssetResponse struct {
	AssetID   string
	URL       string
	ExpiresAt time.Time
	Method    string
	Headers   map[string]string
}

// CommissionSummary reports an organization's commission standing.
type CommissionSummary struct {
	OrganizationID string
	TotalDue       float64
	TotalPaid      float64
	PaidOrders     int
	UnpaidOrders   int
	Payments       []CommissionPayment
}
