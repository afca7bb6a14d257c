package services

import (
	"context"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	SortOrder           = domain.SortOrder
	Order               = domain.Order
	OrderItem           = domain.OrderItem
	OrderStatus         = domain.OrderStatus
	PaymentStatus       = domain.PaymentStatus
	StatusHistoryEntry  = domain.StatusHistoryEntry
	TimelineEvent       = domain.TimelineEvent
	Product             = domain.Product
	Variation           = domain.Variation
	StocksLog           = domain.StocksLog
	StockAction         = domain.StockAction
	Organization        = domain.Organization
	CommissionPayment   = domain.CommissionPayment
	CommissionSummary   = domain.CommissionSummary
	Account             = domain.Account
	AccountRole         = domain.AccountRole
	ProductSales        = domain.ProductSales
	OrderStats          = domain.OrderStats
	SalesBucket         = domain.SalesBucket
	SalesRange          = domain.SalesRange
	PreOrderComparison  = domain.PreOrderComparison
	SystemHealthReport  = domain.SystemHealthReport
	AuditLogEntry       = domain.AuditLogEntry
	SignedAssetResponse = domain.SignedAssetResponse
)

// OrderService owns the order lifecycle state engine. Every mutation appends a
// status history entry, runs stock and balance moves in one transaction, and
// invalidates the affected cache entries after commit.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Timeline(ctx context.Context, orderID string) ([]TimelineEvent, error)
	MarkAsReady(ctx context.Context, cmd OrderToggleCommand) (Order, error)
	MarkAsPaid(ctx context.Context, cmd OrderToggleCommand) (Order, error)
	MarkAsClaimed(ctx context.Context, cmd OrderToggleCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	MarkAsRefunded(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	FlagDiscountRequest(ctx context.Context, cmd DiscountRequestCommand) (Order, error)
}

// CheckoutService creates orders with their reference number, items, stock
// reservations, and commission amount in a single transaction.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
}

// CommissionService records commission payments against an organization's
// unpaid balance and reports commission standing.
type CommissionService interface {
	RecordPayment(ctx context.Context, cmd RecordCommissionPaymentCommand) (CommissionPayment, Organization, error)
	Summary(ctx context.Context, organizationID string) (CommissionSummary, error)
	ListPayments(ctx context.Context, organizationID string, pager Pagination) (domain.CursorPage[CommissionPayment], error)
}

// AnalyticsService aggregates read-only sales figures. Revenue counts only
// orders whose payment status is paid. Results are cached.
type AnalyticsService interface {
	ProductSales(ctx context.Context, query AnalyticsQuery) ([]ProductSales, error)
	OrderStats(ctx context.Context, query AnalyticsQuery) (OrderStats, error)
	SalesOverTime(ctx context.Context, query SalesOverTimeQuery) ([]SalesBucket, error)
	PreOrderComparison(ctx context.Context, query AnalyticsQuery) (PreOrderComparison, error)
}

// ProductService exposes product and variation reads, manual stock
// adjustments, and signed URLs for product photos.
type ProductService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetVariation(ctx context.Context, productID, variationID string) (Variation, error)
	ListVariations(ctx context.Context, productID string) ([]Variation, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Variation, error)
	ListStockLogs(ctx context.Context, productID, variationID string, pager Pagination) (domain.CursorPage[StocksLog], error)
	IssuePhotoUpload(ctx context.Context, cmd ProductPhotoCommand) (SignedAssetResponse, error)
	IssuePhotoDownload(ctx context.Context, productID string) (SignedAssetResponse, error)
}

// AccountService manages staff and organization accounts over the identity
// provider and the account collection.
type AccountService interface {
	CreateAccount(ctx context.Context, cmd CreateAccountCommand) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountListFilter) (domain.CursorPage[Account], error)
	SetDisabled(ctx context.Context, cmd SetAccountDisabledCommand) (Account, error)
	SetArchived(ctx context.Context, cmd SetAccountArchivedCommand) (Account, error)
	DeleteAccount(ctx context.Context, cmd DeleteAccountCommand) error
	SendPasswordReset(ctx context.Context, cmd PasswordResetCommand) error
}

// SystemService aggregates utility endpoints (health checks, audit logs, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// CounterService issues sequential numbers such as order references and
// receipt numbers on top of transactional counter documents.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

type ProductListFilter = repositories.ProductListFilter

type AccountListFilter = repositories.AccountListFilter

// OrderToggleCommand drives the ready/paid/claimed toggles. Each call flips
// the flag based on the order's current state.
type OrderToggleCommand struct {
	OrderID string
	ActorID string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Remarks string
}

type RefundOrderCommand struct {
	OrderID string
	ActorID string
	Remarks string
}

type DiscountRequestCommand struct {
	OrderID   string
	ActorID   string
	Requested bool
}

// PlaceOrderCommand carries a checkout submission.
type PlaceOrderCommand struct {
	OrganizationID string
	BuyerID        string
	BuyerName      string
	BuyerEmail     string
	Lines          []CheckoutLine
	Remarks        string
	ActorID        string
}

// CheckoutLine names what the buyer wants; unit prices are read from the
// variation documents at placement time, never from the submission.
type CheckoutLine struct {
	ProductID     string
	ProductName   string
	VariationID   string
	VariationName string
	Quantity      int
	IsPreOrder    bool
}

type RecordCommissionPaymentCommand struct {
	OrganizationID string
	Amount         float64
	Method         string
	Remarks        string
	RecordedBy     string
}

// AnalyticsQuery scopes an aggregate to one organization and an optional
// order-date window.
type AnalyticsQuery struct {
	OrganizationID string
	From           *time.Time
	To             *time.Time
}

type SalesOverTimeQuery struct {
	OrganizationID string
	Range          SalesRange
}

type AdjustStockCommand struct {
	ProductID   string
	VariationID string
	Action      StockAction
	Quantity    int
	Remarks     string
	ActorID     string
}

type ProductPhotoCommand struct {
	ProductID   string
	ContentType string
	ActorID     string
}

type CreateAccountCommand struct {
	Email          string
	Password       string
	DisplayName    string
	Role           AccountRole
	OrganizationID string
	ActorID        string
}

type SetAccountDisabledCommand struct {
	AccountID string
	Disabled  bool
	ActorID   string
}

type SetAccountArchivedCommand struct {
	AccountID string
	Archived  bool
	ActorID   string
}

type DeleteAccountCommand struct {
	AccountID string
	ActorID   string
}

type PasswordResetCommand struct {
	Email   string
	ActorID string
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
	SensitiveDiffKeys     []string
	IPAddress             string
	UserAgent             string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
