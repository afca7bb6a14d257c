package repositories

import (
	"context"
	"time"

	domain "github.com/unimerch/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Stocks() StockRepository
	Products() ProductRepository
	Organizations() OrganizationRepository
	CommissionPayments() CommissionPaymentRepository
	Accounts() AccountRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a single transactional boundary.
// Repository mutations invoked inside fn join the ambient transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their line items.
type OrderRepository interface {
	// Insert atomically creates the order document and its item subcollection.
	Insert(ctx context.Context, order domain.Order, items []domain.OrderItem) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByReference(ctx context.Context, referenceNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	// ListBetween returns orders placed in [from, to) for aggregation queries.
	ListBetween(ctx context.Context, organizationID string, from, to time.Time) ([]domain.Order, error)
}

// StockRepository mutates variation stock pools with transactional guarantees and
// records every movement in the append-only stock log.
type StockRepository interface {
	// ReserveLines applies checkout effects: direct lines move remainingStocks
	// into pendingOrders, pre-order lines grow preOrderStocks.
	ReserveLines(ctx context.Context, req StockOrderRequest) error
	// HoldLines moves pending quantities into reservedStocks when an order
	// becomes ready for pickup.
	HoldLines(ctx context.Context, req StockOrderRequest) error
	// ReleaseHold reverses HoldLines when a ready order returns to pending.
	ReleaseHold(ctx context.Context, req StockOrderRequest) error
	// CompleteLines finalises claimed orders: reserved or pre-order quantities
	// move into completedOrders.
	CompleteLines(ctx context.Context, req StockOrderRequest) error
	// RevertCompletion undoes CompleteLines when a claim toggles back to pending.
	RevertCompletion(ctx context.Context, req StockOrderRequest) error
	// CancelLines returns cancelled quantities to the sellable pool and logs the
	// movement per line.
	CancelLines(ctx context.Context, req StockOrderRequest) error
	// Adjust applies a manual stock correction outside the order lifecycle.
	Adjust(ctx context.Context, req StockAdjustment) (domain.Variation, error)
	GetVariation(ctx context.Context, productID string, variationID string) (domain.Variation, error)
	ListVariations(ctx context.Context, productID string) ([]domain.Variation, error)
	ListStockLogs(ctx context.Context, productID string, variationID string, pager domain.Pagination) (domain.CursorPage[domain.StocksLog], error)
}

// StockLine identifies one variation quantity affected by an order operation.
type StockLine struct {
	ProductID   string
	VariationID string
	Quantity    int
	IsPreOrder  bool
}

// StockOrderRequest carries the order reference and affected lines for a
// lifecycle stock mutation.
type StockOrderRequest struct {
	OrderRef string
	Lines    []StockLine
	Now      time.Time
}

// StockAdjustment describes a manual stock correction.
type StockAdjustment struct {
	ProductID   string
	VariationID string
	Quantity    int
	Action      domain.StockAction
	Remarks     string
	Now         time.Time
}

// ProductRepository stores product listings and their lifetime order tallies.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AddTotals increments the lifetime order/sales counters atomically.
	AddTotals(ctx context.Context, productID string, ordersDelta int, salesDelta int, now time.Time) error
}

// OrganizationRepository stores seller organizations and their commission balance.
type OrganizationRepository interface {
	Insert(ctx context.Context, org domain.Organization) error
	Update(ctx context.Context, org domain.Organization) error
	FindByID(ctx context.Context, organizationID string) (domain.Organization, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Organization], error)
	// AdjustBalance applies a signed delta to totalDue. The write is blind so it
	// can run after reads inside an ambient transaction.
	AdjustBalance(ctx context.Context, organizationID string, delta float64, now time.Time) error
}

// CommissionPaymentRepository records settlements against organization balances.
type CommissionPaymentRepository interface {
	// Record validates the amount against totalDue, moves the balance, and
	// appends the payment document in one transaction.
	Record(ctx context.Context, req CommissionPaymentRecord) (domain.CommissionPayment, domain.Organization, error)
	List(ctx context.Context, organizationID string, pager domain.Pagination) (domain.CursorPage[domain.CommissionPayment], error)
}

// CommissionPaymentRecord carries the inputs for recording a commission payment.
type CommissionPaymentRecord struct {
	ID             string
	OrganizationID string
	Amount         float64
	Method         string
	Remarks        string
	RecordedBy     string
	Now            time.Time
}

// AccountRepository stores managed sign-in identities.
type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) error
	Update(ctx context.Context, account domain.Account) error
	Delete(ctx context.Context, accountID string) error
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	List(ctx context.Context, filter AccountListFilter) (domain.CursorPage[domain.Account], error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	OrganizationID string
	BuyerID        string
	Status         []domain.OrderStatus
	PaymentStatus  []domain.PaymentStatus
	// BuyerName filters by the case-folded buyer name prefix.
	BuyerName  string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ProductListFilter struct {
	OrganizationID string
	Status         []string
	Category       string
	Pagination     domain.Pagination
}

type AccountListFilter struct {
	Role            []domain.AccountRole
	OrganizationID  string
	IncludeArchived bool
	Pagination      domain.Pagination
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
