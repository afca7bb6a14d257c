package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/unimerch/api/internal/platform/firestore"
	"github.com/unimerch/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind the repositories.Registry
// contract and shares one provider-backed transaction scope between them.
type Registry struct {
	provider *pfirestore.Provider

	orders             *OrderRepository
	stocks             *StockRepository
	products           *ProductRepository
	organizations      *OrganizationRepository
	commissionPayments *CommissionPaymentRepository
	accounts           *AccountRepository
	auditLogs          *AuditLogRepository
	counters           *CounterRepository
	health             repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryDeps carries the inputs needed to build the registry.
type RegistryDeps struct {
	Provider    *pfirestore.Provider
	IDGenerator func() string
	Health      repositories.HealthRepository
}

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("registry requires an id generator")
	}

	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	stocks, err := NewStockRepository(deps.Provider, deps.IDGenerator)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	organizations, err := NewOrganizationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	commissionPayments, err := NewCommissionPaymentRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	accounts, err := NewAccountRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:           deps.Provider,
		orders:             orders,
		stocks:             stocks,
		products:           products,
		organizations:      organizations,
		commissionPayments: commissionPayments,
		accounts:           accounts,
		auditLogs:          auditLogs,
		counters:           counters,
		health:             deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx opens a Firestore transaction and places it in the context so that
// repository mutations invoked inside fn join the same transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTransaction(txCtx, tx))
	})
}

func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Stocks() repositories.StockRepository           { return r.stocks }
func (r *Registry) Products() repositories.ProductRepository       { return r.products }
func (r *Registry) Organizations() repositories.OrganizationRepository {
	return r.organizations
}
func (r *Registry) CommissionPayments() repositories.CommissionPaymentRepository {
	return r.commissionPayments
}
func (r *Registry) Accounts() repositories.AccountRepository { return r.accounts }
func (r *Registry) AuditLogs() repositories.AuditLogRepository {
	return r.auditLogs
}
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }
