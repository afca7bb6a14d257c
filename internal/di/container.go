package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/platform/config"
	"github.com/unimerch/api/internal/platform/mail"
	"github.com/unimerch/api/internal/repositories"
	"github.com/unimerch/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Checkout    services.CheckoutService
	Orders      services.OrderService
	Products    services.ProductService
	Commissions services.CommissionService
	Analytics   services.AnalyticsService
	Accounts    services.AccountService
	Counters    services.CounterService
	System      services.SystemService
	Audit       services.AuditLogService
}

// Deps carries the infrastructure collaborators the container wires into
// services. Optional fields degrade gracefully: a nil Events publisher skips
// event emission, a nil Identity admin leaves account management unwired.
type Deps struct {
	Registry repositories.Registry
	Cache    cache.Store
	Events   services.OrderEventPublisher
	Identity services.IdentityAdmin
	Mailer   mail.Sender
	Assets   services.AssetSigner
	Build    services.BuildInfo
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring supplies real
// implementations, while tests can provide in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	ordersRepo := reg.Orders()
	stocksRepo := reg.Stocks()
	productsRepo := reg.Products()
	organizationsRepo := reg.Organizations()

	if ordersRepo != nil && stocksRepo != nil && organizationsRepo != nil && productsRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:        ordersRepo,
			Stocks:        stocksRepo,
			Organizations: organizationsRepo,
			Products:      productsRepo,
			UnitOfWork:    reg,
			Cache:         deps.Cache,
			CacheTTL:      cfg.Cache.OrderTTL,
			Clock:         clock,
			Events:        deps.Events,
			Logger:        deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc

		if counterRepo != nil {
			checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
				Orders:           ordersRepo,
				Stocks:           stocksRepo,
				Organizations:    organizationsRepo,
				Products:         productsRepo,
				Counters:         counterRepo,
				UnitOfWork:       reg,
				Cache:            deps.Cache,
				Clock:            clock,
				Events:           deps.Events,
				Logger:           deps.Logger,
				DisablePreOrders: !cfg.Features.EnablePreOrders,
			})
			if err != nil {
				return Services{}, fmt.Errorf("build checkout service: %w", err)
			}
			svc.Checkout = checkoutSvc
		}
	}

	if productsRepo != nil && stocksRepo != nil {
		productSvc, err := services.NewProductService(services.ProductServiceDeps{
			Products:    productsRepo,
			Stocks:      stocksRepo,
			Cache:       deps.Cache,
			CacheTTL:    cfg.Cache.ProductTTL,
			Assets:      deps.Assets,
			AssetBucket: cfg.Storage.AssetsBucket,
			Clock:       clock,
			Logger:      deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build product service: %w", err)
		}
		svc.Products = productSvc
	}

	if paymentsRepo := reg.CommissionPayments(); paymentsRepo != nil && organizationsRepo != nil && ordersRepo != nil {
		commissionSvc, err := services.NewCommissionService(services.CommissionServiceDeps{
			Payments:      paymentsRepo,
			Organizations: organizationsRepo,
			Orders:        ordersRepo,
			Cache:         deps.Cache,
			CacheTTL:      cfg.Cache.AnalyticsTTL,
			Clock:         clock,
			Logger:        deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build commission service: %w", err)
		}
		svc.Commissions = commissionSvc
	}

	if ordersRepo != nil && productsRepo != nil {
		analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
			Orders:   ordersRepo,
			Products: productsRepo,
			Cache:    deps.Cache,
			CacheTTL: cfg.Cache.AnalyticsTTL,
			Clock:    clock,
			Logger:   deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build analytics service: %w", err)
		}
		svc.Analytics = analyticsSvc
	}

	if accountsRepo := reg.Accounts(); accountsRepo != nil && deps.Identity != nil {
		accountSvc, err := services.NewAccountService(services.AccountServiceDeps{
			Accounts: accountsRepo,
			Identity: deps.Identity,
			Mailer:   deps.Mailer,
			Audit:    svc.Audit,
			Clock:    clock,
			Logger:   deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build account service: %w", err)
		}
		svc.Accounts = accountSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
			Audit:            svc.Audit,
			Counters:         svc.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
