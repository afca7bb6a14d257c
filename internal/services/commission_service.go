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

const commissionPaymentIDPrefix = "pay_"

var (
	// ErrCommissionInvalidInput signals the caller provided invalid data.
	ErrCommissionInvalidInput = errors.New("commission: invalid input")
	// ErrCommissionNotFound indicates the organization could not be located.
	ErrCommissionNotFound = errors.New("commission: organization not found")
	// ErrCommissionExceedsBalance indicates the payment is larger than the unpaid balance.
	ErrCommissionExceedsBalance = errors.New("commission: payment amount exceeds unpaid balance")
	// ErrCommissionConflict indicates concurrent modification prevented the operation.
	ErrCommissionConflict = errors.New("commission: conflict")
)

// CommissionServiceDeps bundles collaborators required to construct the commission service.
type CommissionServiceDeps struct {
	Payments      repositories.CommissionPaymentRepository
	Organizations repositories.OrganizationRepository
	Orders        repositories.OrderRepository
	Cache         cache.Store
	CacheTTL      time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type commissionService struct {
	payments      repositories.CommissionPaymentRepository
	organizations repositories.OrganizationRepository
	orders        repositories.OrderRepository
	cache         cache.Store
	cacheTTL      time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewCommissionService wires dependencies into a concrete CommissionService implementation.
func NewCommissionService(deps CommissionServiceDeps) (CommissionService, error) {
	if deps.Payments == nil {
		return nil, errors.New("commission service: payment repository is required")
	}
	if deps.Organizations == nil {
		return nil, errors.New("commission service: organization repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("commission service: order repository is required")
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

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = cacheTTLAnalytics
	}

	return &commissionService{
		payments:      deps.Payments,
		organizations: deps.Organizations,
		orders:        deps.Orders,
		cache:         deps.Cache,
		cacheTTL:      ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// RecordPayment settles part or all of an organization's unpaid commission
// balance. The balance move and the payment record commit atomically.
func (s *commissionService) RecordPayment(ctx context.Context, cmd RecordCommissionPaymentCommand) (CommissionPayment, Organization, error) {
	organizationID := strings.TrimSpace(cmd.OrganizationID)
	if organizationID == "" {
		return CommissionPayment{}, Organization{}, fmt.Errorf("%w: organization id is required", ErrCommissionInvalidInput)
	}
	if cmd.Amount <= 0 {
		return CommissionPayment{}, Organization{}, fmt.Errorf("%w: amount must be positive", ErrCommissionInvalidInput)
	}

	now := s.now()
	payment, org, err := s.payments.Record(ctx, repositories.CommissionPaymentRecord{
		ID:             commissionPaymentIDPrefix + s.newID(),
		OrganizationID: organizationID,
		Amount:         domain.Round2(cmd.Amount),
		Method:         strings.TrimSpace(cmd.Method),
		Remarks:        strings.TrimSpace(cmd.Remarks),
		RecordedBy:     strings.TrimSpace(cmd.RecordedBy),
		Now:            now,
	})
	if err != nil {
		return CommissionPayment{}, Organization{}, s.mapError(err)
	}

	s.invalidateCommissionCaches(ctx, organizationID)
	s.logger(ctx, "commission.payment.recorded", map[string]any{
		"organization": organizationID,
		"payment":      payment.ID,
		"amount":       payment.Amount,
		"remaining":    payment.RemainingBalance,
	})
	return payment, org, nil
}

// Summary reports the organization's commission standing: outstanding and
// settled totals plus the paid/unpaid order split and recent payments.
func (s *commissionService) Summary(ctx context.Context, organizationID string) (CommissionSummary, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return CommissionSummary{}, fmt.Errorf("%w: organization id is required", ErrCommissionInvalidInput)
	}

	key := analyticsKey("commissions", organizationID)
	if s.cache != nil {
		if value, ok := s.cache.Get(ctx, key); ok {
			if summary, ok := value.(CommissionSummary); ok {
				return summary, nil
			}
		}
	}

	org, err := s.organizations.FindByID(ctx, organizationID)
	if err != nil {
		return CommissionSummary{}, s.mapError(err)
	}

	now := s.now()
	orders, err := s.orders.ListBetween(ctx, organizationID, time.Time{}, now)
	if err != nil {
		return CommissionSummary{}, s.mapError(err)
	}

	summary := CommissionSummary{
		OrganizationID: organizationID,
		TotalDue:       domain.Round2(org.TotalDue),
		TotalPaid:      domain.Round2(org.TotalPaid),
	}
	for _, order := range orders {
		if order.OrderStatus == domain.OrderStatusCancelled {
			continue
		}
		if order.PaymentStatus == domain.PaymentStatusPaid {
			summary.PaidOrders++
		} else {
			summary.UnpaidOrders++
		}
	}

	page, err := s.payments.List(ctx, organizationID, Pagination{PageSize: 50})
	if err != nil {
		return CommissionSummary{}, s.mapError(err)
	}
	summary.Payments = page.Items

	if s.cache != nil {
		s.cache.Set(ctx, key, summary, s.cacheTTL)
	}
	return summary, nil
}

// ListPayments pages through an organization's payment history, newest first.
func (s *commissionService) ListPayments(ctx context.Context, organizationID string, pager Pagination) (domain.CursorPage[CommissionPayment], error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return domain.CursorPage[CommissionPayment]{}, fmt.Errorf("%w: organization id is required", ErrCommissionInvalidInput)
	}
	page, err := s.payments.List(ctx, organizationID, pager)
	if err != nil {
		return domain.CursorPage[CommissionPayment]{}, s.mapError(err)
	}
	return page, nil
}

func (s *commissionService) invalidateCommissionCaches(ctx context.Context, organizationID string) {
	if s.cache == nil {
		return
	}
	s.cache.DeleteContaining(ctx, organizationID)
	s.cache.DeletePrefix(ctx, analyticsCachePrefix)
}

func (s *commissionService) mapError(err error) error {
	if err == nil {
		return nil
	}

	var commErr *repositories.CommissionError
	if errors.As(err, &commErr) {
		switch commErr.Code {
		case repositories.CommissionErrorExceedsBalance:
			return fmt.Errorf("%w: %s", ErrCommissionExceedsBalance, commErr.Message)
		case repositories.CommissionErrorOrganizationNotFound:
			return fmt.Errorf("%w: %v", ErrCommissionNotFound, err)
		case repositories.CommissionErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrCommissionInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCommissionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCommissionConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("commission: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *commissionService) now() time.Time {
	return s.clock()
}
