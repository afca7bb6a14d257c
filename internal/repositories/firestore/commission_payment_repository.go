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

const commissionPaymentsCollection = "commissionPayments"

// CommissionPaymentRepository implements repositories.CommissionPaymentRepository.
// Payments live in a subcollection beneath the organization so the balance move
// and the payment record commit atomically.
type CommissionPaymentRepository struct {
	provider *pfirestore.Provider
}

// NewCommissionPaymentRepository constructs a Firestore-backed commission payment repository.
func NewCommissionPaymentRepository(provider *pfirestore.Provider) (*CommissionPaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("commission payment repository requires firestore provider")
	}
	return &CommissionPaymentRepository{provider: provider}, nil
}

// Record validates the amount against totalDue, moves the balance, and appends
// the payment document in one transaction.
func (r *CommissionPaymentRepository) Record(ctx context.Context, req repositories.CommissionPaymentRecord) (domain.CommissionPayment, domain.Organization, error) {
	if r == nil || r.provider == nil {
		return domain.CommissionPayment{}, domain.Organization{}, errors.New("commission payment repository not initialised")
	}
	paymentID := strings.TrimSpace(req.ID)
	organizationID := strings.TrimSpace(req.OrganizationID)
	if paymentID == "" || organizationID == "" {
		return domain.CommissionPayment{}, domain.Organization{}, repositories.NewCommissionError(repositories.CommissionErrorInvalidInput, "commission record: payment and organization ids are required", nil)
	}
	amount := domain.Round2(req.Amount)
	if amount <= 0 {
		return domain.CommissionPayment{}, domain.Organization{}, repositories.NewCommissionError(repositories.CommissionErrorInvalidInput, "commission record: amount must be > 0", nil)
	}

	now := req.Now.UTC()
	var (
		payment domain.CommissionPayment
		org     domain.Organization
	)
	err := r.provider.InTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		orgRef := client.Collection(organizationsCollection).Doc(organizationID)
		snap, err := tx.Get(orgRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewCommissionError(repositories.CommissionErrorOrganizationNotFound, fmt.Sprintf("organization %s not found", organizationID), err)
			}
			return err
		}
		var orgDoc organizationDocument
		if err := snap.DataTo(&orgDoc); err != nil {
			return fmt.Errorf("decode organization %s: %w", organizationID, err)
		}

		if amount > orgDoc.TotalDue {
			return repositories.NewCommissionError(repositories.CommissionErrorExceedsBalance, "payment amount exceeds unpaid balance", nil)
		}

		orgDoc.TotalPaid = domain.Round2(orgDoc.TotalPaid + amount)
		orgDoc.TotalDue = domain.Round2(orgDoc.TotalDue - amount)
		orgDoc.LastPaymentDate = &now
		orgDoc.UpdatedAt = now

		paymentStatus := domain.CommissionPaymentPartial
		if orgDoc.TotalDue == 0 {
			paymentStatus = domain.CommissionPaymentCompleted
		}
		paymentDoc := commissionPaymentDocument{
			OrganizationID:   organizationID,
			Amount:           amount,
			RemainingBalance: orgDoc.TotalDue,
			Method:           strings.TrimSpace(req.Method),
			Remarks:          strings.TrimSpace(req.Remarks),
			Status:           string(paymentStatus),
			RecordedBy:       strings.TrimSpace(req.RecordedBy),
			CreatedAt:        now,
		}

		if err := tx.Set(orgRef, orgDoc); err != nil {
			return err
		}
		if err := tx.Create(orgRef.Collection(commissionPaymentsCollection).Doc(paymentID), paymentDoc); err != nil {
			return err
		}

		payment = paymentDoc.toDomain(paymentID)
		org = orgDoc.toDomain(organizationID)
		return nil
	})
	if err != nil {
		return domain.CommissionPayment{}, domain.Organization{}, wrapCommissionError("commissions.record", err)
	}
	return payment, org, nil
}

// List pages through an organization's payments, newest first.
func (r *CommissionPaymentRepository) List(ctx context.Context, organizationID string, pager domain.Pagination) (domain.CursorPage[domain.CommissionPayment], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.CommissionPayment]{}, errors.New("commission payment repository not initialised")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return domain.CursorPage[domain.CommissionPayment]{}, repositories.NewCommissionError(repositories.CommissionErrorInvalidInput, "commission list: organization id is required", nil)
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.CommissionPayment]{}, wrapCommissionError("commissions.list", err)
	}

	query := client.Collection(organizationsCollection).Doc(organizationID).Collection(commissionPaymentsCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		var cursor commissionPaymentPageToken
		if err := decodeJSONPageToken(token, &cursor); err != nil {
			return domain.CursorPage[domain.CommissionPayment]{}, wrapCommissionError("commissions.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var payments []domain.CommissionPayment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.CommissionPayment]{}, wrapCommissionError("commissions.list", err)
		}
		var doc commissionPaymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.CommissionPayment]{}, fmt.Errorf("decode commission payment %s: %w", snap.Ref.ID, err)
		}
		payments = append(payments, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(payments) > pageSize
	if hasMore {
		payments = payments[:pageSize]
	}
	var nextToken string
	if hasMore && len(payments) > 0 {
		last := payments[len(payments)-1]
		encoded, err := encodeJSONPageToken(commissionPaymentPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.CommissionPayment]{}, wrapCommissionError("commissions.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.CommissionPayment]{Items: payments, NextPageToken: nextToken}, nil
}

// Document mapping ----------------------------------------------------------

type commissionPaymentDocument struct {
	OrganizationID   string    `firestore:"organizationId"`
	Amount           float64   `firestore:"amount"`
	RemainingBalance float64   `firestore:"remainingBalance"`
	Method           string    `firestore:"method,omitempty"`
	Remarks          string    `firestore:"remarks,omitempty"`
	Status           string    `firestore:"status"`
	RecordedBy       string    `firestore:"recordedBy"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func (d commissionPaymentDocument) toDomain(id string) domain.CommissionPayment {
	return domain.CommissionPayment{
		ID:               id,
		OrganizationID:   d.OrganizationID,
		Amount:           d.Amount,
		RemainingBalance: d.RemainingBalance,
		Method:           d.Method,
		Remarks:          d.Remarks,
		Status:           domain.CommissionPaymentStatus(d.Status),
		RecordedBy:       d.RecordedBy,
		CreatedAt:        d.CreatedAt,
	}
}

type commissionPaymentPageToken struct {
	ID        string
	CreatedAt time.Time
}

func wrapCommissionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var commErr *repositories.CommissionError
	if errors.As(err, &commErr) {
		if commErr.Op == "" {
			commErr.Op = op
		}
		return commErr
	}
	return pfirestore.WrapError(op, err)
}
