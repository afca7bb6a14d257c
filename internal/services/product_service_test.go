package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/platform/storage"
	"github.com/unimerch/api/internal/repositories"
)

type stubRepoError struct {
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.message }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubAssetSigner struct {
	signFn func(context.Context, string, string, storage.SignedURLOptions) (storage.SignedURLResult, error)
}

func (s *stubAssetSigner) SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error) {
	if s.signFn != nil {
		return s.signFn(ctx, bucket, object, opts)
	}
	return storage.SignedURLResult{}, nil
}

func newTestProductService(t *testing.T, products *stubProductRepo, stocks *stubStockRepo, store cache.Store, assets AssetSigner) ProductService {
	t.Helper()
	svc, err := NewProductService(ProductServiceDeps{
		Products:    products,
		Stocks:      stocks,
		Cache:       store,
		Assets:      assets,
		AssetBucket: "unimerch-assets",
		Clock:       func() time.Time { return orderTestNow },
	})
	if err != nil {
		t.Fatalf("new product service: %v", err)
	}
	return svc
}

func TestProductServiceGetProductReadsThroughCache(t *testing.T) {
	reads := 0
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			reads++
			return domain.Product{ID: productID, Name: "Org Shirt"}, nil
		},
	}
	store := cache.NewMemoryStore(cache.WithClock(func() time.Time { return orderTestNow }))
	svc := newTestProductService(t, products, &stubStockRepo{}, store, nil)

	for i := 0; i < 3; i++ {
		product, err := svc.GetProduct(context.Background(), "prod-1")
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if product.Name != "Org Shirt" {
			t.Fatalf("unexpected product %+v", product)
		}
	}
	if reads != 1 {
		t.Fatalf("expected one repository read, got %d", reads)
	}
}

func TestProductServiceAdjustStock(t *testing.T) {
	var adjusted repositories.StockAdjustment
	stocks := &stubStockRepo{
		adjustFn: func(_ context.Context, req repositories.StockAdjustment) (domain.Variation, error) {
			adjusted = req
			return domain.Variation{ID: req.VariationID, ProductID: req.ProductID, RemainingStocks: 25}, nil
		},
	}
	store := cache.NewMemoryStore(cache.WithClock(func() time.Time { return orderTestNow }))
	store.Set(context.Background(), variationDetailsKey("prod-1", "var-1"), domain.Variation{}, 0)
	svc := newTestProductService(t, &stubProductRepo{}, stocks, store, nil)

	variation, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID:   "prod-1",
		VariationID: "var-1",
		Action:      domain.StockActionIncrement,
		Quantity:    10,
		Remarks:     "restock from supplier",
		ActorID:     "admin-1",
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	if variation.RemainingStocks != 25 {
		t.Fatalf("unexpected variation %+v", variation)
	}
	if adjusted.Action != domain.StockActionIncrement || adjusted.Quantity != 10 {
		t.Fatalf("unexpected adjustment %+v", adjusted)
	}
	if !adjusted.Now.Equal(orderTestNow) {
		t.Fatalf("unexpected adjustment time %v", adjusted.Now)
	}
	if _, ok := store.Get(context.Background(), variationDetailsKey("prod-1", "var-1")); ok {
		t.Fatal("expected variation cache entry to be invalidated")
	}
}

func TestProductServiceAdjustStockValidation(t *testing.T) {
	svc := newTestProductService(t, &stubProductRepo{}, &stubStockRepo{}, nil, nil)

	cases := []struct {
		name string
		cmd  AdjustStockCommand
	}{
		{"missing ids", AdjustStockCommand{Action: domain.StockActionIncrement, Quantity: 1}},
		{"zero quantity", AdjustStockCommand{ProductID: "p", VariationID: "v", Action: domain.StockActionIncrement}},
		{"order action", AdjustStockCommand{ProductID: "p", VariationID: "v", Action: domain.StockActionOrdered, Quantity: 1}},
	}
	for _, tc := range cases {
		if _, err := svc.AdjustStock(context.Background(), tc.cmd); !errors.Is(err, ErrProductInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestProductServiceAdjustStockMapsInsufficient(t *testing.T) {
	stocks := &stubStockRepo{
		adjustFn: func(_ context.Context, _ repositories.StockAdjustment) (domain.Variation, error) {
			return domain.Variation{}, repositories.NewStockError(
				repositories.StockErrorInsufficientStock, "cannot decrement below zero", nil)
		},
	}
	svc := newTestProductService(t, &stubProductRepo{}, stocks, nil, nil)

	_, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID:   "prod-1",
		VariationID: "var-1",
		Action:      domain.StockActionDecrement,
		Quantity:    100,
	})
	if !errors.Is(err, ErrProductStockConflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
}

func TestProductServiceIssuePhotoUpload(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID}, nil
		},
	}
	var signedBucket, signedObject string
	var signedOpts storage.SignedURLOptions
	assets := &stubAssetSigner{
		signFn: func(_ context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error) {
			signedBucket, signedObject, signedOpts = bucket, object, opts
			return storage.SignedURLResult{
				URL:       "https://storage.example/" + object,
				Method:    "PUT",
				ExpiresAt: orderTestNow.Add(15 * time.Minute),
				Headers:   map[string]string{"Content-Type": opts.Upload.ContentType},
			}, nil
		},
	}
	svc := newTestProductService(t, products, &stubStockRepo{}, nil, assets)

	resp, err := svc.IssuePhotoUpload(context.Background(), ProductPhotoCommand{
		ProductID:   "prod-1",
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("issue photo upload: %v", err)
	}

	if signedBucket != "unimerch-assets" || signedObject != "products/prod-1/photo" {
		t.Fatalf("unexpected target %s/%s", signedBucket, signedObject)
	}
	if signedOpts.Upload == nil || signedOpts.Upload.ContentType != "image/png" {
		t.Fatalf("unexpected upload options %+v", signedOpts.Upload)
	}
	if resp.Method != "PUT" || resp.AssetID != "products/prod-1/photo" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProductServiceIssuePhotoUploadRequiresProduct(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{}, stubRepoError{message: "product " + productID + " not found", notFound: true}
		},
	}
	svc := newTestProductService(t, products, &stubStockRepo{}, nil, &stubAssetSigner{})

	_, err := svc.IssuePhotoUpload(context.Background(), ProductPhotoCommand{
		ProductID:   "ghost",
		ContentType: "image/png",
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
