package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/cache"
	"github.com/unimerch/api/internal/platform/storage"
	"github.com/unimerch/api/internal/repositories"
)

const (
	productPhotoMaxSize      = 10 << 20
	productPhotoUploadExpiry = 15 * time.Minute
	productPhotoDownloadTTL  = time.Hour
	productPhotoCacheControl = "public, max-age=3600"
)

var productPhotoContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	// ErrProductInvalidInput indicates the request parameters are malformed.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product or variation does not exist.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductConflict indicates a concurrent modification prevented the operation.
	ErrProductConflict = errors.New("product: conflict")
	// ErrProductStockConflict indicates the adjustment would drive a pool negative.
	ErrProductStockConflict = errors.New("product: stock conflict")
)

// AssetSigner issues signed URLs against the asset bucket.
type AssetSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// ProductServiceDeps bundles the collaborators for the product service.
type ProductServiceDeps struct {
	Products    repositories.ProductRepository
	Stocks      repositories.StockRepository
	Cache       cache.Store
	CacheTTL    time.Duration
	Assets      AssetSigner
	AssetBucket string
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productService struct {
	products    repositories.ProductRepository
	stocks      repositories.StockRepository
	cache       cache.Store
	cacheTTL    time.Duration
	assets      AssetSigner
	assetBucket string
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewProductService wires dependencies into a concrete ProductService.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("product service: stock repository is required")
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
		ttl = cacheTTLProducts
	}

	return &productService{
		products:    deps.Products,
		stocks:      deps.Stocks,
		cache:       deps.Cache,
		cacheTTL:    ttl,
		assets:      deps.Assets,
		assetBucket: strings.TrimSpace(deps.AssetBucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	key := productDetailsKey(productID)
	if s.cache != nil {
		if value, ok := s.cache.Get(ctx, key); ok {
			if product, ok := value.(Product); ok {
				return product, nil
			}
		}
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, product, s.cacheTTL)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *productService) GetVariation(ctx context.Context, productID, variationID string) (Variation, error) {
	productID = strings.TrimSpace(productID)
	variationID = strings.TrimSpace(variationID)
	if productID == "" || variationID == "" {
		return Variation{}, fmt.Errorf("%w: product and variation ids are required", ErrProductInvalidInput)
	}

	key := variationDetailsKey(productID, variationID)
	if s.cache != nil {
		if value, ok := s.cache.Get(ctx, key); ok {
			if variation, ok := value.(Variation); ok {
				return variation, nil
			}
		}
	}

	variation, err := s.stocks.GetVariation(ctx, productID, variationID)
	if err != nil {
		return Variation{}, s.mapStockError(err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, variation, s.cacheTTL)
	}
	return variation, nil
}

func (s *productService) ListVariations(ctx context.Context, productID string) ([]Variation, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	variations, err := s.stocks.ListVariations(ctx, productID)
	if err != nil {
		return nil, s.mapStockError(err)
	}
	return variations, nil
}

// AdjustStock applies a manual correction to a variation's sellable pool and
// returns the updated counters. The movement lands in the stock log with the
// operator's remarks.
func (s *productService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Variation, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	variationID := strings.TrimSpace(cmd.VariationID)
	if productID == "" || variationID == "" {
		return Variation{}, fmt.Errorf("%w: product and variation ids are required", ErrProductInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Variation{}, fmt.Errorf("%w: quantity must be positive", ErrProductInvalidInput)
	}
	switch cmd.Action {
	case domain.StockActionIncrement, domain.StockActionDecrement, domain.StockActionRestock:
	default:
		return Variation{}, fmt.Errorf("%w: unsupported stock action %q", ErrProductInvalidInput, cmd.Action)
	}

	now := s.clock()
	variation, err := s.stocks.Adjust(ctx, repositories.StockAdjustment{
		ProductID:   productID,
		VariationID: variationID,
		Quantity:    cmd.Quantity,
		Action:      cmd.Action,
		Remarks:     strings.TrimSpace(cmd.Remarks),
		Now:         now,
	})
	if err != nil {
		return Variation{}, s.mapStockError(err)
	}

	s.invalidateProductCaches(ctx, productID, variationID)
	s.logger(ctx, "product.stock.adjusted", map[string]any{
		"product":   productID,
		"variation": variationID,
		"action":    string(cmd.Action),
		"quantity":  cmd.Quantity,
		"actor":     cmd.ActorID,
	})
	return variation, nil
}

func (s *productService) ListStockLogs(ctx context.Context, productID, variationID string, pager Pagination) (domain.CursorPage[StocksLog], error) {
	productID = strings.TrimSpace(productID)
	variationID = strings.TrimSpace(variationID)
	if productID == "" || variationID == "" {
		return domain.CursorPage[StocksLog]{}, fmt.Errorf("%w: product and variation ids are required", ErrProductInvalidInput)
	}
	page, err := s.stocks.ListStockLogs(ctx, productID, variationID, pager)
	if err != nil {
		return domain.CursorPage[StocksLog]{}, s.mapStockError(err)
	}
	return page, nil
}

// IssuePhotoUpload returns a short-lived signed PUT URL for the product photo.
func (s *productService) IssuePhotoUpload(ctx context.Context, cmd ProductPhotoCommand) (SignedAssetResponse, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	if s.assets == nil || s.assetBucket == "" {
		return SignedAssetResponse{}, errors.New("product: asset signing is not configured")
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return SignedAssetResponse{}, s.mapRepositoryError(err)
	}

	object, err := storage.BuildObjectPath(storage.PurposeProductPhoto, storage.PathParams{ProductID: productID})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
	}

	result, err := s.assets.SignedURL(ctx, s.assetBucket, object, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              "PUT",
			ContentType:         strings.TrimSpace(cmd.ContentType),
			AllowedContentTypes: productPhotoContentTypes,
			MaxSize:             productPhotoMaxSize,
			ExpiresIn:           productPhotoUploadExpiry,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("product: sign photo upload: %w", err)
	}

	return SignedAssetResponse{
		AssetID:   object,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Method:    result.Method,
		Headers:   result.Headers,
	}, nil
}

// IssuePhotoDownload returns a signed GET URL for the product photo.
func (s *productService) IssuePhotoDownload(ctx context.Context, productID string) (SignedAssetResponse, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	if s.assets == nil || s.assetBucket == "" {
		return SignedAssetResponse{}, errors.New("product: asset signing is not configured")
	}

	object, err := storage.BuildObjectPath(storage.PurposeProductPhoto, storage.PathParams{ProductID: productID})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
	}

	result, err := s.assets.SignedURL(ctx, s.assetBucket, object, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			ExpiresIn:      productPhotoDownloadTTL,
			CacheControl:   productPhotoCacheControl,
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("product: sign photo download: %w", err)
	}

	return SignedAssetResponse{
		AssetID:   object,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Method:    result.Method,
		Headers:   result.Headers,
	}, nil
}

func (s *productService) invalidateProductCaches(ctx context.Context, productID, variationID string) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, productDetailsKey(productID))
	s.cache.Delete(ctx, variationDetailsKey(productID, variationID))
	s.cache.DeletePrefix(ctx, analyticsCachePrefix)
}

func (s *productService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("product: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *productService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorVariationNotFound:
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %v", ErrProductStockConflict, err)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}
