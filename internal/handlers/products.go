package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/unimerch/api/internal/domain"
	"github.com/unimerch/api/internal/platform/auth"
	"github.com/unimerch/api/internal/platform/httpx"
	"github.com/unimerch/api/internal/services"
)

const maxStockAdjustBodySize = 4 * 1024

// ProductHandlers exposes product, variation, and stock endpoints.
type ProductHandlers struct {
	authn    *auth.Authenticator
	products services.ProductService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, products services.ProductService) *ProductHandlers {
	return &ProductHandlers{
		authn:    authn,
		products: products,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleOrganization))
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
	r.Get("/{productID}/photo", h.photoDownload)
	r.Post("/{productID}/photo:upload", h.photoUpload)
	r.Get("/{productID}/variations", h.listVariations)
	r.Get("/{productID}/variations/{variationID}", h.getVariation)
	r.Get("/{productID}/variations/{variationID}/stock-logs", h.listStockLogs)
	r.Post("/{productID}/variations/{variationID}/stock:adjust", h.adjustStock)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		OrganizationID: strings.TrimSpace(query.Get("organization_id")),
		Status:         parseFilterValues(query["status"]),
		Category:       strings.TrimSpace(query.Get("category")),
		Pagination:     pager,
	}

	page, err := h.products.ListProducts(ctx, filter)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := h.requireProductID(w, r)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) listVariations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := h.requireProductID(w, r)
	if !ok {
		return
	}

	variations, err := h.products.ListVariations(ctx, productID)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	items := make([]variationPayload, 0, len(variations))
	for _, variation := range variations {
		items = append(items, buildVariationPayload(variation))
	}
	writeJSONResponse(w, http.StatusOK, variationListResponse{Items: items})
}

func (h *ProductHandlers) getVariation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, variationID, ok := h.requireVariationIDs(w, r)
	if !ok {
		return
	}

	variation, err := h.products.GetVariation(ctx, productID, variationID)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, variationResponse{Variation: buildVariationPayload(variation)})
}

func (h *ProductHandlers) listStockLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, variationID, ok := h.requireVariationIDs(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.products.ListStockLogs(ctx, productID, variationID, pager)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	items := make([]stockLogPayload, 0, len(page.Items))
	for _, log := range page.Items {
		items = append(items, stockLogPayload{
			ID:          log.ID,
			VariationID: log.VariationID,
			Quantity:    log.Quantity,
			Action:      string(log.Action),
			Remarks:     strings.TrimSpace(log.Remarks),
			CreatedAt:   formatTime(log.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, stockLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type adjustStockRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
	Remarks  string `json:"remarks"`
}

func (h *ProductHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, variationID, ok := h.requireVariationIDs(w, r)
	if !ok {
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxStockAdjustBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adjustStockRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	variation, err := h.products.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID:   productID,
		VariationID: variationID,
		Action:      domain.StockAction(strings.TrimSpace(req.Action)),
		Quantity:    req.Quantity,
		Remarks:     strings.TrimSpace(req.Remarks),
		ActorID:     strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, variationResponse{Variation: buildVariationPayload(variation)})
}

type photoUploadRequest struct {
	ContentType string `json:"content_type"`
}

func (h *ProductHandlers) photoUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := h.requireProductID(w, r)
	if !ok {
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxStockAdjustBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req photoUploadRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	signed, err := h.products.IssuePhotoUpload(ctx, services.ProductPhotoCommand{
		ProductID:   productID,
		ContentType: strings.TrimSpace(req.ContentType),
		ActorID:     strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildSignedAssetPayload(signed))
}

func (h *ProductHandlers) photoDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := h.requireProductID(w, r)
	if !ok {
		return
	}

	signed, err := h.products.IssuePhotoDownload(ctx, productID)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSignedAssetPayload(signed))
}

func (h *ProductHandlers) requireProductID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return "", false
	}
	return productID, true
}

func (h *ProductHandlers) requireVariationIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	productID, ok := h.requireProductID(w, r)
	if !ok {
		return "", "", false
	}
	variationID := strings.TrimSpace(chi.URLParam(r, "variationID"))
	if variationID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "variation id is required", http.StatusBadRequest))
		return "", "", false
	}
	return productID, variationID, true
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Status         string `json:"status"`
	Category       string `json:"category,omitempty"`
	PhotoURL       string `json:"photo_url,omitempty"`
	TotalOrders    int    `json:"total_orders"`
	TotalSales     int    `json:"total_sales"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type variationListResponse struct {
	Items []variationPayload `json:"items"`
}

type variationResponse struct {
	Variation variationPayload `json:"variation"`
}

type variationPayload struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DiscountPrice   float64 `json:"discount_price,omitempty"`
	RemainingStocks int     `json:"remaining_stocks"`
	PendingOrders   int     `json:"pending_orders"`
	ReservedStocks  int     `json:"reserved_stocks"`
	PreOrderStocks  int     `json:"pre_order_stocks"`
	CompletedOrders int     `json:"completed_orders"`
	CancelledOrders int     `json:"cancelled_orders"`
	LastStockUpdate string  `json:"last_stock_update,omitempty"`
}

type stockLogListResponse struct {
	Items         []stockLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type stockLogPayload struct {
	ID          string `json:"id"`
	VariationID string `json:"variation_id"`
	Quantity    int    `json:"quantity"`
	Action      string `json:"action"`
	Remarks     string `json:"remarks,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type signedAssetPayload struct {
	AssetID   string            `json:"asset_id"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expires_at"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:             strings.TrimSpace(product.ID),
		OrganizationID: strings.TrimSpace(product.OrganizationID),
		Name:           strings.TrimSpace(product.Name),
		Description:    strings.TrimSpace(product.Description),
		Status:         strings.TrimSpace(product.Status),
		Category:       strings.TrimSpace(product.Category),
		PhotoURL:       strings.TrimSpace(product.PhotoURL),
		TotalOrders:    product.TotalOrders,
		TotalSales:     product.TotalSales,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}

func buildVariationPayload(variation services.Variation) variationPayload {
	return variationPayload{
		ID:              strings.TrimSpace(variation.ID),
		ProductID:       strings.TrimSpace(variation.ProductID),
		Name:            strings.TrimSpace(variation.Name),
		Price:           variation.Price,
		DiscountPrice:   variation.DiscountPrice,
		RemainingStocks: variation.RemainingStocks,
		PendingOrders:   variation.PendingOrders,
		ReservedStocks:  variation.ReservedStocks,
		PreOrderStocks:  variation.PreOrderStocks,
		CompletedOrders: variation.CompletedOrders,
		CancelledOrders: variation.CancelledOrders,
		LastStockUpdate: formatTime(pointerTime(variation.LastStockUpdate)),
	}
}

func buildSignedAssetPayload(signed services.SignedAssetResponse) signedAssetPayload {
	return signedAssetPayload{
		AssetID:   signed.AssetID,
		URL:       signed.URL,
		Method:    signed.Method,
		ExpiresAt: formatTime(signed.ExpiresAt),
		Headers:   signed.Headers,
	}
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductStockConflict):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_error", "failed to process product request", http.StatusInternalServerError))
	}
}
