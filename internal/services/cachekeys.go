package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache TTLs per entity class. Overridable through config at wiring time.
const (
	cacheTTLOrders    = 15 * time.Minute
	cacheTTLProducts  = 30 * time.Minute
	cacheTTLAnalytics = time.Hour
)

const cacheKeyVersion = "v1"

func orderDetailsKey(orderID string) string {
	return fmt.Sprintf("order_details_%s_%s", orderID, cacheKeyVersion)
}

func orderItemsKey(orderID string) string {
	return fmt.Sprintf("order_items_%s", orderID)
}

// filteredOrdersKey hashes the non-cursor filter fields so that distinct
// filters never collide while invalidation can still sweep the shared prefix.
func filteredOrdersKey(filter OrderListFilter) string {
	var b strings.Builder
	b.WriteString(filter.BuyerID)
	b.WriteString("|")
	b.WriteString(filter.BuyerName)
	b.WriteString("|")
	for _, status := range filter.Status {
		b.WriteString(string(status))
		b.WriteString(",")
	}
	b.WriteString("|")
	for _, status := range filter.PaymentStatus {
		b.WriteString(string(status))
		b.WriteString(",")
	}
	b.WriteString("|")
	if filter.DateRange.From != nil {
		b.WriteString(filter.DateRange.From.UTC().Format(time.RFC3339))
	}
	b.WriteString("|")
	if filter.DateRange.To != nil {
		b.WriteString(filter.DateRange.To.UTC().Format(time.RFC3339))
	}
	b.WriteString("|")
	b.WriteString(fmt.Sprintf("%d", filter.Pagination.PageSize))

	sum := sha256.Sum256([]byte(b.String()))
	org := filter.OrganizationID
	if org == "" {
		org = "all"
	}
	return fmt.Sprintf("filtered_orders_%s_%s_%s", org, hex.EncodeToString(sum[:8]), cacheKeyVersion)
}

func productDetailsKey(productID string) string {
	return fmt.Sprintf("product_details_%s_%s", productID, cacheKeyVersion)
}

func variationDetailsKey(productID, variationID string) string {
	return fmt.Sprintf("variation_details_%s_%s_%s", productID, variationID, cacheKeyVersion)
}

func buyerDetailsKey(buyerID string) string {
	return fmt.Sprintf("buyer_details_%s_%s", buyerID, cacheKeyVersion)
}

func analyticsKey(kind, organizationID string, parts ...string) string {
	suffix := ""
	if len(parts) > 0 {
		suffix = "_" + strings.Join(parts, "_")
	}
	return fmt.Sprintf("analytics_%s_%s%s_%s", kind, organizationID, suffix, cacheKeyVersion)
}
