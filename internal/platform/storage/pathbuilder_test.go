package storage

import "testing"

func TestBuildProductPhotoPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductPhoto, PathParams{
		ProductID: "prod123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "products/prod123/photo"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildReceiptPathUsesPaymentID(t *testing.T) {
	path, err := BuildObjectPath(PurposeReceipt, PathParams{
		OrganizationID: "org123",
		PaymentID:      "pay-2025-001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "organizations/org123/receipts/pay-2025-001.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductPhoto, PathParams{
		ProductID: "../bad",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}
