package identity

import (
	"testing"

	"craiseek/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestFingerprint_StableAcrossCosmeticEdits(t *testing.T) {
	a := &models.RawListing{
		Title:      "Bright 2BR near park!!",
		URL:        "https://example.org/apa/d/bright-2br/123.html?utm_source=feed",
		PriceCents: int64Ptr(180000),
	}
	b := &models.RawListing{
		Title:      "  bright 2br NEAR park ",
		URL:        "https://example.org/apa/d/bright-2br/123.html#gallery",
		PriceCents: int64Ptr(180000),
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical fingerprints, got %s vs %s", Fingerprint(a), Fingerprint(b))
	}
}

func TestFingerprint_PriceChangesIdentity(t *testing.T) {
	a := &models.RawListing{Title: "Studio downtown", URL: "https://example.org/1.html", PriceCents: int64Ptr(120000)}
	b := &models.RawListing{Title: "Studio downtown", URL: "https://example.org/1.html", PriceCents: int64Ptr(125000)}

	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected price change to produce a different fingerprint")
	}
}

func TestFingerprint_UnsetPriceDiffersFromZero(t *testing.T) {
	a := &models.RawListing{Title: "Room for rent", URL: "https://example.org/2.html"}
	b := &models.RawListing{Title: "Room for rent", URL: "https://example.org/2.html", PriceCents: int64Ptr(0)}

	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected unset price to differ from zero price")
	}
}

func TestNormalizeTitle(t *testing.T) {
	got := NormalizeTitle("  Sunny, SPACIOUS 3-bedroom (pets OK!) ")
	want := "sunny spacious 3 bedroom pets ok"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
