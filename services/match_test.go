package services

import (
	"testing"

	"craiseek/models"
)

func i64(v int64) *int64 { return &v }
func iv(v int) *int      { return &v }

func matchListing() *models.Listing {
	return &models.Listing{
		Title:        "Bright 2BR near Dolores Park",
		PriceCents:   i64(180000),
		Bedrooms:     iv(2),
		Neighborhood: "Mission District",
	}
}

func TestMatchesEmptyCriteria(t *testing.T) {
	if !Matches(matchListing(), &models.Criteria{}) {
		t.Fatal("empty criteria must match everything")
	}
}

func TestMatchesPriceBounds(t *testing.T) {
	l := matchListing()

	if !Matches(l, &models.Criteria{MinPriceCents: i64(100000), MaxPriceCents: i64(200000)}) {
		t.Fatal("price inside bounds should match")
	}
	if Matches(l, &models.Criteria{MaxPriceCents: i64(150000)}) {
		t.Fatal("price above max should not match")
	}
	if Matches(l, &models.Criteria{MinPriceCents: i64(200000)}) {
		t.Fatal("price below min should not match")
	}
	// Boundary values are inclusive.
	if !Matches(l, &models.Criteria{MinPriceCents: i64(180000), MaxPriceCents: i64(180000)}) {
		t.Fatal("exact boundary should match")
	}
}

func TestMatchesUnsetFieldsFailClosed(t *testing.T) {
	l := matchListing()
	l.PriceCents = nil
	if Matches(l, &models.Criteria{MaxPriceCents: i64(999999)}) {
		t.Fatal("unparsed price must not satisfy a price bound")
	}

	l = matchListing()
	l.Bedrooms = nil
	if Matches(l, &models.Criteria{MinBedrooms: iv(1)}) {
		t.Fatal("unknown bedroom count must not satisfy a bedroom bound")
	}

	l = matchListing()
	l.Neighborhood = ""
	if Matches(l, &models.Criteria{Neighborhood: "mission"}) {
		t.Fatal("missing neighborhood must not satisfy a neighborhood filter")
	}

	// But the same listings still satisfy criteria without those bounds.
	l = matchListing()
	l.PriceCents = nil
	if !Matches(l, &models.Criteria{Keywords: []string{"2br"}}) {
		t.Fatal("unset price is irrelevant without a price bound")
	}
}

func TestMatchesBedrooms(t *testing.T) {
	l := matchListing()
	if !Matches(l, &models.Criteria{MinBedrooms: iv(2), MaxBedrooms: iv(3)}) {
		t.Fatal("bedrooms inside bounds should match")
	}
	if Matches(l, &models.Criteria{MinBedrooms: iv(3)}) {
		t.Fatal("too few bedrooms should not match")
	}
}

func TestMatchesNeighborhoodSubstring(t *testing.T) {
	l := matchListing()
	if !Matches(l, &models.Criteria{Neighborhood: "mission"}) {
		t.Fatal("case-insensitive substring should match")
	}
	if Matches(l, &models.Criteria{Neighborhood: "richmond"}) {
		t.Fatal("different neighborhood should not match")
	}
}

func TestMatchesKeywords(t *testing.T) {
	l := matchListing()
	if !Matches(l, &models.Criteria{Keywords: []string{"dolores", "2br"}}) {
		t.Fatal("all keywords present should match")
	}
	if Matches(l, &models.Criteria{Keywords: []string{"dolores", "garage"}}) {
		t.Fatal("one missing keyword should fail the filter")
	}
	// Keywords scan the title only; neighborhood has its own filter.
	if Matches(l, &models.Criteria{Keywords: []string{"mission"}}) {
		t.Fatal("keyword matching must not cover the neighborhood")
	}
	if !Matches(l, &models.Criteria{Keywords: []string{"2BR"}}) {
		t.Fatal("keyword match is case-insensitive")
	}
}
