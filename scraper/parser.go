package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"craiseek/models"
)

var priceTokenRegex = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d{1,2})?`)

// ParseListings extracts candidate listings from a search-results payload.
// The upstream markup is unstable, so discovery is heuristic: post-id nodes
// when present, otherwise any fragment carrying a link plus a price-like
// token. One malformed fragment never fails the batch; fragments that
// cannot yield at least {title, url} are counted in skipped and dropped.
func ParseListings(raw []byte, baseURL string) (listings []models.RawListing, skipped int, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}

	base, _ := url.Parse(baseURL)
	seen := make(map[string]bool)

	fragments := doc.Find("[data-pid]")
	if fragments.Length() == 0 {
		fragments = fallbackFragments(doc)
	}

	fragments.Each(func(_ int, sel *goquery.Selection) {
		listing, ok := parseFragment(sel, base)
		if !ok {
			skipped++
			return
		}

		key := listing.PostID
		if key == "" {
			key = listing.URL
		}
		if seen[key] {
			return
		}
		seen[key] = true

		listings = append(listings, *listing)
	})

	return listings, skipped, nil
}

// fallbackFragments finds listing-shaped nodes when the post-id attribute
// scheme has changed underneath us: containers with both a link and a
// price token, innermost match wins.
func fallbackFragments(doc *goquery.Document) *goquery.Selection {
	return doc.Find("li, article, div").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		if sel.Find("a[href]").Length() == 0 {
			return false
		}
		if !priceTokenRegex.MatchString(sel.Text()) {
			return false
		}
		// Reject wrappers around other candidates; we want the leaf rows.
		nested := sel.Find("li, article, div").FilterFunction(func(_ int, inner *goquery.Selection) bool {
			return inner.Find("a[href]").Length() > 0 && priceTokenRegex.MatchString(inner.Text())
		})
		return nested.Length() == 0
	})
}

func parseFragment(sel *goquery.Selection, base *url.URL) (*models.RawListing, bool) {
	postID, _ := sel.Attr("data-pid")

	anchor := sel.Find(".result-title").First()
	if anchor.Length() == 0 {
		anchor = sel.Find("a[href]").First()
	}

	title := strings.TrimSpace(anchor.Text())
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)

	if title == "" || href == "" {
		return nil, false
	}

	listing := &models.RawListing{
		PostID: postID,
		Title:  title,
		URL:    resolveURL(base, href),
	}

	priceText := strings.TrimSpace(sel.Find(".result-price").First().Text())
	if priceText == "" {
		priceText = priceTokenRegex.FindString(sel.Text())
	}
	listing.PriceCents = ParsePriceCents(priceText)

	if hood := strings.TrimSpace(sel.Find(".result-hood").First().Text()); hood != "" {
		listing.Neighborhood = strings.Trim(hood, " ()")
	}

	listing.Bedrooms = ParseBedrooms(title + " " + sel.Text())

	if ts, ok := sel.Find("time").First().Attr("datetime"); ok {
		if posted := parsePostedAt(ts); posted != nil {
			listing.PostedAt = posted
		}
	}

	return listing, true
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func parsePostedAt(value string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
