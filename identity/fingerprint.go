package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"craiseek/models"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Fingerprint derives the content identity used when the source's post id
// is missing or unstable: a hash of normalized title, price, and URL. Two
// re-posts of the same ad land on the same fingerprint even when the site
// rotates its ids.
func Fingerprint(raw *models.RawListing) string {
	price := int64(-1)
	if raw.PriceCents != nil {
		price = *raw.PriceCents
	}
	input := fmt.Sprintf("%s|%d|%s",
		NormalizeTitle(raw.Title),
		price,
		canonicalURL(raw.URL),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace
// so cosmetic edits don't change the identity.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = nonAlnumRegex.ReplaceAllString(title, " ")
	title = multiSpaceRegex.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// canonicalURL drops the query string and fragment; listing URLs carry
// volatile tracking parameters.
func canonicalURL(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, "/")
}
