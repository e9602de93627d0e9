package models

import (
	"time"

	"github.com/google/uuid"
)

// RawListing is a best-effort candidate produced by the parser. Only Title
// and URL are guaranteed; everything else may be unset.
type RawListing struct {
	PostID       string     `json:"post_id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	PriceCents   *int64     `json:"price_cents"`
	Bedrooms     *int       `json:"bedrooms"`
	Neighborhood string     `json:"neighborhood"`
	PostedAt     *time.Time `json:"posted_at"`
}

// Listing is the canonical stored record. Content is immutable after first
// insert; only LastSeenAt and NotifiedAt move.
type Listing struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	PostID       string     `json:"post_id" db:"post_id"`
	Fingerprint  string     `json:"fingerprint" db:"fingerprint"`
	SourceID     string     `json:"source_id" db:"source_id"`
	Title        string     `json:"title" db:"title"`
	URL          string     `json:"url" db:"url"`
	PriceCents   *int64     `json:"price_cents" db:"price_cents"`
	Bedrooms     *int       `json:"bedrooms" db:"bedrooms"`
	Neighborhood string     `json:"neighborhood" db:"neighborhood"`
	PostedAt     *time.Time `json:"posted_at" db:"posted_at"`
	FirstSeenAt  time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time  `json:"last_seen_at" db:"last_seen_at"`
	NotifiedAt   *time.Time `json:"notified_at" db:"notified_at"`
}

// DedupKey returns the identity used by the store's unique constraint:
// the source post id when present, else the content fingerprint. The
// fallback is the default case, not the exception; upstream id schemes
// change without notice.
func (l *Listing) DedupKey() string {
	if l.PostID != "" {
		return l.PostID
	}
	return l.Fingerprint
}

// DedupKey mirrors Listing.DedupKey for parser candidates.
func (r *RawListing) DedupKey(fingerprint string) string {
	if r.PostID != "" {
		return r.PostID
	}
	return fingerprint
}
