package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"craiseek/identity"
	"craiseek/models"
	"craiseek/storage"
)

// IngestStats summarizes one store pass over parsed candidates.
type IngestStats struct {
	Found                int
	New                  int
	FingerprintFallbacks int
}

// Ingestor turns parser candidates into stored listings, one insert per
// candidate so a duplicate never hides a new listing behind it.
type Ingestor struct {
	store storage.Store
}

func NewIngestor(store storage.Store) *Ingestor {
	return &Ingestor{store: store}
}

func (in *Ingestor) Ingest(ctx context.Context, sourceID string, raws []models.RawListing) (IngestStats, error) {
	stats := IngestStats{Found: len(raws)}
	now := time.Now()

	for i := range raws {
		raw := &raws[i]
		if raw.PostID == "" {
			stats.FingerprintFallbacks++
		}

		l := &models.Listing{
			ID:           uuid.New(),
			PostID:       raw.PostID,
			Fingerprint:  identity.Fingerprint(raw),
			SourceID:     sourceID,
			Title:        raw.Title,
			URL:          raw.URL,
			PriceCents:   raw.PriceCents,
			Bedrooms:     raw.Bedrooms,
			Neighborhood: raw.Neighborhood,
			PostedAt:     raw.PostedAt,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		}

		stored, _, err := in.store.InsertListingIfNew(ctx, l)
		if err != nil {
			return stats, err
		}
		if stored {
			stats.New++
		}
	}

	if stats.FingerprintFallbacks > 0 {
		log.Printf("Ingest %s: %d/%d candidates had no post id, deduped by fingerprint",
			sourceID, stats.FingerprintFallbacks, stats.Found)
	}
	return stats, nil
}
