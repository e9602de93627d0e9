package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"craiseek/models"
)

// Store is the persistence boundary shared by the SQLite and Postgres
// backends. All writes that carry cross-cycle guarantees (dedup, at most
// one delivery per triple) live behind this interface so the pipeline
// never talks SQL directly.
type Store interface {
	// InsertListingIfNew stores the listing unless a row with the same
	// (source, dedup key) already exists. On a duplicate the stored row's
	// last_seen_at is bumped, stored content is left untouched, and the
	// returned listing is the one already on record.
	InsertListingIfNew(ctx context.Context, l *models.Listing) (bool, *models.Listing, error)

	// ListingsSince returns listings first seen at or after the given
	// time, oldest first.
	ListingsSince(ctx context.Context, since time.Time) ([]models.Listing, error)

	// FilteredListings serves the external digest/web collaborator:
	// listings since a time, narrowed by the same criteria shape
	// subscribers use, oldest first.
	FilteredListings(ctx context.Context, since time.Time, c *models.Criteria) ([]models.Listing, error)

	// UnnotifiedListings returns stored listings that have not yet been
	// through a dispatch pass, oldest first.
	UnnotifiedListings(ctx context.Context) ([]models.Listing, error)

	// MarkListingsNotified stamps notified_at after a dispatch pass. A
	// listing goes through dispatch exactly once; per-subscriber dedup is
	// the attempt table's job, this watermark just bounds the scan.
	MarkListingsNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error

	Subscribers(ctx context.Context) ([]models.Subscriber, error)
	UpsertSubscriber(ctx context.Context, sub *models.Subscriber) error

	// RecordAttempt inserts the delivery attempt, reporting false when the
	// (listing, subscriber, channel) triple was already consumed. The
	// insert-or-ignore is the at-most-once guarantee; callers must treat
	// false as "someone else already sent this". Dispatch claims a triple
	// with a pending record before sending, then settles the outcome with
	// UpdateAttempt.
	RecordAttempt(ctx context.Context, a *models.DeliveryAttempt) (bool, error)
	UpdateAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	AttemptExists(ctx context.Context, listingID uuid.UUID, subscriberID int64, ch models.Channel) (bool, error)

	CreateRun(ctx context.Context, run *models.CycleRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.CycleRun) error
	RecentRuns(ctx context.Context, limit int) ([]models.CycleRun, error)
	Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error

	PendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error
	EnqueueCommand(ctx context.Context, cmd models.CommandType) error

	Close() error
}
