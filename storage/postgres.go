package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"craiseek/models"
)

// PostgresStore is the shared-deployment backend. Schema management is
// expected to happen out of band (migrations ship with the deployment
// repo); migrate() only creates what a fresh database needs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		dedup_key TEXT NOT NULL,
		post_id TEXT,
		fingerprint TEXT,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		price_cents BIGINT,
		bedrooms INT,
		neighborhood TEXT,
		posted_at TIMESTAMPTZ,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL,
		notified_at TIMESTAMPTZ,
		UNIQUE(source_id, dedup_key)
	);

	CREATE TABLE IF NOT EXISTS subscribers (
		id BIGINT PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'FREE',
		channel_preference TEXT,
		phone TEXT,
		chat_handle TEXT,
		email TEXT,
		criteria JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS delivery_attempts (
		listing_id UUID NOT NULL,
		subscriber_id BIGINT NOT NULL,
		channel TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		attempted_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (listing_id, subscriber_id, channel)
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id BIGSERIAL PRIMARY KEY,
		source_id TEXT,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		listings_found INT,
		listings_new INT,
		fragments_skipped INT,
		notifications_sent INT,
		notifications_failed INT,
		errors_count INT,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS cycle_logs (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT,
		timestamp TIMESTAMPTZ,
		level TEXT,
		message TEXT,
		source_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		command TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_listings_first_seen ON listings(first_seen_at);
	CREATE INDEX IF NOT EXISTS idx_listings_unnotified ON listings(first_seen_at) WHERE notified_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) InsertListingIfNew(ctx context.Context, l *models.Listing) (bool, *models.Listing, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO listings (id, dedup_key, post_id, fingerprint, source_id, title, url,
			price_cents, bedrooms, neighborhood, posted_at, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id, dedup_key) DO NOTHING`,
		l.ID, l.DedupKey(), l.PostID, l.Fingerprint, l.SourceID, l.Title, l.URL,
		l.PriceCents, l.Bedrooms, l.Neighborhood, l.PostedAt, l.FirstSeenAt, l.LastSeenAt)
	if err != nil {
		return false, nil, err
	}
	if tag.RowsAffected() > 0 {
		return true, l, nil
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE listings SET last_seen_at = $1 WHERE source_id = $2 AND dedup_key = $3`,
		l.LastSeenAt, l.SourceID, l.DedupKey())
	if err != nil {
		return false, nil, err
	}

	var stored models.Listing
	err = s.pool.QueryRow(ctx, `
		SELECT `+pgListingColumns+` FROM listings
		WHERE source_id = $1 AND dedup_key = $2`, l.SourceID, l.DedupKey()).Scan(
		&stored.ID, &stored.PostID, &stored.Fingerprint, &stored.SourceID, &stored.Title, &stored.URL,
		&stored.PriceCents, &stored.Bedrooms, &stored.Neighborhood, &stored.PostedAt,
		&stored.FirstSeenAt, &stored.LastSeenAt, &stored.NotifiedAt)
	if err != nil {
		return false, nil, err
	}
	return false, &stored, nil
}

const pgListingColumns = `id, COALESCE(post_id, ''), COALESCE(fingerprint, ''), source_id, title, url,
	price_cents, bedrooms, COALESCE(neighborhood, ''), posted_at, first_seen_at, last_seen_at, notified_at`

func (s *PostgresStore) queryListings(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.PostID, &l.Fingerprint, &l.SourceID, &l.Title, &l.URL,
			&l.PriceCents, &l.Bedrooms, &l.Neighborhood, &l.PostedAt,
			&l.FirstSeenAt, &l.LastSeenAt, &l.NotifiedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) ListingsSince(ctx context.Context, since time.Time) ([]models.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+pgListingColumns+` FROM listings
		WHERE first_seen_at >= $1 ORDER BY first_seen_at ASC`, since)
}

func (s *PostgresStore) FilteredListings(ctx context.Context, since time.Time, c *models.Criteria) ([]models.Listing, error) {
	query := `SELECT ` + pgListingColumns + ` FROM listings WHERE first_seen_at >= $1`
	args := []any{since}

	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }
	if c != nil {
		if c.MinPriceCents != nil {
			query += ` AND price_cents >= ` + next()
			args = append(args, *c.MinPriceCents)
		}
		if c.MaxPriceCents != nil {
			query += ` AND price_cents <= ` + next()
			args = append(args, *c.MaxPriceCents)
		}
		if c.MinBedrooms != nil {
			query += ` AND bedrooms >= ` + next()
			args = append(args, *c.MinBedrooms)
		}
		if c.MaxBedrooms != nil {
			query += ` AND bedrooms <= ` + next()
			args = append(args, *c.MaxBedrooms)
		}
		if c.Neighborhood != "" {
			query += ` AND neighborhood ILIKE ` + next()
			args = append(args, "%"+c.Neighborhood+"%")
		}
		for _, kw := range c.Keywords {
			if kw = strings.TrimSpace(kw); kw == "" {
				continue
			}
			query += ` AND title ILIKE ` + next()
			args = append(args, "%"+kw+"%")
		}
	}

	query += ` ORDER BY first_seen_at ASC`
	return s.queryListings(ctx, query, args...)
}

func (s *PostgresStore) UnnotifiedListings(ctx context.Context) ([]models.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+pgListingColumns+` FROM listings
		WHERE notified_at IS NULL ORDER BY first_seen_at ASC`)
}

func (s *PostgresStore) MarkListingsNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET notified_at = $1 WHERE id = ANY($2)`, at, ids)
	return err
}

func (s *PostgresStore) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tier, COALESCE(channel_preference, ''), COALESCE(phone, ''),
			COALESCE(chat_handle, ''), COALESCE(email, ''), criteria, created_at
		FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		var tier, pref string
		var criteria []byte
		if err := rows.Scan(&sub.ID, &tier, &pref, &sub.Phone, &sub.ChatHandle, &sub.Email,
			&criteria, &sub.CreatedAt); err != nil {
			return nil, err
		}
		sub.Tier = models.ParseTier(tier)
		if ch, ok := models.ParseChannel(pref); ok {
			sub.Preference = ch
		}
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &sub.Criteria); err != nil {
				return nil, fmt.Errorf("subscriber %d criteria: %w", sub.ID, err)
			}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) UpsertSubscriber(ctx context.Context, sub *models.Subscriber) error {
	criteria, err := json.Marshal(sub.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO subscribers (id, tier, channel_preference, phone, chat_handle, email, criteria, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tier = EXCLUDED.tier,
			channel_preference = EXCLUDED.channel_preference,
			phone = EXCLUDED.phone,
			chat_handle = EXCLUDED.chat_handle,
			email = EXCLUDED.email,
			criteria = EXCLUDED.criteria`,
		sub.ID, string(sub.Tier), string(sub.Preference), sub.Phone, sub.ChatHandle, sub.Email,
		criteria, sub.CreatedAt)
	return err
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a *models.DeliveryAttempt) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (listing_id, subscriber_id, channel, outcome, detail, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (listing_id, subscriber_id, channel) DO NOTHING`,
		a.ListingID, a.SubscriberID, string(a.Channel), string(a.Outcome), a.Detail, a.AttemptedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts SET outcome = $1, detail = $2, attempted_at = $3
		WHERE listing_id = $4 AND subscriber_id = $5 AND channel = $6`,
		string(a.Outcome), a.Detail, a.AttemptedAt,
		a.ListingID, a.SubscriberID, string(a.Channel))
	return err
}

func (s *PostgresStore) AttemptExists(ctx context.Context, listingID uuid.UUID, subscriberID int64, ch models.Channel) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM delivery_attempts
		WHERE listing_id = $1 AND subscriber_id = $2 AND channel = $3`,
		listingID, subscriberID, string(ch)).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.CycleRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cycle_runs (source_id, started_at, status, listings_found, listings_new,
			fragments_skipped, notifications_sent, notifications_failed, errors_count)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, 0)
		RETURNING id`,
		run.SourceID, run.StartedAt, string(run.Status)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cycle_runs SET finished_at = $1, status = $2, listings_found = $3,
			listings_new = $4, fragments_skipped = $5, notifications_sent = $6,
			notifications_failed = $7, errors_count = $8, error_message = $9
		WHERE id = $10`,
		run.FinishedAt, string(run.Status), run.ListingsFound, run.ListingsNew,
		run.FragmentsSkipped, run.NotificationsSent, run.NotificationsFailed,
		run.ErrorsCount, run.ErrorMessage, run.ID)
	return err
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]models.CycleRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, started_at, finished_at, status, listings_found, listings_new,
			fragments_skipped, notifications_sent, notifications_failed, errors_count,
			COALESCE(error_message, '')
		FROM cycle_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.CycleRun
	for rows.Next() {
		var run models.CycleRun
		var status string
		if err := rows.Scan(&run.ID, &run.SourceID, &run.StartedAt, &run.FinishedAt, &status,
			&run.ListingsFound, &run.ListingsNew, &run.FragmentsSkipped,
			&run.NotificationsSent, &run.NotificationsFailed, &run.ErrorsCount,
			&run.ErrorMessage); err != nil {
			return nil, err
		}
		run.Status = models.CycleStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_logs (run_id, timestamp, level, message, source_id)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, time.Now(), string(level), message, sourceID)
	return err
}

func (s *PostgresStore) PendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var raw string
		if err := rows.Scan(&cmd.ID, &raw, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		cmd.Command = models.CommandType(raw)
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *PostgresStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE commands SET processed_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) EnqueueCommand(ctx context.Context, cmd models.CommandType) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO commands (command) VALUES ($1)`, string(cmd))
	return err
}
