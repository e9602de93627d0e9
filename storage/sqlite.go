package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"craiseek/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		dedup_key TEXT NOT NULL,
		post_id TEXT,
		fingerprint TEXT,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		price_cents INTEGER,
		bedrooms INTEGER,
		neighborhood TEXT,
		posted_at DATETIME,
		first_seen_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL,
		notified_at DATETIME,
		UNIQUE(source_id, dedup_key)
	);

	CREATE TABLE IF NOT EXISTS subscribers (
		id INTEGER PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'FREE',
		channel_preference TEXT,
		phone TEXT,
		chat_handle TEXT,
		email TEXT,
		criteria JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS delivery_attempts (
		listing_id TEXT NOT NULL,
		subscriber_id INTEGER NOT NULL,
		channel TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		attempted_at DATETIME NOT NULL,
		PRIMARY KEY (listing_id, subscriber_id, channel)
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id INTEGER PRIMARY KEY,
		source_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		listings_new INTEGER,
		fragments_skipped INTEGER,
		notifications_sent INTEGER,
		notifications_failed INTEGER,
		errors_count INTEGER,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS cycle_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listings_first_seen ON listings(first_seen_at);
	CREATE INDEX IF NOT EXISTS idx_listings_unnotified ON listings(first_seen_at) WHERE notified_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_attempts_listing ON delivery_attempts(listing_id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON cycle_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON cycle_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) InsertListingIfNew(ctx context.Context, l *models.Listing) (bool, *models.Listing, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, dedup_key, post_id, fingerprint, source_id, title, url,
			price_cents, bedrooms, neighborhood, posted_at, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, dedup_key) DO NOTHING`,
		l.ID.String(), l.DedupKey(), l.PostID, l.Fingerprint, l.SourceID, l.Title, l.URL,
		l.PriceCents, l.Bedrooms, l.Neighborhood, l.PostedAt, l.FirstSeenAt, l.LastSeenAt)
	if err != nil {
		return false, nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if n > 0 {
		return true, l, nil
	}

	// Duplicate. Stored content is immutable; only the sighting moves.
	_, err = s.db.ExecContext(ctx, `
		UPDATE listings SET last_seen_at = ? WHERE source_id = ? AND dedup_key = ?`,
		l.LastSeenAt, l.SourceID, l.DedupKey())
	if err != nil {
		return false, nil, err
	}

	stored, err := scanListing(s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE source_id = ? AND dedup_key = ?`, l.SourceID, l.DedupKey()).Scan)
	if err != nil {
		return false, nil, err
	}
	return false, &stored, nil
}

const listingColumns = `id, post_id, fingerprint, source_id, title, url,
	price_cents, bedrooms, neighborhood, posted_at, first_seen_at, last_seen_at, notified_at`

func scanListing(scan func(dest ...any) error) (models.Listing, error) {
	var l models.Listing
	var id string
	var postID, fingerprint, neighborhood sql.NullString
	err := scan(&id, &postID, &fingerprint, &l.SourceID, &l.Title, &l.URL,
		&l.PriceCents, &l.Bedrooms, &neighborhood, &l.PostedAt, &l.FirstSeenAt, &l.LastSeenAt, &l.NotifiedAt)
	if err != nil {
		return l, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return l, fmt.Errorf("listing id %q: %w", id, err)
	}
	l.ID = parsed
	l.PostID = postID.String
	l.Fingerprint = fingerprint.String
	l.Neighborhood = neighborhood.String
	return l, nil
}

func (s *SQLiteStore) queryListings(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows.Scan)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) ListingsSince(ctx context.Context, since time.Time) ([]models.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE first_seen_at >= ? ORDER BY first_seen_at ASC`, since)
}

func (s *SQLiteStore) FilteredListings(ctx context.Context, since time.Time, c *models.Criteria) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE first_seen_at >= ?`
	args := []any{since}

	if c != nil {
		if c.MinPriceCents != nil {
			query += ` AND price_cents >= ?`
			args = append(args, *c.MinPriceCents)
		}
		if c.MaxPriceCents != nil {
			query += ` AND price_cents <= ?`
			args = append(args, *c.MaxPriceCents)
		}
		if c.MinBedrooms != nil {
			query += ` AND bedrooms >= ?`
			args = append(args, *c.MinBedrooms)
		}
		if c.MaxBedrooms != nil {
			query += ` AND bedrooms <= ?`
			args = append(args, *c.MaxBedrooms)
		}
		if c.Neighborhood != "" {
			query += ` AND neighborhood LIKE ? COLLATE NOCASE`
			args = append(args, "%"+c.Neighborhood+"%")
		}
		for _, kw := range c.Keywords {
			if kw = strings.TrimSpace(kw); kw == "" {
				continue
			}
			query += ` AND title LIKE ? COLLATE NOCASE`
			args = append(args, "%"+kw+"%")
		}
	}

	query += ` ORDER BY first_seen_at ASC`
	return s.queryListings(ctx, query, args...)
}

func (s *SQLiteStore) UnnotifiedListings(ctx context.Context) ([]models.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE notified_at IS NULL ORDER BY first_seen_at ASC`)
}

func (s *SQLiteStore) MarkListingsNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id.String())
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET notified_at = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (s *SQLiteStore) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, channel_preference, phone, chat_handle, email, criteria, created_at
		FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		var tier string
		var pref, phone, chat, email, criteria sql.NullString
		if err := rows.Scan(&sub.ID, &tier, &pref, &phone, &chat, &email, &criteria, &sub.CreatedAt); err != nil {
			return nil, err
		}
		sub.Tier = models.ParseTier(tier)
		if pref.Valid {
			if ch, ok := models.ParseChannel(pref.String); ok {
				sub.Preference = ch
			}
		}
		sub.Phone = phone.String
		sub.ChatHandle = chat.String
		sub.Email = email.String
		if criteria.Valid && criteria.String != "" {
			if err := json.Unmarshal([]byte(criteria.String), &sub.Criteria); err != nil {
				return nil, fmt.Errorf("subscriber %d criteria: %w", sub.ID, err)
			}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) UpsertSubscriber(ctx context.Context, sub *models.Subscriber) error {
	criteria, err := json.Marshal(sub.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, tier, channel_preference, phone, chat_handle, email, criteria, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			channel_preference = excluded.channel_preference,
			phone = excluded.phone,
			chat_handle = excluded.chat_handle,
			email = excluded.email,
			criteria = excluded.criteria`,
		sub.ID, string(sub.Tier), string(sub.Preference), sub.Phone, sub.ChatHandle, sub.Email,
		string(criteria), sub.CreatedAt)
	return err
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a *models.DeliveryAttempt) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_attempts (listing_id, subscriber_id, channel, outcome, detail, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id, subscriber_id, channel) DO NOTHING`,
		a.ListingID.String(), a.SubscriberID, string(a.Channel), string(a.Outcome), a.Detail, a.AttemptedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_attempts SET outcome = ?, detail = ?, attempted_at = ?
		WHERE listing_id = ? AND subscriber_id = ? AND channel = ?`,
		string(a.Outcome), a.Detail, a.AttemptedAt,
		a.ListingID.String(), a.SubscriberID, string(a.Channel))
	return err
}

func (s *SQLiteStore) AttemptExists(ctx context.Context, listingID uuid.UUID, subscriberID int64, ch models.Channel) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM delivery_attempts
		WHERE listing_id = ? AND subscriber_id = ? AND channel = ?`,
		listingID.String(), subscriberID, string(ch)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.CycleRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_runs (source_id, started_at, status, listings_found, listings_new,
			fragments_skipped, notifications_sent, notifications_failed, errors_count)
		VALUES (?, ?, ?, 0, 0, 0, 0, 0, 0)`,
		run.SourceID, run.StartedAt, string(run.Status))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cycle_runs SET finished_at = ?, status = ?, listings_found = ?,
			listings_new = ?, fragments_skipped = ?, notifications_sent = ?,
			notifications_failed = ?, errors_count = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.ListingsFound, run.ListingsNew,
		run.FragmentsSkipped, run.NotificationsSent, run.NotificationsFailed,
		run.ErrorsCount, run.ErrorMessage, run.ID)
	return err
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]models.CycleRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, started_at, finished_at, status, listings_found, listings_new,
			fragments_skipped, notifications_sent, notifications_failed, errors_count,
			COALESCE(error_message, '')
		FROM cycle_runs ORDER BY started_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_logs (run_id, timestamp, level, message, source_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), string(level), message, sourceID)
	return err
}

func (s *SQLiteStore) PendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func (s *SQLiteStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) EnqueueCommand(ctx context.Context, cmd models.CommandType) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO commands (command) VALUES (?)`, string(cmd))
	return err
}
