package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/ufcrashout/iTrax/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// PutAssets stores a batch of cached responses in one transaction. Either
// every asset is written or none is.
func (s *SQLiteStore) PutAssets(ctx context.Context, assets []model.CachedAsset) error {
	if len(assets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO asset_cache (method, url, status, header, body, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing asset statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assets {
		header, err := json.Marshal(a.Header)
		if err != nil {
			return fmt.Errorf("marshaling header for %s: %w", a.URL, err)
		}
		cachedAt := a.CachedAt
		if cachedAt.IsZero() {
			cachedAt = time.Now()
		}
		body := a.Body
		if body == nil {
			body = []byte{}
		}

		_, err = stmt.ExecContext(ctx,
			a.Method, a.URL, a.Status, string(header), body, cachedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("caching %s %s: %w", a.Method, a.URL, err)
		}
	}

	return tx.Commit()
}

// GetAsset returns the cached response for method and url, or ErrNotFound.
func (s *SQLiteStore) GetAsset(
	ctx context.Context,
	method, url string,
) (*model.CachedAsset, error) {
	var (
		a        model.CachedAsset
		header   string
		cachedAt time.Time
	)

	row := s.db.QueryRowxContext(ctx, `
		SELECT method, url, status, header, body, cached_at
		FROM asset_cache WHERE method = ? AND url = ?`, method, url)
	err := row.Scan(&a.Method, &a.URL, &a.Status, &header, &a.Body, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset %s %s: %w", method, url, err)
	}

	a.Header = make(http.Header)
	if header != "" {
		if err := json.Unmarshal([]byte(header), &a.Header); err != nil {
			return nil, fmt.Errorf("unmarshaling asset header: %w", err)
		}
	}
	a.CachedAt = cachedAt

	return &a, nil
}

// AssetStats returns the number of cached assets and their total body size.
func (s *SQLiteStore) AssetStats(ctx context.Context) (int, int64, error) {
	var stats struct {
		Count int   `db:"n"`
		Bytes int64 `db:"total"`
	}
	err := s.db.GetContext(ctx, &stats,
		"SELECT COUNT(*) AS n, COALESCE(SUM(LENGTH(body)), 0) AS total FROM asset_cache",
	)
	if err != nil {
		return 0, 0, fmt.Errorf("reading asset stats: %w", err)
	}
	return stats.Count, stats.Bytes, nil
}

// SaveSubscription inserts or replaces the subscription for its scope.
func (s *SQLiteStore) SaveSubscription(
	ctx context.Context,
	rec model.SubscriptionRecord,
) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_subscriptions (
			scope, channel_id, endpoint, p256dh, auth, private_key, server_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Scope, rec.ChannelID, rec.Subscription.Endpoint,
		rec.Subscription.Keys.P256dh, rec.Subscription.Keys.Auth,
		rec.PrivateKey, rec.ApplicationServerKey, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving subscription for scope %s: %w", rec.Scope, err)
	}
	return nil
}

// GetSubscription returns the subscription for scope, or ErrNotFound.
func (s *SQLiteStore) GetSubscription(
	ctx context.Context,
	scope string,
) (*model.SubscriptionRecord, error) {
	return s.getSubscription(ctx, "scope", scope)
}

// GetSubscriptionByChannel returns the subscription registered under a
// push-service channel id, or ErrNotFound.
func (s *SQLiteStore) GetSubscriptionByChannel(
	ctx context.Context,
	channelID string,
) (*model.SubscriptionRecord, error) {
	return s.getSubscription(ctx, "channel_id", channelID)
}

func (s *SQLiteStore) getSubscription(
	ctx context.Context,
	column, value string,
) (*model.SubscriptionRecord, error) {
	var (
		rec       model.SubscriptionRecord
		createdAt time.Time
	)

	query := fmt.Sprintf(`
		SELECT scope, channel_id, endpoint, p256dh, auth, private_key, server_key, created_at
		FROM push_subscriptions WHERE %s = ?`, column)

	err := s.db.QueryRowxContext(ctx, query, value).Scan(
		&rec.Scope, &rec.ChannelID, &rec.Subscription.Endpoint,
		&rec.Subscription.Keys.P256dh, &rec.Subscription.Keys.Auth,
		&rec.PrivateKey, &rec.ApplicationServerKey, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting subscription by %s: %w", column, err)
	}
	rec.CreatedAt = createdAt

	return &rec, nil
}

// DeleteSubscription removes the subscription for scope.
func (s *SQLiteStore) DeleteSubscription(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE scope = ?", scope)
	if err != nil {
		return fmt.Errorf("deleting subscription for scope %s: %w", scope, err)
	}
	return nil
}

// GetSetting returns a stored setting value, or ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting inserts or replaces a setting value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// AddDisplayed records a newly displayed notification. An empty ID is
// replaced with a ULID so the tray sorts by display time.
func (s *SQLiteStore) AddDisplayed(
	ctx context.Context,
	n model.DisplayedNotification,
) (model.DisplayedNotification, error) {
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	options, err := json.Marshal(n.Options)
	if err != nil {
		return n, fmt.Errorf("marshaling notification options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO displayed_notifications (id, title, options, closed, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.Title, string(options), boolToInt(n.Closed), n.CreatedAt.UTC(),
	)
	if err != nil {
		return n, fmt.Errorf("recording displayed notification: %w", err)
	}

	return n, nil
}

// CloseDisplayed marks a displayed notification as dismissed.
func (s *SQLiteStore) CloseDisplayed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE displayed_notifications SET closed = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("closing notification %s: %w", id, err)
	}
	return nil
}

// GetOpenDisplayed returns notifications still shown, newest first.
func (s *SQLiteStore) GetOpenDisplayed(
	ctx context.Context,
) ([]model.DisplayedNotification, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, title, options, closed, created_at
		FROM displayed_notifications WHERE closed = 0 ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying displayed notifications: %w", err)
	}
	defer rows.Close()

	var out []model.DisplayedNotification
	for rows.Next() {
		n, err := scanDisplayed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

// scanDisplayed scans a displayed notification row.
func scanDisplayed(rows *sqlx.Rows) (model.DisplayedNotification, error) {
	var (
		n         model.DisplayedNotification
		options   string
		closedInt int
		createdAt time.Time
	)

	if err := rows.Scan(&n.ID, &n.Title, &options, &closedInt, &createdAt); err != nil {
		return model.DisplayedNotification{}, fmt.Errorf("scanning displayed notification row: %w", err)
	}

	if options != "" {
		if err := json.Unmarshal([]byte(options), &n.Options); err != nil {
			return model.DisplayedNotification{}, fmt.Errorf("unmarshaling notification options: %w", err)
		}
	}
	n.Closed = closedInt != 0
	n.CreatedAt = createdAt

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
