package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/session"
)

// SQLiteStore is the configured Store variant, backed by a local SQLite
// file.
type SQLiteStore struct {
	db *sqlx.DB
}

// sessionRow maps the sessions table.
type sessionRow struct {
	SessionID   string    `db:"session_id"`
	UserID      string    `db:"user_id"`
	AccessToken string    `db:"access_token"`
	PublicToken string    `db:"public_token"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// holdingRow maps the holdings table.
type holdingRow struct {
	ID                  int64     `db:"id"`
	UserID              string    `db:"user_id"`
	InstrumentToken     int64     `db:"instrument_token"`
	Exchange            string    `db:"exchange"`
	Tradingsymbol       string    `db:"tradingsymbol"`
	ISIN                string    `db:"isin"`
	Product             string    `db:"product"`
	Quantity            int64     `db:"quantity"`
	T1Quantity          int64     `db:"t1_quantity"`
	AveragePrice        float64   `db:"average_price"`
	LastPrice           float64   `db:"last_price"`
	ClosePrice          float64   `db:"close_price"`
	PnL                 float64   `db:"pnl"`
	DayChange           float64   `db:"day_change"`
	DayChangePercentage float64   `db:"day_change_percentage"`
	LastUpdated         time.Time `db:"last_updated"`
}

// NewSQLiteStore opens (or creates) the cache database at the given path
// and applies migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite doesn't support concurrent writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to cache database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// migrate applies all schema migrations. Safe to run repeatedly.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		migrationUsers,
		migrationSessions,
		migrationHoldings,
		migrationRequestTokens,
		migrationIndexes,
	}
	for i, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Configured implements Store.
func (*SQLiteStore) Configured() bool { return true }

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveUser implements Store.
func (s *SQLiteStore) SaveUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, user_name, email, broker, access_token, public_token, refresh_token, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			user_name = excluded.user_name,
			email = excluded.email,
			broker = excluded.broker,
			access_token = excluded.access_token,
			public_token = excluded.public_token,
			refresh_token = excluded.refresh_token,
			last_login = excluded.last_login
	`, user.UserID, user.UserName, user.Email, user.Broker,
		user.AccessToken, user.PublicToken, user.RefreshToken, time.Now())
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// GetUser implements Store.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `
		SELECT user_id, user_name, email, broker, access_token, public_token, refresh_token, last_login
		FROM users
		WHERE user_id = ?
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// ReplaceHoldings implements Store. The previous snapshot is dropped
// wholesale; there is no merge with existing rows.
func (s *SQLiteStore) ReplaceHoldings(ctx context.Context, userID string, holdings []kite.Holding) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting holdings replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting holdings: %w", err)
	}

	now := time.Now()
	for _, h := range holdings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holdings (user_id, instrument_token, exchange, tradingsymbol, isin, product,
				quantity, t1_quantity, average_price, last_price, close_price, pnl,
				day_change, day_change_percentage, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, h.InstrumentToken, h.Exchange, h.Tradingsymbol, h.ISIN, h.Product,
			h.Quantity, h.T1Quantity, h.AveragePrice, h.LastPrice, h.ClosePrice, h.PnL,
			h.DayChange, h.DayChangePercentage, now)
		if err != nil {
			return fmt.Errorf("inserting holding %s: %w", h.Tradingsymbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing holdings replace: %w", err)
	}
	return nil
}

// Holdings implements Store.
func (s *SQLiteStore) Holdings(ctx context.Context, userID string) ([]kite.Holding, error) {
	var rows []holdingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, instrument_token, exchange, tradingsymbol, isin, product,
			quantity, t1_quantity, average_price, last_price, close_price, pnl,
			day_change, day_change_percentage, last_updated
		FROM holdings
		WHERE user_id = ?
		ORDER BY tradingsymbol
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting holdings: %w", err)
	}

	holdings := make([]kite.Holding, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, kite.Holding{
			InstrumentToken:     row.InstrumentToken,
			Exchange:            row.Exchange,
			Tradingsymbol:       row.Tradingsymbol,
			ISIN:                row.ISIN,
			Product:             row.Product,
			Quantity:            row.Quantity,
			T1Quantity:          row.T1Quantity,
			AveragePrice:        row.AveragePrice,
			LastPrice:           row.LastPrice,
			ClosePrice:          row.ClosePrice,
			PnL:                 row.PnL,
			DayChange:           row.DayChange,
			DayChangePercentage: row.DayChangePercentage,
		})
	}
	return holdings, nil
}

// SaveSession implements Store.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, access_token, public_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			public_token = excluded.public_token,
			expires_at = excluded.expires_at
	`, sess.ID, sess.UserID, sess.AccessToken, sess.PublicToken, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession implements Store. Expired rows are treated as absent.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT session_id, user_id, access_token, public_token, created_at, expires_at
		FROM sessions
		WHERE session_id = ? AND expires_at > ?
	`, id, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	return &session.Session{
		ID:          row.SessionID,
		UserID:      row.UserID,
		AccessToken: row.AccessToken,
		PublicToken: row.PublicToken,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions implements Store.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return count, nil
}

// SaveRequestToken implements Store. The row is written once with a
// placeholder identity and updated after the exchange succeeds; it is
// never read back by application logic.
func (s *SQLiteStore) SaveRequestToken(ctx context.Context, requestToken, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_tokens (request_token, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(request_token) DO UPDATE SET user_id = excluded.user_id
	`, requestToken, userID, time.Now())
	if err != nil {
		return fmt.Errorf("saving request token: %w", err)
	}
	return nil
}
