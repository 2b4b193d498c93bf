package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const stateTable = "notification_state"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists notification state into Postgres.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ports.StateStore  = (*PostgresStore)(nil)
	_ ports.StateEraser = (*PostgresStore)(nil)
)

// NewPostgresStore wires a sql.DB implementation. The schema must already exist.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects, verifies the connection and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Read loads the state row for key.
func (s *PostgresStore) Read(ctx context.Context, key string) (domain.NotificationState, error) {
	query, args, err := psql.
		Select("notified_ids", "last_run", "last_notification").
		From(stateTable).
		Where(sq.Eq{"channel": key}).
		ToSql()
	if err != nil {
		return domain.NotificationState{}, fmt.Errorf("build state query: %w", err)
	}

	var (
		ids       pq.StringArray
		lastRun   time.Time
		lastNotif sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&ids, &lastRun, &lastNotif)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotificationState{}, domain.ErrStateNotFound
	}
	if err != nil {
		return domain.NotificationState{}, fmt.Errorf("query state: %w", err)
	}

	state := domain.NotificationState{NotifiedIDs: []string(ids), LastRun: lastRun.UTC()}
	if lastNotif.Valid {
		t := lastNotif.Time.UTC()
		state.LastNotification = &t
	}
	return state, nil
}

// Write upserts the state row.
func (s *PostgresStore) Write(ctx context.Context, key string, state domain.NotificationState) error {
	ids := state.NotifiedIDs
	if ids == nil {
		ids = []string{}
	}
	var lastNotif sql.NullTime
	if state.LastNotification != nil {
		lastNotif = sql.NullTime{Time: *state.LastNotification, Valid: true}
	}

	query, args, err := psql.
		Insert(stateTable).
		Columns("channel", "notified_ids", "last_run", "last_notification").
		Values(key, pq.StringArray(ids), state.LastRun, lastNotif).
		Suffix(`ON CONFLICT (channel) DO UPDATE
              SET notified_ids = EXCLUDED.notified_ids,
                  last_run = EXCLUDED.last_run,
                  last_notification = EXCLUDED.last_notification,
                  updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build state upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Delete removes the state row for key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query, args, err := psql.Delete(stateTable).Where(sq.Eq{"channel": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build state delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
