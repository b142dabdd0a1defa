package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/apron/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory journal that lives as long as the process.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// RecordMovement appends m to the journal.
func (s *SQLiteStore) RecordMovement(ctx context.Context, m *model.Movement) error {
	s.logger.Debug("sql", "op", "insert", "table", "movements", "id", m.ID, "flight_id", m.FlightID, "event", m.Event)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO movements (id, flight_id, event, kind, unit_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FlightID, m.Event, string(m.Kind), m.UnitID, m.Detail,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert movement %s: %w", m.ID, err)
	}
	return nil
}

// ListMovements returns movements newest first, with the total matching count.
func (s *SQLiteStore) ListMovements(ctx context.Context, opts model.ListOptions) ([]*model.Movement, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "movements", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.FlightID != "" {
		whereSQL = " WHERE flight_id = ?"
		args = append(args, opts.FlightID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flight_id, event, kind, unit_id, detail, created_at
		 FROM movements`+whereSQL+` ORDER BY seq DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListMovementsByFlight returns one flight's movements in the order they were recorded.
func (s *SQLiteStore) ListMovementsByFlight(ctx context.Context, flightID string) ([]*model.Movement, error) {
	s.logger.Debug("sql", "op", "list_by_flight", "table", "movements", "flight_id", flightID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flight_id, event, kind, unit_id, detail, created_at
		 FROM movements WHERE flight_id = ? ORDER BY seq ASC`, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows *sql.Rows) ([]*model.Movement, error) {
	var out []*model.Movement
	for rows.Next() {
		var m model.Movement
		var kind, createdAt string
		if err := rows.Scan(&m.ID, &m.FlightID, &m.Event, &kind, &m.UnitID, &m.Detail, &createdAt); err != nil {
			return nil, err
		}
		m.Kind = model.ResourceKind(kind)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}
