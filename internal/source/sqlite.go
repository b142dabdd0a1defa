package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	"github.com/me/apron/pkg/model"

	_ "modernc.org/sqlite"
)

// DefaultTable is the table the SQLite loader reads when none is given.
const DefaultTable = "flights"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite loads flights from a table with columns id, direction, priority and emergency.
// Rows are read in rowid order.
type SQLite struct {
	path  string
	table string
}

// NewSQLite creates a loader over table in the database at path.
func NewSQLite(path, table string) *SQLite {
	if table == "" {
		table = DefaultTable
	}
	return &SQLite{path: path, table: table}
}

// Load queries the table. Rows with a NULL or non-integer priority are reported individually.
func (s *SQLite) Load(ctx context.Context) ([]*model.Flight, error) {
	if !tableName.MatchString(s.table) {
		return nil, &model.LoadError{Source: s.path, Err: fmt.Errorf("invalid table name %q", s.table)}
	}
	// sql.Open would create a missing file.
	if _, err := os.Stat(s.path); err != nil {
		return nil, &model.LoadError{Source: s.path, Err: err}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, &model.LoadError{Source: s.path, Err: err}
	}
	defer db.Close()
	return QuerySQLite(ctx, db, s.path, s.table)
}

// QuerySQLite reads flights from table on an open database.
func QuerySQLite(ctx context.Context, db *sql.DB, name, table string) ([]*model.Flight, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT CAST(id AS TEXT), CAST(direction AS TEXT), CAST(priority AS TEXT), CAST(emergency AS TEXT)
		 FROM `+table+` ORDER BY rowid`)
	if err != nil {
		return nil, &model.LoadError{Source: name, Err: err}
	}
	defer rows.Close()

	c := newCollector(name)
	for line := 1; rows.Next(); line++ {
		var id, direction, priority, emergency sql.NullString
		if err := rows.Scan(&id, &direction, &priority, &emergency); err != nil {
			c.fail(line, err)
			continue
		}
		rec := record{id: id.String, direction: direction.String, emergency: emergency.String}
		if priority.Valid {
			rec.priority = &priority.String
		}
		c.add(line, rec)
	}
	if err := rows.Err(); err != nil {
		c.errs = append(c.errs, &model.LoadError{Source: name, Err: err})
	}
	return c.result()
}
