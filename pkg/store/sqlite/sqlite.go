// Package sqlite provides a SQLite-backed puzzle store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/puzzleworks/piecefinder/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS puzzles (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	width        INTEGER NOT NULL,
	height       INTEGER NOT NULL,
	num_features INTEGER NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	image        BLOB NOT NULL
);
`

// Driver implements store.Driver backed by SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed puzzle store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" pointing at one database
	// (each sqlite3 connection would otherwise get its own) and
	// serializes writers so concurrent Puts never hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// Put stores a puzzle. Returns true if the puzzle was newly inserted,
// false if a puzzle with the same ID was replaced.
func (s *Driver) Put(ctx context.Context, puzzle *store.Puzzle) (bool, error) {
	if puzzle == nil {
		return false, errors.New("cannot store nil puzzle")
	}

	// INSERT OR IGNORE reports via its row count whether this call created
	// the row, so the inserted flag cannot race with a concurrent Put.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO puzzles (id, name, width, height, num_features, created_at, image)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		puzzle.ID, puzzle.Name, puzzle.Width, puzzle.Height,
		puzzle.NumFeatures, puzzle.CreatedAt.UTC(), puzzle.Image,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store puzzle %s: %w", puzzle.ID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to store puzzle %s: %w", puzzle.ID, err)
	}
	if inserted > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE puzzles SET
			name = ?,
			width = ?,
			height = ?,
			num_features = ?,
			created_at = ?,
			image = ?
		WHERE id = ?`,
		puzzle.Name, puzzle.Width, puzzle.Height,
		puzzle.NumFeatures, puzzle.CreatedAt.UTC(), puzzle.Image,
		puzzle.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store puzzle %s: %w", puzzle.ID, err)
	}

	return false, nil
}

// Get retrieves a puzzle by its ID.
func (s *Driver) Get(ctx context.Context, id string) (*store.Puzzle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, width, height, num_features, created_at, image
		FROM puzzles WHERE id = ?`, id)

	puzzle, err := scanPuzzle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get puzzle %s: %w", id, err)
	}

	return puzzle, nil
}

// Has checks if a puzzle exists by its ID.
func (s *Driver) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM puzzles WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// List returns all puzzles, newest first, without image bytes.
func (s *Driver) List(ctx context.Context) ([]*store.Puzzle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, width, height, num_features, created_at
		FROM puzzles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list puzzles: %w", err)
	}
	defer rows.Close()

	var puzzles []*store.Puzzle
	for rows.Next() {
		p := &store.Puzzle{}
		var createdAt time.Time
		if err := rows.Scan(&p.ID, &p.Name, &p.Width, &p.Height, &p.NumFeatures, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan puzzle: %w", err)
		}
		p.CreatedAt = createdAt
		puzzles = append(puzzles, p)
	}

	return puzzles, rows.Err()
}

// Delete removes a puzzle by its ID.
func (s *Driver) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM puzzles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete puzzle %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFoundError{ID: id}
	}

	return nil
}

// Close closes the underlying database.
func (s *Driver) Close() error {
	return s.db.Close()
}

func scanPuzzle(scan func(...any) error) (*store.Puzzle, error) {
	p := &store.Puzzle{}
	var createdAt time.Time
	if err := scan(&p.ID, &p.Name, &p.Width, &p.Height, &p.NumFeatures, &createdAt, &p.Image); err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt

	return p, nil
}
