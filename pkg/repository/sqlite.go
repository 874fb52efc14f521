package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps history in a local database file
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Repository = (*SQLite)(nil)

// NewSQLite opens (and creates if needed) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create data dir", goerr.V("path", path))
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate database", goerr.V("path", path))
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		date_formatted TEXT NOT NULL,
		spread_type TEXT NOT NULL,
		cards_json TEXT NOT NULL,
		interpretation TEXT NOT NULL,
		favorite INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PutReading(ctx context.Context, reading *model.Reading) error {
	if err := reading.Validate(); err != nil {
		return goerr.Wrap(err, "failed to put reading")
	}

	cardsJSON, err := json.Marshal(reading.Cards)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal cards", goerr.V("id", reading.ID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE id = ?`, reading.ID); err != nil {
		return goerr.Wrap(err, "failed to replace reading", goerr.V("id", reading.ID))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO readings (id, timestamp, date_formatted, spread_type, cards_json, interpretation, favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, reading.ID, reading.Timestamp, reading.DateFormatted, reading.SpreadType, string(cardsJSON), reading.Interpretation, reading.Favorite); err != nil {
		return goerr.Wrap(err, "failed to insert reading", goerr.V("id", reading.ID))
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM readings WHERE seq NOT IN (
			SELECT seq FROM readings ORDER BY seq DESC LIMIT ?
		)
	`, MaxReadings); err != nil {
		return goerr.Wrap(err, "failed to trim history")
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit reading", goerr.V("id", reading.ID))
	}
	return nil
}

const selectReading = `SELECT id, timestamp, date_formatted, spread_type, cards_json, interpretation, favorite FROM readings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*model.Reading, error) {
	var (
		r         model.Reading
		cardsJSON string
	)
	if err := row.Scan(&r.ID, &r.Timestamp, &r.DateFormatted, &r.SpreadType, &cardsJSON, &r.Interpretation, &r.Favorite); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cardsJSON), &r.Cards); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal cards", goerr.V("id", r.ID))
	}
	return &r, nil
}

func (s *SQLite) GetReading(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	r, err := scanReading(s.db.QueryRowContext(ctx, selectReading+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrReadingNotFound, "failed to get reading", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get reading", goerr.V("id", id))
	}
	return r, nil
}

func (s *SQLite) ListReadings(ctx context.Context, offset, limit int) ([]*model.Reading, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, selectReading+` ORDER BY seq DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list readings")
	}
	defer rows.Close()

	readings := []*model.Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan reading")
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate readings")
	}
	return readings, nil
}

func (s *SQLite) CountReadings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count readings")
	}
	return n, nil
}

func (s *SQLite) UpdateFavorite(ctx context.Context, id model.ReadingID, favorite bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE readings SET favorite = ? WHERE id = ?`, favorite, id)
	if err != nil {
		return goerr.Wrap(err, "failed to update favorite", goerr.V("id", id))
	}
	return expectAffected(res, id)
}

func (s *SQLite) ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE readings SET favorite = NOT favorite WHERE id = ?`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to toggle favorite", goerr.V("id", id))
	}
	if err := expectAffected(res, id); err != nil {
		return nil, err
	}

	r, err := scanReading(tx.QueryRowContext(ctx, selectReading+` WHERE id = ?`, id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get reading", goerr.V("id", id))
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit favorite", goerr.V("id", id))
	}
	return r, nil
}

func (s *SQLite) DeleteReading(ctx context.Context, id model.ReadingID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE id = ?`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete reading", goerr.V("id", id))
	}
	return expectAffected(res, id)
}

func (s *SQLite) ClearReadings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return goerr.Wrap(err, "failed to clear readings")
	}
	return nil
}

func expectAffected(res sql.Result, id model.ReadingID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to get affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrReadingNotFound, "no reading updated", goerr.V("id", id))
	}
	return nil
}
