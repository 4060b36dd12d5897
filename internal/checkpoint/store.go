package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var ErrNotFound = errors.New("checkpoint: not found")

// Store keeps snapshots in a single SQLite table as JSON payloads.
type Store struct {
	db   *sql.DB
	path string
}

// Summary is a stored snapshot without its payload.
type Summary struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"created_at"`
	Mechanisms int       `json:"mechanisms"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "mechpack.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		created_at TEXT NOT NULL,
		mechanisms INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, label, created_at, mechanisms, payload) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Label, snap.CreatedAt.UTC().Format(time.RFC3339Nano), len(snap.Mechanisms), payload)
	if err != nil {
		return fmt.Errorf("insert checkpoint %s: %w", snap.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", id, err)
	}
	return &snap, nil
}

// List returns stored snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, created_at, mechanisms FROM checkpoints ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			created string
		)
		if err := rows.Scan(&sum.ID, &sum.Label, &created, &sum.Mechanisms); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
