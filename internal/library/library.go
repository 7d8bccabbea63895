// Package library persists libraries and the volumes they track.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voltrack/internal/db"
	"voltrack/internal/volume"
)

// Library is a named collection that owns tracked-volume records.
type Library struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Volumes is the library's tracked-volume table.
	Volumes *VolumeStore `json:"-" yaml:"-"`
}

// Store manages library rows.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new library.
func (s *Store) Create(ctx context.Context, name string) (*Library, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create library: name is required")
	}
	lib := &Library{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (id, name, created_at) VALUES (?, ?, ?)`,
		lib.ID.String(), lib.Name, db.FormatTime(lib.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create library: %w", err)
	}
	lib.Volumes = s.volumes(lib.ID)
	return lib, nil
}

// Get returns the library with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM libraries WHERE id = ?`, id.String())
	return s.scan(row, "get library")
}

// GetByName returns the library with the given name.
func (s *Store) GetByName(ctx context.Context, name string) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM libraries WHERE name = ?`, name)
	return s.scan(row, "get library by name")
}

// Ensure returns the named library, creating it on first use.
func (s *Store) Ensure(ctx context.Context, name string) (*Library, error) {
	lib, err := s.GetByName(ctx, name)
	if err == nil {
		return lib, nil
	}
	if !errors.Is(err, volume.ErrNotFound) {
		return nil, err
	}
	return s.Create(ctx, name)
}

// List returns all libraries ordered by name.
func (s *Store) List(ctx context.Context) ([]*Library, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM libraries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var out []*Library
	for rows.Next() {
		lib, err := s.scan(rows, "list libraries")
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// Delete removes a library and, by cascade, its volume records.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete library: %w", err)
	}
	if err := db.ExpectOneRow(res, "delete library"); err != nil {
		return volume.NotFound("delete library", "no library %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner, op string) (*Library, error) {
	var (
		lib       Library
		id        string
		createdAt string
	)
	if err := row.Scan(&id, &lib.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, volume.NotFound(op, "no such library")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var err error
	if lib.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: bad library id %q: %w", op, id, err)
	}
	if lib.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lib.Volumes = s.volumes(lib.ID)
	return &lib, nil
}

func (s *Store) volumes(libraryID uuid.UUID) *VolumeStore {
	return &VolumeStore{db: s.db, libraryID: libraryID}
}
