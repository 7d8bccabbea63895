package syncable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voltrack/internal/db"
)

// MimeType is a MIME type discovered at runtime and shared across devices.
type MimeType struct {
	ID        int64     `json:"id"`
	UUID      uuid.UUID `json:"uuid"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// MimeTypes is the mime_types table and its sync participant.
type MimeTypes struct {
	db *sql.DB
}

func NewMimeTypes(db *sql.DB) *MimeTypes {
	return &MimeTypes{db: db}
}

func (*MimeTypes) Model() string { return "mime_type" }

func (*MimeTypes) Table() string { return "mime_types" }

func (*MimeTypes) ExcludeFields() []string { return []string{"id", "created_at"} }

func (*MimeTypes) DependsOn() []string { return nil }

// Ensure returns the row for mime, inserting it when first seen.
func (s *MimeTypes) Ensure(ctx context.Context, mime string) (*MimeType, error) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return nil, errors.New("ensure mime type: empty mime type")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mime_types (uuid, mime_type, created_at) VALUES (?, ?, ?)
		ON CONFLICT(mime_type) DO NOTHING`,
		uuid.New().String(), mime, db.FormatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("ensure mime type: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uuid, mime_type, created_at FROM mime_types WHERE mime_type = ?`, mime)
	return scanMimeType(row)
}

// GetByUUID returns the row with the given sync id.
func (s *MimeTypes) GetByUUID(ctx context.Context, id uuid.UUID) (*MimeType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uuid, mime_type, created_at FROM mime_types WHERE uuid = ?`, id.String())
	return scanMimeType(row)
}

func (s *MimeTypes) LookupID(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	var local int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM mime_types WHERE uuid = ?`, id.String()).Scan(&local)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup mime type id: %w", err)
	}
	return local, true, nil
}

func (s *MimeTypes) LookupUUID(ctx context.Context, id int64) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT uuid FROM mime_types WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup mime type uuid: %w", err)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup mime type uuid: %w", err)
	}
	return u, true, nil
}

func (s *MimeTypes) LookupIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, id FROM mime_types WHERE uuid IN (`+db.Placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch lookup mime type ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			raw   string
			local int64
		)
		if err := rows.Scan(&raw, &local); err != nil {
			return nil, fmt.Errorf("batch lookup mime type ids: %w", err)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("batch lookup mime type ids: %w", err)
		}
		out[u] = local
	}
	return out, rows.Err()
}

func (s *MimeTypes) LookupUUIDs(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error) {
	out := make(map[int64]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uuid FROM mime_types WHERE id IN (`+db.Placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch lookup mime type uuids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			local int64
			raw   string
		)
		if err := rows.Scan(&local, &raw); err != nil {
			return nil, fmt.Errorf("batch lookup mime type uuids: %w", err)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("batch lookup mime type uuids: %w", err)
		}
		out[local] = u
	}
	return out, rows.Err()
}

// QueryForSync returns rows in (created_at, uuid) order after q.After.
func (s *MimeTypes) QueryForSync(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, db.FormatTime(*q.Since))
	}
	if q.After != nil {
		ts := db.FormatTime(q.After.CreatedAt)
		where = append(where, "(created_at > ? OR (created_at = ? AND uuid > ?))")
		args = append(args, ts, ts, q.After.UUID.String())
	}
	query := `SELECT id, uuid, mime_type, created_at FROM mime_types`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, uuid ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mime types for sync: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		m, err := scanMimeType(rows)
		if err != nil {
			return nil, err
		}
		data, err := StripFields(m, s.ExcludeFields())
		if err != nil {
			return nil, fmt.Errorf("query mime types for sync: %w", err)
		}
		out = append(out, Record{UUID: m.UUID, Data: data, CreatedAt: m.CreatedAt})
	}
	return out, rows.Err()
}

// ApplySharedChange upserts on uuid for inserts and updates and deletes by
// record uuid. Applying the same change twice leaves the same state.
func (s *MimeTypes) ApplySharedChange(ctx context.Context, change SharedChange) error {
	switch change.ChangeType {
	case ChangeInsert, ChangeUpdate:
		var payload struct {
			UUID     *uuid.UUID `json:"uuid"`
			MimeType *string    `json:"mime_type"`
		}
		if err := json.Unmarshal(change.Data, &payload); err != nil {
			return fmt.Errorf("apply mime type: data is not an object: %w", err)
		}
		if payload.UUID == nil {
			return errors.New("apply mime type: missing uuid")
		}
		if payload.MimeType == nil {
			return errors.New("apply mime type: missing mime_type")
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO mime_types (uuid, mime_type, created_at) VALUES (?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET mime_type = excluded.mime_type`,
			payload.UUID.String(), *payload.MimeType, db.FormatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("apply mime type: %w", err)
		}
		return nil

	case ChangeDelete:
		_, err := s.db.ExecContext(ctx, `DELETE FROM mime_types WHERE uuid = ?`, change.RecordUUID.String())
		if err != nil {
			return fmt.Errorf("apply mime type delete: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("apply mime type: unknown change type %q", change.ChangeType)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMimeType(row scanner) (*MimeType, error) {
	var (
		m         MimeType
		raw       string
		createdAt string
	)
	if err := row.Scan(&m.ID, &raw, &m.MimeType, &createdAt); err != nil {
		return nil, fmt.Errorf("scan mime type: %w", err)
	}
	var err error
	if m.UUID, err = uuid.Parse(raw); err != nil {
		return nil, fmt.Errorf("scan mime type: %w", err)
	}
	if m.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("scan mime type: %w", err)
	}
	return &m, nil
}
