package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voltrack/internal/db"
	"voltrack/internal/volume"
)

// VolumeRecord is the persisted form of a tracked volume.
type VolumeRecord struct {
	UUID           uuid.UUID          `json:"uuid"`
	LibraryID      uuid.UUID          `json:"library_id"`
	DeviceID       uuid.UUID          `json:"device_id"`
	Fingerprint    volume.Fingerprint `json:"fingerprint"`
	Name           string             `json:"name"`
	MountPath      string             `json:"mount_path"`
	MountType      volume.MountType   `json:"mount_type"`
	VolumeType     volume.VolumeType  `json:"volume_type"`
	DiskType       volume.DiskType    `json:"disk_type"`
	FileSystem     volume.FileSystem  `json:"file_system"`
	TotalCapacity  uint64             `json:"total_capacity"`
	AvailableSpace uint64             `json:"available_space"`
	ReadOnly       bool               `json:"read_only"`
	HardwareID     string             `json:"hardware_id,omitempty"`
	TrackedAt      time.Time          `json:"tracked_at"`
	LastSeen       time.Time          `json:"last_seen"`
}

// VolumeStore holds one library's tracked-volume records.
type VolumeStore struct {
	db        *sql.DB
	libraryID uuid.UUID
}

const volumeColumns = `uuid, library_id, device_id, fingerprint, name, mount_path,
	mount_type, volume_type, disk_type, file_system, total_capacity,
	available_space, read_only, hardware_id, tracked_at, last_seen`

// GetByFingerprint returns the record for fp, or a NotFound error.
func (s *VolumeStore) GetByFingerprint(ctx context.Context, fp volume.Fingerprint) (*VolumeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+volumeColumns+`
		FROM volumes WHERE library_id = ? AND fingerprint = ?`,
		s.libraryID.String(), fp.String())
	return scanVolume(row, "get volume by fingerprint")
}

// Get returns the record with the given volume id.
func (s *VolumeStore) Get(ctx context.Context, id uuid.UUID) (*VolumeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+volumeColumns+`
		FROM volumes WHERE library_id = ? AND uuid = ?`,
		s.libraryID.String(), id.String())
	return scanVolume(row, "get volume")
}

// Upsert stores v as tracked by this library. An existing record for the same
// fingerprint is refreshed and keeps its original tracked_at.
func (s *VolumeStore) Upsert(ctx context.Context, v *volume.Volume) error {
	now := time.Now().UTC()
	lastSeen := v.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volumes (`+volumeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(library_id, fingerprint) DO UPDATE SET
			uuid            = excluded.uuid,
			device_id       = excluded.device_id,
			name            = excluded.name,
			mount_path      = excluded.mount_path,
			mount_type      = excluded.mount_type,
			volume_type     = excluded.volume_type,
			disk_type       = excluded.disk_type,
			file_system     = excluded.file_system,
			total_capacity  = excluded.total_capacity,
			available_space = excluded.available_space,
			read_only       = excluded.read_only,
			hardware_id     = excluded.hardware_id,
			last_seen       = excluded.last_seen`,
		v.ID.String(), s.libraryID.String(), v.DeviceID.String(), v.Fingerprint.String(),
		v.Name, v.MountPath, string(v.MountType), string(v.VolumeType), string(v.DiskType),
		string(v.FileSystem), int64(v.TotalCapacity), int64(v.AvailableSpace),
		db.BoolToInt(v.ReadOnly), v.HardwareID, db.FormatTime(now), db.FormatTime(lastSeen))
	if err != nil {
		return fmt.Errorf("upsert volume: %w", err)
	}
	return nil
}

// DeleteByID removes the record for a volume id.
func (s *VolumeStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM volumes WHERE library_id = ? AND uuid = ?`,
		s.libraryID.String(), id.String())
	if err != nil {
		return fmt.Errorf("delete volume: %w", err)
	}
	if err := db.ExpectOneRow(res, "delete volume"); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return volume.NotFound("delete volume", "volume %s is not tracked by this library", id)
		}
		return err
	}
	return nil
}

// List returns every tracked record ordered by name.
func (s *VolumeStore) List(ctx context.Context) ([]VolumeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+volumeColumns+`
		FROM volumes WHERE library_id = ? ORDER BY name, uuid`, s.libraryID.String())
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	defer rows.Close()

	var out []VolumeRecord
	for rows.Next() {
		rec, err := scanVolume(rows, "list volumes")
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanVolume(row scanner, op string) (*VolumeRecord, error) {
	var (
		rec                              VolumeRecord
		id, libID, devID, fp             string
		mountType, volType, diskType, fs string
		total, avail                     int64
		readOnly                         int
		hardwareID                       sql.NullString
		trackedAt, lastSeen              string
	)
	err := row.Scan(&id, &libID, &devID, &fp, &rec.Name, &rec.MountPath,
		&mountType, &volType, &diskType, &fs, &total, &avail, &readOnly,
		&hardwareID, &trackedAt, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, volume.NotFound(op, "no matching volume record")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rec.UUID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: bad uuid: %w", op, err)
	}
	if rec.LibraryID, err = uuid.Parse(libID); err != nil {
		return nil, fmt.Errorf("%s: bad library id: %w", op, err)
	}
	if rec.DeviceID, err = uuid.Parse(devID); err != nil {
		return nil, fmt.Errorf("%s: bad device id: %w", op, err)
	}
	if rec.Fingerprint, err = volume.ParseFingerprint(fp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.TrackedAt, err = db.ParseTime(trackedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.LastSeen, err = db.ParseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rec.MountType = volume.MountType(mountType)
	rec.VolumeType = volume.VolumeType(volType)
	rec.DiskType = volume.DiskType(diskType)
	rec.FileSystem = volume.FileSystem(fs)
	rec.TotalCapacity = uint64(total)
	rec.AvailableSpace = uint64(avail)
	rec.ReadOnly = db.IntToBool(readOnly)
	rec.HardwareID = hardwareID.String
	return &rec, nil
}
