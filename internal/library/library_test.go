package library

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"voltrack/internal/db"
	"voltrack/internal/volume"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testVolume(mount string) *volume.Volume {
	dev := uuid.MustParse("44444444-4444-4444-8444-444444444444")
	v := volume.New(dev, volume.FromPrimaryVolume(mount, dev), "data", mount)
	v.FileSystem = volume.FSExt4
	v.VolumeType = volume.TypeSecondary
	v.SetCapacity(1000, 400)
	return v
}

func TestCreateAndGetLibrary(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	lib, err := s.Create(ctx, "Photos")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, lib.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Photos" || got.Volumes == nil {
		t.Errorf("unexpected library %+v", got)
	}

	if _, err := s.Create(ctx, "  "); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := s.Create(ctx, "Photos"); err == nil {
		t.Error("expected error for duplicate name")
	}
	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestEnsureLibrary(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	a, err := s.Ensure(ctx, "Default")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Ensure(ctx, "Default")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Error("Ensure should return the existing library")
	}
	libs, err := s.List(ctx)
	if err != nil || len(libs) != 1 {
		t.Fatalf("List: %v (%d)", err, len(libs))
	}
}

func TestVolumeUpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	lib, _ := s.Create(ctx, "Main")

	v := testVolume("/mnt/data")
	if err := lib.Volumes.Upsert(ctx, v); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := lib.Volumes.GetByFingerprint(ctx, v.Fingerprint)
	if err != nil {
		t.Fatalf("GetByFingerprint: %v", err)
	}
	if rec.UUID != v.ID || rec.LibraryID != lib.ID || rec.TotalCapacity != 1000 || rec.AvailableSpace != 400 {
		t.Errorf("unexpected record %+v", rec)
	}
	firstTracked := rec.TrackedAt

	v.Name = "renamed"
	v.SetCapacity(1000, 100)
	if err := lib.Volumes.Upsert(ctx, v); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	recs, err := lib.Volumes.List(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List: %v (%d)", err, len(recs))
	}
	if recs[0].Name != "renamed" || recs[0].AvailableSpace != 100 {
		t.Errorf("upsert did not refresh: %+v", recs[0])
	}
	if !recs[0].TrackedAt.Equal(firstTracked) {
		t.Error("tracked_at should survive an upsert")
	}
}

func TestLastSeenWithTrailingZeroNanos(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	lib, _ := s.Create(ctx, "Main")

	for i, ns := range []int{123456000, 500000000, 0} {
		v := testVolume("/mnt/disk" + string(rune('a'+i)))
		v.LastSeen = time.Date(2025, 5, 1, 12, 0, 0, ns, time.UTC)
		if err := lib.Volumes.Upsert(ctx, v); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		rec, err := lib.Volumes.GetByFingerprint(ctx, v.Fingerprint)
		if err != nil {
			t.Fatalf("GetByFingerprint (ns=%d): %v", ns, err)
		}
		if !rec.LastSeen.Equal(v.LastSeen) {
			t.Errorf("last_seen = %v, want %v", rec.LastSeen, v.LastSeen)
		}
	}
	if recs, err := lib.Volumes.List(ctx); err != nil || len(recs) != 3 {
		t.Fatalf("List: %v (%d)", err, len(recs))
	}
}

func TestVolumeRecordsAreScopedByLibrary(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	a, _ := s.Create(ctx, "A")
	b, _ := s.Create(ctx, "B")

	v := testVolume("/mnt/shared")
	if err := a.Volumes.Upsert(ctx, v); err != nil {
		t.Fatal(err)
	}
	if err := b.Volumes.Upsert(ctx, v); err != nil {
		t.Fatalf("same volume in a second library: %v", err)
	}
	if err := a.Volumes.DeleteByID(ctx, v.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Volumes.Get(ctx, v.ID); err != nil {
		t.Errorf("record in library B should remain: %v", err)
	}
	if _, err := a.Volumes.GetByFingerprint(ctx, v.Fingerprint); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("expected NotFound in library A, got %v", err)
	}
}

func TestDeleteVolumeNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	lib, _ := s.Create(ctx, "Main")

	err := lib.Volumes.DeleteByID(ctx, uuid.New())
	if !errors.Is(err, volume.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteLibraryCascades(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	s := NewStore(conn)
	lib, _ := s.Create(ctx, "Main")
	lib.Volumes.Upsert(ctx, testVolume("/mnt/a"))

	if err := s.Delete(ctx, lib.ID); err != nil {
		t.Fatal(err)
	}
	var n int
	conn.QueryRow(`SELECT COUNT(*) FROM volumes`).Scan(&n)
	if n != 0 {
		t.Errorf("expected cascade delete, %d rows left", n)
	}
	if err := s.Delete(ctx, lib.ID); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
