package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"voltrack/internal/events"
	"voltrack/internal/filesystem"
	"voltrack/internal/volume"
)

var (
	dataVol   = fakeVolume{mount: "/mnt/data", fs: volume.FSExt4, total: 1000, avail: 500}
	backupVol = fakeVolume{mount: "/mnt/backup", fs: volume.FSBtrfs, total: 2000, avail: 100}
	nestedVol = fakeVolume{mount: "/mnt/data/archive", fs: volume.FSExt4, total: 300, avail: 30}
)

func TestRefreshAddsVolumes(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	m, rec := newTestManager(t, d, rootProber{roots: []string{"/mnt/data", "/mnt/backup"}})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := len(m.GetAllVolumes()); got != 2 {
		t.Fatalf("expected 2 volumes, got %d", got)
	}
	if n := rec.count(events.VolumeAdded); n != 2 {
		t.Errorf("expected 2 VolumeAdded events, got %d", n)
	}
	if n := rec.count(events.ResourceAdded); n != 2 {
		t.Errorf("expected 2 ResourceAdded events, got %d", n)
	}

	v, err := m.VolumeForPath("/mnt/data")
	if err != nil {
		t.Fatal(err)
	}
	if v.Metadata == nil || v.Metadata.Features == nil || !v.Metadata.Features.Hardlinks {
		t.Errorf("ext4 volume should carry generic features, got %+v", v.Metadata)
	}
}

func TestRefreshUnchangedMachineYieldsNoChanges(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()

	if _, err := m.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	changes, err := m.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !changes.Empty() {
		t.Errorf("expected no changes, got %+v", changes)
	}
	if rec.len() != 0 {
		t.Errorf("expected no events, got %d", rec.len())
	}
}

func TestRefreshReportsChangesAndRemovals(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()
	m.Refresh(ctx)
	rec.reset()

	shrunk := dataVol
	shrunk.avail = 10
	d.set(shrunk)

	changes, err := m.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.Changed) != 1 || changes.Changed[0].AvailableSpace != 10 {
		t.Errorf("expected one capacity change, got %+v", changes.Changed)
	}
	if len(changes.Removed) != 1 || changes.Removed[0].MountPath != "/mnt/backup" {
		t.Errorf("expected backup removed, got %+v", changes.Removed)
	}
	if rec.count(events.VolumeChanged) != 1 || rec.count(events.VolumeRemoved) != 1 {
		t.Errorf("unexpected events: changed=%d removed=%d",
			rec.count(events.VolumeChanged), rec.count(events.VolumeRemoved))
	}
	if rec.count(events.ResourceChanged) != 1 || rec.count(events.ResourceDeleted) != 1 {
		t.Errorf("unexpected resource events: changed=%d deleted=%d",
			rec.count(events.ResourceChanged), rec.count(events.ResourceDeleted))
	}
	if _, err := m.VolumeForPath("/mnt/backup/x"); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("removed volume should be evicted, got %v", err)
	}
}

func TestDetectionFailureKeepsCache(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()
	m.Refresh(ctx)

	d.fail(errors.New("mount table unreadable"))
	if _, err := m.Refresh(ctx); err == nil {
		t.Fatal("expected detection error")
	}
	if got := len(m.GetAllVolumes()); got != 1 {
		t.Errorf("cache should be intact, got %d volumes", got)
	}
	if rec.count(events.VolumeDetectionFailed) != 1 {
		t.Error("expected a VolumeDetectionFailed event")
	}
	if rec.count(events.VolumeRemoved) != 0 {
		t.Error("failed detection must not remove volumes")
	}
}

func TestEnhancementFailureIsInvisible(t *testing.T) {
	d := &fakeDetector{}
	d.set(backupVol, fakeVolume{mount: "/mnt/win", fs: volume.FSNTFS, total: 10, avail: 5})
	m, _ := newTestManager(t, d, failingProber{})

	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh with failing prober: %v", err)
	}
	vols := m.GetAllVolumes()
	if len(vols) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(vols))
	}
	for _, v := range vols {
		if v.Metadata != nil && v.Metadata.VolumeGUID != "" {
			t.Errorf("%s: unexpected guid with failing prober", v.MountPath)
		}
	}
}

func TestTrackVolume(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()
	m.Refresh(ctx)
	rec.reset()
	lib := testLibrary(t, setupTestDB(t))

	v := m.GetAllVolumes()[0]
	tracked, err := m.TrackVolume(ctx, lib, v.ID)
	if err != nil {
		t.Fatalf("TrackVolume: %v", err)
	}
	if !tracked.IsTracked || tracked.LibraryID == nil || *tracked.LibraryID != lib.ID {
		t.Errorf("unexpected tracking state %+v", tracked)
	}
	if _, err := lib.Volumes.GetByFingerprint(ctx, v.Fingerprint); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
	if rec.count(events.ResourceAdded) != 1 || rec.count(events.VolumeChanged) != 1 {
		t.Errorf("expected ResourceAdded and VolumeChanged, got %+v", rec.events)
	}

	if _, err := m.TrackVolume(ctx, lib, uuid.New()); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("tracking unknown volume: %v", err)
	}
}

func TestUntrackVolume(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()
	m.Refresh(ctx)
	lib := testLibrary(t, setupTestDB(t))
	v := m.GetAllVolumes()[0]
	if _, err := m.TrackVolume(ctx, lib, v.ID); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := m.UntrackVolumeByID(ctx, lib, v.ID); err != nil {
		t.Fatalf("UntrackVolumeByID: %v", err)
	}

	got, err := m.GetVolume(v.ID)
	if err != nil {
		t.Fatalf("volume should stay cached: %v", err)
	}
	if got.IsTracked || got.LibraryID != nil {
		t.Errorf("tracking not cleared: %+v", got)
	}
	if _, err := lib.Volumes.Get(ctx, v.ID); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("record should be gone, got %v", err)
	}
	if rec.count(events.VolumeRemoved) != 1 {
		t.Error("expected a VolumeRemoved event")
	}
	if rec.count(events.ResourceChanged) != 1 {
		t.Error("expected a ResourceChanged event")
	}
	if rec.count(events.ResourceDeleted) != 0 {
		t.Error("untrack must not publish ResourceDeleted")
	}
}

func TestUntrackFailureLeavesCache(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, rec := newTestManager(t, d, rootProber{})
	ctx := context.Background()
	m.Refresh(ctx)
	conn := setupTestDB(t)
	lib := testLibrary(t, conn)
	v := m.GetAllVolumes()[0]
	m.TrackVolume(ctx, lib, v.ID)
	rec.reset()

	if err := m.UntrackVolumeByID(ctx, lib, uuid.New()); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}

	conn.Close()
	if err := m.UntrackVolumeByID(ctx, lib, v.ID); err == nil {
		t.Fatal("expected error with closed database")
	}
	got, _ := m.GetVolume(v.ID)
	if !got.IsTracked || got.LibraryID == nil {
		t.Error("failed untrack must not change the cache")
	}
	if rec.len() != 0 {
		t.Errorf("failed untrack published %d events", rec.len())
	}
}

func TestTrackedStateSurvivesRestart(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	conn := setupTestDB(t)
	lib := testLibrary(t, conn)
	ctx := context.Background()

	first, _ := newTestManager(t, d, rootProber{})
	first.Refresh(ctx)
	target, _ := first.VolumeForPath("/mnt/backup")
	if _, err := first.TrackVolume(ctx, lib, target.ID); err != nil {
		t.Fatal(err)
	}

	second, _ := newTestManager(t, d, rootProber{})
	second.AttachLibrary(lib)
	if err := second.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := second.GetVolume(target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsTracked || got.LibraryID == nil || *got.LibraryID != lib.ID {
		t.Errorf("tracked state not reconciled: %+v", got)
	}
	other, _ := second.VolumeForPath("/mnt/data")
	if other.IsTracked {
		t.Error("untracked volume reported as tracked")
	}

	// A later pass keeps the flag without touching the store again.
	if changes, _ := second.Refresh(ctx); !changes.Empty() {
		t.Errorf("unexpected changes %+v", changes)
	}
	got, _ = second.GetVolume(target.ID)
	if !got.IsTracked {
		t.Error("tracking lost on refresh")
	}
}

func TestGetAllVolumesReturnsCopies(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, _ := newTestManager(t, d, rootProber{})
	m.Refresh(context.Background())

	vols := m.GetAllVolumes()
	vols[0].Name = "mutated"
	vols[0].IsTracked = true
	again := m.GetAllVolumes()
	if again[0].Name == "mutated" || again[0].IsTracked {
		t.Error("GetAllVolumes must return copies")
	}
}

func TestVolumeForPathPicksLongestMount(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, nestedVol)
	m, _ := newTestManager(t, d, rootProber{})
	m.Refresh(context.Background())

	tests := []struct {
		path string
		want string
	}{
		{"/mnt/data/file.txt", "/mnt/data"},
		{"/mnt/data/archive/2024/a.jpg", "/mnt/data/archive"},
		{"/mnt/data/archive", "/mnt/data/archive"},
		{"/mnt/data/archived", "/mnt/data"},
	}
	for _, tt := range tests {
		v, err := m.VolumeForPath(tt.path)
		if err != nil {
			t.Errorf("%s: %v", tt.path, err)
			continue
		}
		if v.MountPath != tt.want {
			t.Errorf("%s: got %s, want %s", tt.path, v.MountPath, tt.want)
		}
	}
	if _, err := m.VolumeForPath("/srv/other"); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCopyStrategyFor(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	prober := rootProber{roots: []string{"/mnt/data", "/mnt/backup"}, clone: true}
	m, _ := newTestManager(t, d, prober)
	ctx := context.Background()
	m.Refresh(ctx)

	plan := m.CopyStrategyFor(ctx, "/mnt/backup/a", "/mnt/backup/b")
	if plan.Method != filesystem.MethodClone || plan.Strategy != "clone:btrfs" {
		t.Errorf("same btrfs volume: %+v", plan)
	}
	if plan.SourceVolume == nil || plan.DestVolume == nil || *plan.SourceVolume != *plan.DestVolume {
		t.Errorf("expected matching volume ids, got %+v", plan)
	}

	plan = m.CopyStrategyFor(ctx, "/mnt/backup/a", "/mnt/data/b")
	if plan.Method != filesystem.MethodStream {
		t.Errorf("cross-volume copy should stream, got %+v", plan)
	}

	plan = m.CopyStrategyFor(ctx, "/mnt/data/a", "/mnt/data/b")
	if plan.Method != filesystem.MethodStream || plan.Strategy != "stream" {
		t.Errorf("ext4 copy should stream, got %+v", plan)
	}

	if !m.SamePhysicalStorage(ctx, "/mnt/data/a", "/mnt/data/b") {
		t.Error("paths on one ext4 volume should share storage")
	}
	if m.SamePhysicalStorage(ctx, "/mnt/data/a", "/mnt/backup/b") {
		t.Error("paths on different volumes should not share storage")
	}
}

func TestRefreshCapacity(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol)
	m, rec := newTestManager(t, d, rootProber{})
	usage := func(string) (uint64, uint64, bool) { return 1000, 2000, true }
	m.usage = usage
	ctx := context.Background()
	m.Refresh(ctx)
	rec.reset()

	v := m.GetAllVolumes()[0]
	got, err := m.RefreshCapacity(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalCapacity != 1000 || got.AvailableSpace != 1000 {
		t.Errorf("available should be clamped to total, got %d/%d", got.AvailableSpace, got.TotalCapacity)
	}
	if rec.count(events.VolumeChanged) != 1 {
		t.Error("expected VolumeChanged after capacity change")
	}

	m.usage = func(string) (uint64, uint64, bool) { return 0, 0, false }
	if _, err := m.RefreshCapacity(ctx, v.ID); !errors.Is(err, volume.ErrPlatform) {
		t.Errorf("expected platform error, got %v", err)
	}
	if _, err := m.RefreshCapacity(ctx, uuid.New()); !errors.Is(err, volume.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCloneVolumes(t *testing.T) {
	d := &fakeDetector{}
	d.set(dataVol, backupVol)
	ctx := context.Background()

	m, _ := newTestManager(t, d, rootProber{roots: []string{"/mnt/data", "/mnt/backup"}, clone: true})
	m.Refresh(ctx)
	vols := m.CloneVolumes(ctx)
	if len(vols) != 1 || vols[0].MountPath != "/mnt/backup" {
		t.Fatalf("expected only the btrfs volume, got %d", len(vols))
	}

	m, _ = newTestManager(t, d, rootProber{roots: []string{"/mnt/data", "/mnt/backup"}})
	m.Refresh(ctx)
	if vols := m.CloneVolumes(ctx); len(vols) != 0 {
		t.Errorf("expected no clone-capable volumes, got %d", len(vols))
	}
}
