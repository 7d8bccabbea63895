package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

const gb = 1 << 30

var testDevice = uuid.MustParse("33333333-3333-4333-8333-333333333333")

func linuxClassifier() volume.Classifier {
	return &volume.PathClassifier{Policy: volume.DefaultPolicy("linux")}
}

func staticEnum(raws ...RawVolume) Enumerator {
	return EnumeratorFunc(func(context.Context) ([]RawVolume, error) {
		out := make([]RawVolume, len(raws))
		copy(out, raws)
		return out, nil
	})
}

func noUsage(string) (uint64, uint64, bool) { return 0, 0, false }

func newTestDetector(enum Enumerator, markers volume.MarkerStore) *Detector {
	return NewDetector(enum, linuxClassifier(), markers, worker.New(2, time.Second)).WithUsage(noUsage)
}

type failingMarkers struct{}

func (failingMarkers) ReadOrCreate(string, uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, errors.New("read-only media")
}

func TestDetectBuildsVolumes(t *testing.T) {
	ssd := false
	d := newTestDetector(staticEnum(
		RawVolume{Device: "/dev/nvme0n1p2", MountPath: "/", FileSystem: "ext4", Total: 100 * gb, Available: 40 * gb, Rotational: &ssd, HardwareID: "uuid-root"},
		RawVolume{Device: "/dev/sdb1", MountPath: "/home", FileSystem: "xfs", Label: "HOME", Total: 500 * gb, Available: 600 * gb},
		RawVolume{Device: "//nas/share", MountPath: "/mnt/nas", FileSystem: "cifs", Total: gb, Network: boolPtr(true), BackendID: "//nas/share"},
		RawVolume{Device: "tmpfs", MountPath: "/run", FileSystem: "tmpfs", Total: gb, Virtual: true},
	), nil)

	vols, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if err != nil {
		t.Fatalf("DetectVolumes: %v", err)
	}
	if len(vols) != 3 {
		t.Fatalf("expected 3 volumes (virtual filtered), got %d", len(vols))
	}

	root, home, nas := vols[0], vols[1], vols[2]
	if root.VolumeType != volume.TypePrimary || root.MountType != volume.MountUser || root.DiskType != volume.DiskSSD {
		t.Errorf("root: %s/%s/%s", root.VolumeType, root.MountType, root.DiskType)
	}
	if root.Fingerprint != volume.FromPrimaryVolume("/", testDevice) {
		t.Error("root fingerprint should follow the primary rule")
	}
	if root.Name != "/" {
		t.Errorf("unlabeled root should be named by its path, got %q", root.Name)
	}
	if home.Name != "HOME" || home.VolumeType != volume.TypeUserData {
		t.Errorf("home: name %q type %s", home.Name, home.VolumeType)
	}
	if home.AvailableSpace != home.TotalCapacity {
		t.Error("available space should be clamped to capacity")
	}
	if nas.VolumeType != volume.TypeNetwork || nas.MountType != volume.MountNetwork {
		t.Errorf("nas: %s/%s", nas.VolumeType, nas.MountType)
	}
	if nas.Fingerprint != volume.FromNetworkVolume("//nas/share", "/elsewhere") {
		t.Error("network fingerprint should follow the backend")
	}
	if nas.FileSystem != volume.FSSMB {
		t.Errorf("nas filesystem %s", nas.FileSystem)
	}
}

func TestDetectSkipsUnusableEntries(t *testing.T) {
	d := newTestDetector(staticEnum(
		RawVolume{MountPath: "", FileSystem: "ext4", Total: gb},
		RawVolume{MountPath: "/mnt/empty", FileSystem: "ext4", Total: 0},
		RawVolume{MountPath: "/mnt/ok", FileSystem: "ext4", Total: gb},
	), nil)

	vols, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 1 || vols[0].MountPath != "/mnt/ok" {
		t.Fatalf("expected only /mnt/ok, got %d volumes", len(vols))
	}
}

func TestDetectProbesCapacityPerEntry(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	enum := staticEnum(
		RawVolume{Device: "/dev/sda1", MountPath: "/", FileSystem: "ext4"},
		RawVolume{Device: "nas:/export", MountPath: "/mnt/nas", FileSystem: "nfs4", Network: boolPtr(true), BackendID: "nas:/export"},
		RawVolume{Device: "/dev/sdb1", MountPath: "/mnt/gone", FileSystem: "ext4"},
	)
	pool := worker.New(4, 100*time.Millisecond)
	d := NewDetector(enum, linuxClassifier(), nil, pool).WithUsage(func(path string) (uint64, uint64, bool) {
		switch path {
		case "/mnt/nas":
			<-block
			return gb, gb, true
		case "/mnt/gone":
			return 0, 0, false
		}
		return 10 * gb, 4 * gb, true
	})

	vols, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if err != nil {
		t.Fatalf("a hung mount should not fail the pass: %v", err)
	}
	if len(vols) != 1 || vols[0].MountPath != "/" {
		t.Fatalf("expected only /, got %d volumes", len(vols))
	}
	if vols[0].TotalCapacity != 10*gb || vols[0].AvailableSpace != 4*gb {
		t.Errorf("capacity %d/%d", vols[0].AvailableSpace, vols[0].TotalCapacity)
	}
}

func TestDetectUnchangedMachineTwice(t *testing.T) {
	pass := 0
	enum := EnumeratorFunc(func(context.Context) ([]RawVolume, error) {
		pass++
		// OS device names shift between passes; nothing else changes.
		dev := "/dev/sda1"
		if pass > 1 {
			dev = "/dev/sdc1"
		}
		return []RawVolume{
			{Device: "/dev/nvme0n1p2", MountPath: "/", FileSystem: "ext4", Total: 100 * gb, Available: gb, HardwareID: "uuid-root"},
			{Device: dev, MountPath: "/mnt/data", FileSystem: "ext4", Total: 200 * gb, Available: gb, HardwareID: "uuid-data"},
		}, nil
	})
	d := newTestDetector(enum, nil)
	ctx := context.Background()
	cfg := volume.DefaultDetectionConfig()

	first, err := d.DetectVolumes(ctx, testDevice, cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.DetectVolumes(ctx, testDevice, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("volume count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].SameObservation(second[i]) {
			t.Errorf("volume %s changed between passes", first[i].MountPath)
		}
		if first[i].ID != second[i].ID {
			t.Errorf("volume id of %s changed", first[i].MountPath)
		}
	}
}

func TestDetectExternalKeepsFingerprintAcrossMountPaths(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "drive")
	if err := os.Mkdir(media, 0o755); err != nil {
		t.Fatal(err)
	}
	// The same drive seen under a different mount path.
	moved := filepath.Join(dir, "moved")
	if err := os.Symlink(media, moved); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	mountAt := func(p string) Enumerator {
		return staticEnum(RawVolume{Device: "/dev/sdx1", MountPath: p, FileSystem: "exfat", Total: 64 * gb, Removable: true})
	}
	ctx := context.Background()
	cfg := volume.DefaultDetectionConfig()

	first, err := newTestDetector(mountAt(media), volume.FileMarkers{}).DetectVolumes(ctx, testDevice, cfg)
	if err != nil || len(first) != 1 {
		t.Fatalf("first pass: %v (%d volumes)", err, len(first))
	}
	second, err := newTestDetector(mountAt(moved), volume.FileMarkers{}).DetectVolumes(ctx, testDevice, cfg)
	if err != nil || len(second) != 1 {
		t.Fatalf("second pass: %v (%d volumes)", err, len(second))
	}

	if first[0].VolumeType != volume.TypeExternal || first[0].MountType != volume.MountExternal {
		t.Errorf("expected external, got %s/%s", first[0].VolumeType, first[0].MountType)
	}
	if first[0].Fingerprint != second[0].Fingerprint {
		t.Error("external fingerprint changed with the mount path")
	}
	if first[0].Fingerprint == volume.FromPrimaryVolume(media, testDevice) {
		t.Error("external fingerprint should come from the marker")
	}
}

func TestDetectExternalMarkerFailureFallsBack(t *testing.T) {
	d := newTestDetector(staticEnum(
		RawVolume{MountPath: "/media/cdrom", FileSystem: "iso9660", Total: gb, Removable: true},
	), failingMarkers{})

	vols, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 1 {
		t.Fatalf("got %d volumes", len(vols))
	}
	if vols[0].Fingerprint != volume.FromPrimaryVolume("/media/cdrom", testDevice) {
		t.Error("marker failure should fall back to the primary rule")
	}
	if vols[0].VolumeType != volume.TypeExternal {
		t.Errorf("classification should not change on marker failure, got %s", vols[0].VolumeType)
	}
}

func TestDetectMergesDuplicateFingerprints(t *testing.T) {
	d := newTestDetector(staticEnum(
		RawVolume{MountPath: "/mnt/data", FileSystem: "ext4", Total: gb, ExtraMounts: []string{"/srv/data"}},
		RawVolume{MountPath: "/mnt/data/", FileSystem: "ext4", Total: gb, ExtraMounts: []string{"/opt/data"}},
	), nil)

	vols, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 1 {
		t.Fatalf("expected one merged volume, got %d", len(vols))
	}
	if got := vols[0].AllMountPaths(); len(got) != 3 {
		t.Errorf("mount paths %v", got)
	}
}

func TestDetectAppliesConfig(t *testing.T) {
	d := newTestDetector(staticEnum(
		RawVolume{MountPath: "/boot", FileSystem: "vfat", Total: gb},
		RawVolume{MountPath: "/mnt/data", FileSystem: "ext4", Total: gb},
		RawVolume{MountPath: "/var/lib/docker", FileSystem: "ext4", Total: gb},
	), nil)

	cfg := volume.DetectionConfig{ExcludeMountPrefixes: []string{"/var/lib"}}
	vols, err := d.DetectVolumes(context.Background(), testDevice, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 1 || vols[0].MountPath != "/mnt/data" {
		t.Fatalf("expected only /mnt/data, got %d", len(vols))
	}
}

func TestDetectEnumerationFailure(t *testing.T) {
	d := newTestDetector(EnumeratorFunc(func(context.Context) ([]RawVolume, error) {
		return nil, errors.New("mount table unreadable")
	}), nil)

	_, err := d.DetectVolumes(context.Background(), testDevice, volume.DefaultDetectionConfig())
	if !errors.Is(err, volume.ErrPlatform) {
		t.Fatalf("expected platform error, got %v", err)
	}
}
