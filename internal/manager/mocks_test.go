package manager

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"voltrack/internal/db"
	"voltrack/internal/events"
	"voltrack/internal/filesystem"
	"voltrack/internal/library"
	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

var testDevice = uuid.MustParse("55555555-5555-4555-8555-555555555555")

// fakeVolume describes one entry returned by fakeDetector.
type fakeVolume struct {
	mount string
	fs    volume.FileSystem
	total uint64
	avail uint64
}

func (f fakeVolume) build() *volume.Volume {
	v := volume.New(testDevice, volume.FromPrimaryVolume(f.mount, testDevice), f.mount, f.mount)
	v.FileSystem = f.fs
	v.VolumeType = volume.TypeSecondary
	v.MountType = volume.MountUser
	v.SetCapacity(f.total, f.avail)
	return v
}

// fakeDetector returns freshly built volumes on every pass, like the real
// detector does.
type fakeDetector struct {
	mu    sync.Mutex
	vols  []fakeVolume
	err   error
	calls int
}

func (d *fakeDetector) set(vols ...fakeVolume) {
	d.mu.Lock()
	d.vols = vols
	d.mu.Unlock()
}

func (d *fakeDetector) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDetector) DetectVolumes(_ context.Context, _ uuid.UUID, _ volume.DetectionConfig) ([]*volume.Volume, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := make([]*volume.Volume, 0, len(d.vols))
	for _, f := range d.vols {
		out = append(out, f.build())
	}
	return out, nil
}

// rootProber answers probes by the configured root containing a path.
type rootProber struct {
	roots []string
	clone bool
}

func (p rootProber) root(path string) (string, error) {
	best := ""
	for _, r := range p.roots {
		if volume.HasPathPrefix(path, r) && len(r) > len(best) {
			best = r
		}
	}
	if best == "" {
		return "", errors.New("no root")
	}
	return best, nil
}

func (p rootProber) DeviceID(path string) (uint64, error) {
	r, err := p.root(path)
	if err != nil {
		return 0, err
	}
	return uint64(len(r)), nil
}

func (p rootProber) VolumeID(path string) (string, error) {
	r, err := p.root(path)
	if err != nil {
		return "", err
	}
	return "vol:" + r, nil
}

func (p rootProber) VolumeFlags(string) (filesystem.VolumeFlags, error) {
	return filesystem.FlagSupportsHardLinks | filesystem.FlagBlockRefcounting, nil
}

func (p rootProber) CloneSupport(path string) (bool, error) {
	if _, err := p.root(path); err != nil {
		return false, err
	}
	return p.clone, nil
}

func (p rootProber) ResolvePath(path string) (string, error) { return path, nil }

// failingProber fails every probe.
type failingProber struct{}

var errProbe = errors.New("probe failed")

func (failingProber) DeviceID(string) (uint64, error) { return 0, errProbe }

func (failingProber) VolumeID(string) (string, error) { return "", errProbe }

func (failingProber) VolumeFlags(string) (filesystem.VolumeFlags, error) { return 0, errProbe }

func (failingProber) CloneSupport(string) (bool, error) { return false, errProbe }

func (failingProber) ResolvePath(string) (string, error) { return "", errProbe }

// recorder collects every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testLibrary(t *testing.T, conn *sql.DB) *library.Library {
	t.Helper()
	lib, err := library.NewStore(conn).Ensure(context.Background(), "Main")
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func newTestManager(t *testing.T, d *fakeDetector, prober filesystem.Prober) (*Manager, *recorder) {
	t.Helper()
	pool := worker.New(4, 0)
	bus := events.NewBus()
	m := New(Options{
		DeviceID:  testDevice,
		Detection: volume.DefaultDetectionConfig(),
		Detector:  d,
		Handlers:  filesystem.NewRegistry(prober, pool),
		Bus:       bus,
		Pool:      pool,
	})
	return m, record(bus)
}
