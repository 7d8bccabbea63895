// Package manager owns the authoritative in-memory volume cache: it runs
// detection passes, enhances volumes through their filesystem handlers,
// reconciles them with library records and publishes change events.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"voltrack/internal/events"
	"voltrack/internal/filesystem"
	"voltrack/internal/library"
	"voltrack/internal/metrics"
	"voltrack/internal/platform"
	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

const defaultEnhanceWorkers = 4

// Detector produces one snapshot of the volumes visible on this device.
type Detector interface {
	DetectVolumes(ctx context.Context, deviceID uuid.UUID, cfg volume.DetectionConfig) ([]*volume.Volume, error)
}

// UsageFunc reports total and available bytes for a mount path.
type UsageFunc func(path string) (total, available uint64, ok bool)

// Options configures a Manager.
type Options struct {
	DeviceID       uuid.UUID
	Detection      volume.DetectionConfig
	Detector       Detector
	Handlers       *filesystem.Registry
	Bus            *events.Bus
	Pool           *worker.Pool
	EnhanceWorkers int
	// Usage defaults to platform.DiskUsage.
	Usage UsageFunc
}

// Manager is the volume cache and its lifecycle.
type Manager struct {
	deviceID       uuid.UUID
	cfg            volume.DetectionConfig
	detector       Detector
	handlers       *filesystem.Registry
	bus            *events.Bus
	pool           *worker.Pool
	usage          UsageFunc
	enhanceWorkers int

	// refreshMu serializes detection passes.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	volumes   map[volume.Fingerprint]*volume.Volume
	libraries map[uuid.UUID]*library.Library
}

// New creates a manager with an empty cache.
func New(opts Options) *Manager {
	m := &Manager{
		deviceID:       opts.DeviceID,
		cfg:            opts.Detection,
		detector:       opts.Detector,
		handlers:       opts.Handlers,
		bus:            opts.Bus,
		pool:           opts.Pool,
		usage:          opts.Usage,
		enhanceWorkers: opts.EnhanceWorkers,
		volumes:        make(map[volume.Fingerprint]*volume.Volume),
		libraries:      make(map[uuid.UUID]*library.Library),
	}
	if m.bus == nil {
		m.bus = events.NewBus()
	}
	if m.pool == nil {
		m.pool = worker.New(0, 0)
	}
	if m.handlers == nil {
		m.handlers = filesystem.NewRegistry(filesystem.NativeProber(), m.pool)
	}
	if m.usage == nil {
		m.usage = platform.DiskUsage
	}
	if m.enhanceWorkers <= 0 {
		m.enhanceWorkers = defaultEnhanceWorkers
	}
	return m
}

// DeviceID is the device owning every detected volume.
func (m *Manager) DeviceID() uuid.UUID { return m.deviceID }

// Bus returns the bus the manager publishes on.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Handlers returns the filesystem handler registry.
func (m *Manager) Handlers() *filesystem.Registry { return m.handlers }

// AttachLibrary registers lib so refresh passes reconcile volumes with its
// tracked records.
func (m *Manager) AttachLibrary(lib *library.Library) {
	m.mu.Lock()
	m.libraries[lib.ID] = lib
	m.mu.Unlock()
}

func (m *Manager) attachedLibraries() []*library.Library {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*library.Library, 0, len(m.libraries))
	for _, lib := range m.libraries {
		out = append(out, lib)
	}
	return out
}

// Initialize runs the first detection pass.
func (m *Manager) Initialize(ctx context.Context) error {
	changes, err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Int("volumes", len(changes.Added)).
		Str("device", m.deviceID.String()).
		Msg("volume manager initialized")
	return nil
}

// Run refreshes the cache every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Warn().Err(err).Msg("volume refresh failed")
			}
		}
	}
}

// GetAllVolumes returns a deep copy of every cached volume.
func (m *Manager) GetAllVolumes() []*volume.Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*volume.Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		out = append(out, v.Clone())
	}
	sortVolumes(out)
	return out
}

// GetVolume returns a copy of the volume with the given id.
func (m *Manager) GetVolume(id uuid.UUID) (*volume.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v := m.byID(id); v != nil {
		return v.Clone(), nil
	}
	return nil, volume.NotFound("get volume", "volume %s", id)
}

// GetVolumeByFingerprint returns a copy of the volume with fingerprint fp.
func (m *Manager) GetVolumeByFingerprint(fp volume.Fingerprint) (*volume.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.volumes[fp]; ok {
		return v.Clone(), nil
	}
	return nil, volume.NotFound("get volume", "fingerprint %s", fp.ShortID())
}

// byID must be called with mu held.
func (m *Manager) byID(id uuid.UUID) *volume.Volume {
	for _, v := range m.volumes {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// VolumeForPath returns the volume whose mount path is the longest one
// containing path.
func (m *Manager) VolumeForPath(path string) (*volume.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v := m.volumeForPath(path); v != nil {
		return v.Clone(), nil
	}
	return nil, volume.NotFound("volume for path", "no volume contains %s", path)
}

func (m *Manager) volumeForPath(path string) *volume.Volume {
	p := volume.StripExtendedPrefix(path)
	var (
		best    *volume.Volume
		bestLen = -1
	)
	for _, v := range m.volumes {
		for _, mp := range v.AllMountPaths() {
			if mp == "" || !volume.HasPathPrefix(p, mp) {
				continue
			}
			if n := len(volume.NormalizeMountPath(mp)); n > bestLen {
				best, bestLen = v, n
			}
		}
	}
	return best
}

// handlerForPath picks the handler of the volume holding path, falling back
// to the platform default for paths outside every known volume.
func (m *Manager) handlerForPath(path string) (filesystem.Handler, *volume.Volume) {
	m.mu.RLock()
	v := m.volumeForPath(path)
	m.mu.RUnlock()
	if v == nil {
		return m.handlers.Default(), nil
	}
	return m.handlers.For(v.FileSystem), v
}

// SamePhysicalStorage reports whether p1 and p2 share storage, as judged by
// the handler of the volume holding p1.
func (m *Manager) SamePhysicalStorage(ctx context.Context, p1, p2 string) bool {
	h, _ := m.handlerForPath(p1)
	return h.SamePhysicalStorage(ctx, p1, p2)
}

// CopyPlan is the copy strategy chosen for a source/destination pair.
type CopyPlan struct {
	Strategy     string                `json:"strategy" yaml:"strategy"`
	Method       filesystem.CopyMethod `json:"method" yaml:"method"`
	SourceVolume *uuid.UUID            `json:"source_volume,omitempty" yaml:"source_volume,omitempty"`
	DestVolume   *uuid.UUID            `json:"dest_volume,omitempty" yaml:"dest_volume,omitempty"`
}

// CopyStrategyFor selects the copy strategy for copying src to dst.
func (m *Manager) CopyStrategyFor(ctx context.Context, src, dst string) CopyPlan {
	h, sv := m.handlerForPath(src)
	_, dv := m.handlerForPath(dst)
	strategy := h.CopyStrategy()
	plan := CopyPlan{Strategy: strategy.Name(), Method: strategy.Plan(ctx, src, dst)}
	if sv != nil {
		id := sv.ID
		plan.SourceVolume = &id
	}
	if dv != nil {
		id := dv.ID
		plan.DestVolume = &id
	}
	return plan
}

// CloneVolumes returns the cached volumes whose filesystem supports block
// cloning, as reported by their clone handler.
func (m *Manager) CloneVolumes(ctx context.Context) []*volume.Volume {
	all := m.GetAllVolumes()
	seen := make(map[*filesystem.CloneHandler]bool)
	var out []*volume.Volume
	for _, v := range all {
		h, ok := m.handlers.For(v.FileSystem).(*filesystem.CloneHandler)
		if !ok || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h.CloneVolumes(ctx, all)...)
	}
	sortVolumes(out)
	return out
}

// ResolvePath canonicalizes path with the handler of its volume and returns
// the volume that holds the result.
func (m *Manager) ResolvePath(ctx context.Context, path string) (string, *volume.Volume, error) {
	h, _ := m.handlerForPath(path)
	resolved := volume.StripExtendedPrefix(path)
	if r, ok := h.(filesystem.PathResolver); ok {
		resolved = r.ResolvePath(ctx, path)
	}
	v, err := m.VolumeForPath(resolved)
	if err != nil {
		return resolved, nil, err
	}
	return resolved, v, nil
}

// RefreshCapacity re-reads the capacity of one volume.
func (m *Manager) RefreshCapacity(ctx context.Context, id uuid.UUID) (*volume.Volume, error) {
	m.mu.RLock()
	v := m.byID(id)
	var mount string
	if v != nil {
		mount = v.MountPath
	}
	m.mu.RUnlock()
	if v == nil {
		return nil, volume.NotFound("refresh capacity", "volume %s", id)
	}

	type usage struct{ total, available uint64 }
	u, err := worker.Do(ctx, m.pool, "disk usage", func(context.Context) (usage, error) {
		total, avail, ok := m.usage(mount)
		if !ok {
			return usage{}, volume.Platform("disk usage", errors.New("capacity unavailable for "+mount))
		}
		return usage{total, avail}, nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	cur := m.byID(id)
	if cur == nil {
		m.mu.Unlock()
		return nil, volume.NotFound("refresh capacity", "volume %s", id)
	}
	changed := cur.TotalCapacity != u.total || cur.AvailableSpace != u.available
	cur.SetCapacity(u.total, u.available)
	cur.LastSeen = time.Now().UTC()
	snapshot := cur.Clone()
	m.mu.Unlock()

	if changed {
		m.persistTracked(ctx, snapshot)
		m.publish(events.Event{
			Type:     events.VolumeChanged,
			Severity: events.SeverityInfo,
			Message:  "volume capacity changed",
			Payload:  snapshot,
		}, snapshot)
	}
	return snapshot, nil
}

// TrackVolume persists the volume with the given id in lib and marks it
// tracked.
func (m *Manager) TrackVolume(ctx context.Context, lib *library.Library, id uuid.UUID) (*volume.Volume, error) {
	m.mu.RLock()
	v := m.byID(id)
	var snapshot *volume.Volume
	if v != nil {
		snapshot = v.Clone()
	}
	m.mu.RUnlock()
	if snapshot == nil {
		metrics.TrackOperations.WithLabelValues("track", "not_found").Inc()
		return nil, volume.NotFound("track volume", "volume %s", id)
	}

	if err := lib.Volumes.Upsert(ctx, snapshot); err != nil {
		metrics.TrackOperations.WithLabelValues("track", "error").Inc()
		return nil, volume.Internal("track volume", err)
	}
	m.AttachLibrary(lib)

	libID := lib.ID
	m.mu.Lock()
	if cur, ok := m.volumes[snapshot.Fingerprint]; ok {
		cur.IsTracked = true
		cur.LibraryID = &libID
		snapshot = cur.Clone()
	} else {
		snapshot.IsTracked = true
		snapshot.LibraryID = &libID
	}
	m.mu.Unlock()
	m.updateTrackedGauge()
	metrics.TrackOperations.WithLabelValues("track", "ok").Inc()

	log.Ctx(ctx).Info().
		Str("fingerprint", snapshot.Fingerprint.ShortID()).
		Str("mount", snapshot.MountPath).
		Str("library", lib.Name).
		Msg("volume tracked")

	m.publish(events.Event{
		Type:     events.ResourceAdded,
		Severity: events.SeverityInfo,
		Resource: events.ResourceVolume,
		Message:  "volume tracked",
		Payload:  snapshot,
	}, snapshot)
	m.publish(events.Event{
		Type:     events.VolumeChanged,
		Severity: events.SeverityInfo,
		Message:  "volume tracked",
		Payload:  snapshot,
	}, snapshot)
	return snapshot, nil
}

// UntrackVolumeByID removes lib's record for the volume and clears its
// tracking state. The volume itself stays in the cache. On error the cache is
// left untouched.
func (m *Manager) UntrackVolumeByID(ctx context.Context, lib *library.Library, id uuid.UUID) error {
	if err := lib.Volumes.DeleteByID(ctx, id); err != nil {
		metrics.TrackOperations.WithLabelValues("untrack", metrics.Result(err)).Inc()
		if errors.Is(err, volume.ErrNotFound) {
			return err
		}
		return volume.Internal("untrack volume", err)
	}

	m.mu.Lock()
	var snapshot *volume.Volume
	if cur := m.byID(id); cur != nil {
		if cur.LibraryID == nil || *cur.LibraryID == lib.ID {
			cur.IsTracked = false
			cur.LibraryID = nil
		}
		snapshot = cur.Clone()
	}
	m.mu.Unlock()
	m.updateTrackedGauge()
	metrics.TrackOperations.WithLabelValues("untrack", "ok").Inc()

	log.Ctx(ctx).Info().
		Str("volume", id.String()).
		Str("library", lib.Name).
		Msg("volume untracked")

	volID := id
	removed := events.Event{
		Type:     events.VolumeRemoved,
		Severity: events.SeverityInfo,
		DeviceID: m.deviceID,
		VolumeID: &volID,
		Message:  "volume untracked",
		Metadata: map[string]string{"library_id": lib.ID.String(), "reason": "untracked"},
	}
	changed := events.Event{
		Type:     events.ResourceChanged,
		Severity: events.SeverityInfo,
		DeviceID: m.deviceID,
		VolumeID: &volID,
		Resource: events.ResourceVolume,
		Message:  "volume untracked",
	}
	if snapshot != nil {
		removed.Fingerprint = snapshot.Fingerprint.String()
		changed.Fingerprint = snapshot.Fingerprint.String()
		changed.Payload = snapshot
	}
	m.bus.Publish(removed)
	m.bus.Publish(changed)
	return nil
}

// persistTracked refreshes the library record of a tracked volume. Failures
// are logged; the cache stays authoritative.
func (m *Manager) persistTracked(ctx context.Context, v *volume.Volume) {
	if !v.IsTracked || v.LibraryID == nil {
		return
	}
	m.mu.RLock()
	lib := m.libraries[*v.LibraryID]
	m.mu.RUnlock()
	if lib == nil {
		return
	}
	if err := lib.Volumes.Upsert(ctx, v); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("fingerprint", v.Fingerprint.ShortID()).
			Msg("failed to refresh tracked volume record")
	}
}

func (m *Manager) updateTrackedGauge() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tracked := 0
	for _, v := range m.volumes {
		if v.IsTracked {
			tracked++
		}
	}
	metrics.VolumesKnown.Set(float64(len(m.volumes)))
	metrics.VolumesTracked.Set(float64(tracked))
}

// publish fills the volume identity fields of e from v and sends it.
func (m *Manager) publish(e events.Event, v *volume.Volume) {
	e.DeviceID = m.deviceID
	if v != nil {
		id := v.ID
		e.VolumeID = &id
		e.Fingerprint = v.Fingerprint.String()
	}
	m.bus.Publish(e)
}

// enhance runs the filesystem handler of every volume in vols, bounded by
// the manager's worker count. Handler errors are logged and dropped.
func (m *Manager) enhance(ctx context.Context, vols []*volume.Volume) {
	if len(vols) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.enhanceWorkers)
	for _, v := range vols {
		g.Go(func() error {
			h := m.handlers.For(v.FileSystem)
			if err := h.EnhanceVolume(gctx, v); err != nil {
				log.Ctx(ctx).Debug().Err(err).
					Str("fingerprint", v.Fingerprint.ShortID()).
					Str("handler", h.Name()).
					Msg("volume enhancement failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
