package manager

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voltrack/internal/events"
	"voltrack/internal/library"
	"voltrack/internal/metrics"
	"voltrack/internal/volume"
)

// Changes summarizes one refresh pass.
type Changes struct {
	Added   []*volume.Volume
	Changed []*volume.Volume
	Removed []*volume.Volume
}

// Empty reports whether the pass changed nothing.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Refresh detects volumes, enhances the new or changed ones, swaps the cache
// and publishes one event per transition. A detection error leaves the cache
// as it was.
func (m *Manager) Refresh(ctx context.Context) (Changes, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	defer func() { metrics.DetectionDuration.Observe(time.Since(start).Seconds()) }()

	detected, err := m.detector.DetectVolumes(ctx, m.deviceID, m.cfg)
	if err != nil {
		metrics.DetectionRuns.WithLabelValues("error").Inc()
		log.Ctx(ctx).Error().Err(err).Msg("volume detection failed")
		m.bus.Publish(events.Event{
			Type:     events.VolumeDetectionFailed,
			Severity: events.SeverityWarning,
			DeviceID: m.deviceID,
			Message:  err.Error(),
		})
		return Changes{}, err
	}
	metrics.DetectionRuns.WithLabelValues("ok").Inc()

	m.mu.RLock()
	prev := make(map[volume.Fingerprint]*volume.Volume, len(m.volumes))
	for fp, v := range m.volumes {
		prev[fp] = v.Clone()
	}
	m.mu.RUnlock()

	next := make(map[volume.Fingerprint]*volume.Volume, len(detected))
	var fresh, toEnhance []*volume.Volume
	for _, v := range detected {
		if _, dup := next[v.Fingerprint]; dup {
			log.Ctx(ctx).Warn().
				Str("fingerprint", v.Fingerprint.ShortID()).
				Str("mount", v.MountPath).
				Msg("duplicate fingerprint in detection pass, keeping first")
			continue
		}
		next[v.Fingerprint] = v
		old, ok := prev[v.Fingerprint]
		switch {
		case !ok:
			fresh = append(fresh, v)
			toEnhance = append(toEnhance, v)
		case !old.SameObservation(v):
			toEnhance = append(toEnhance, v)
		default:
			v.Metadata = old.Metadata
		}
	}

	m.enhance(ctx, toEnhance)
	m.reconcile(ctx, fresh)

	var changes Changes
	m.mu.Lock()
	for fp, v := range next {
		cur, ok := m.volumes[fp]
		if !ok {
			changes.Added = append(changes.Added, v)
			continue
		}
		// Tracking is owned by the cache; a track or untrack that raced this
		// pass has already landed there.
		v.IsTracked = cur.IsTracked
		v.LibraryID = cur.LibraryID
		if !cur.SameObservation(v) {
			changes.Changed = append(changes.Changed, v)
		}
	}
	for fp, cur := range m.volumes {
		if _, ok := next[fp]; !ok {
			changes.Removed = append(changes.Removed, cur)
		}
	}
	m.volumes = next
	changes.Added = cloneAll(changes.Added)
	changes.Changed = cloneAll(changes.Changed)
	changes.Removed = cloneAll(changes.Removed)
	m.mu.Unlock()

	m.updateTrackedGauge()
	m.emit(ctx, changes)
	return changes, nil
}

// reconcile marks newly seen volumes tracked when an attached library holds a
// record for their fingerprint.
func (m *Manager) reconcile(ctx context.Context, vols []*volume.Volume) {
	libs := m.attachedLibraries()
	if len(libs) == 0 {
		return
	}
	slices.SortFunc(libs, func(a, b *library.Library) int { return strings.Compare(a.Name, b.Name) })
	for _, v := range vols {
		for _, lib := range libs {
			rec, err := lib.Volumes.GetByFingerprint(ctx, v.Fingerprint)
			if err != nil {
				if !errors.Is(err, volume.ErrNotFound) {
					log.Ctx(ctx).Warn().Err(err).
						Str("fingerprint", v.Fingerprint.ShortID()).
						Str("library", lib.Name).
						Msg("library lookup failed")
				}
				continue
			}
			libID := rec.LibraryID
			v.IsTracked = true
			v.LibraryID = &libID
			break
		}
	}
}

func (m *Manager) emit(ctx context.Context, c Changes) {
	for _, v := range c.Added {
		metrics.VolumeChanges.WithLabelValues("added").Inc()
		m.persistTracked(ctx, v)
		m.publish(events.Event{
			Type:     events.VolumeAdded,
			Severity: events.SeverityInfo,
			Message:  "volume detected: " + v.MountPath,
			Payload:  v,
		}, v)
		m.publish(events.Event{
			Type:     events.ResourceAdded,
			Severity: events.SeverityInfo,
			Resource: events.ResourceVolume,
			Message:  "volume detected",
			Payload:  v,
		}, v)
	}
	for _, v := range c.Changed {
		metrics.VolumeChanges.WithLabelValues("changed").Inc()
		m.persistTracked(ctx, v)
		m.publish(events.Event{
			Type:     events.VolumeChanged,
			Severity: events.SeverityInfo,
			Message:  "volume changed: " + v.MountPath,
			Payload:  v,
		}, v)
		m.publish(events.Event{
			Type:     events.ResourceChanged,
			Severity: events.SeverityInfo,
			Resource: events.ResourceVolume,
			Message:  "volume changed",
			Payload:  v,
		}, v)
	}
	for _, v := range c.Removed {
		metrics.VolumeChanges.WithLabelValues("removed").Inc()
		sev := events.SeverityInfo
		if v.IsTracked {
			sev = events.SeverityWarning
		}
		m.publish(events.Event{
			Type:     events.VolumeRemoved,
			Severity: sev,
			Message:  "volume no longer present: " + v.MountPath,
			Metadata: map[string]string{"reason": "disconnected"},
			Payload:  v,
		}, v)
		// Only a volume that left the machine is deleted from the UI's view;
		// untracking keeps it listed.
		m.publish(events.Event{
			Type:     events.ResourceDeleted,
			Severity: events.SeverityInfo,
			Resource: events.ResourceVolume,
			Message:  "volume disconnected",
		}, v)
	}
	if !c.Empty() {
		log.Ctx(ctx).Info().
			Int("added", len(c.Added)).
			Int("changed", len(c.Changed)).
			Int("removed", len(c.Removed)).
			Msg("volume cache updated")
	}
}

func cloneAll(vols []*volume.Volume) []*volume.Volume {
	if len(vols) == 0 {
		return nil
	}
	out := make([]*volume.Volume, len(vols))
	for i, v := range vols {
		out[i] = v.Clone()
	}
	sortVolumes(out)
	return out
}

func sortVolumes(vols []*volume.Volume) {
	slices.SortFunc(vols, func(a, b *volume.Volume) int {
		if c := strings.Compare(a.MountPath, b.MountPath); c != 0 {
			return c
		}
		return strings.Compare(a.Fingerprint.String(), b.Fingerprint.String())
	})
}
