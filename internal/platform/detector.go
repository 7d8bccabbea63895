package platform

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// Detector turns enumerated mounts into volume records.
type Detector struct {
	enum       Enumerator
	classifier volume.Classifier
	markers    volume.MarkerStore
	pool       *worker.Pool
	usage      UsageFunc
}

var errNoCapacity = errors.New("capacity unavailable")

// NewDetector wires a detector. A nil marker store disables external markers
// and externals fall back to path identity.
func NewDetector(enum Enumerator, classifier volume.Classifier, markers volume.MarkerStore, pool *worker.Pool) *Detector {
	return &Detector{enum: enum, classifier: classifier, markers: markers, pool: pool, usage: DiskUsage}
}

// WithUsage replaces the capacity probe.
func (d *Detector) WithUsage(fn UsageFunc) *Detector {
	d.usage = fn
	return d
}

// DetectVolumes enumerates, classifies and fingerprints every mounted volume
// and applies cfg. The result holds at most one volume per fingerprint.
func (d *Detector) DetectVolumes(ctx context.Context, deviceID uuid.UUID, cfg volume.DetectionConfig) ([]*volume.Volume, error) {
	raws, err := worker.Do(ctx, d.pool, "enumerate volumes", d.enum.Enumerate)
	if err != nil {
		if errors.Is(err, volume.ErrPlatform) {
			return nil, err
		}
		return nil, volume.Platform("enumerate volumes", err)
	}
	d.probeCapacity(ctx, raws)

	now := time.Now().UTC()
	byFP := make(map[volume.Fingerprint]*volume.Volume, len(raws))
	var out []*volume.Volume

	for _, raw := range raws {
		if ctx.Err() != nil {
			return nil, volume.TaskJoin("detect volumes", ctx.Err())
		}
		if strings.TrimSpace(raw.MountPath) == "" || raw.Total == 0 {
			log.Ctx(ctx).Debug().Str("device", raw.Device).Str("mount", raw.MountPath).Msg("skipping volume without mount path or size")
			continue
		}

		v := d.build(ctx, deviceID, raw, now)
		if !cfg.Includes(v) {
			continue
		}
		if prev, ok := byFP[v.Fingerprint]; ok {
			prev.MountPaths = appendUnique(prev.AllMountPaths(), v.AllMountPaths()...)[1:]
			continue
		}
		byFP[v.Fingerprint] = v
		out = append(out, v)
	}
	return out, nil
}

// probeCapacity fills in capacity for entries the enumerator left at zero.
// Each mount gets its own pool task, so a hung network share only loses its
// own entry.
func (d *Detector) probeCapacity(ctx context.Context, raws []RawVolume) {
	type capacity struct{ total, available uint64 }

	var g errgroup.Group
	for i := range raws {
		raw := &raws[i]
		if raw.Total != 0 || strings.TrimSpace(raw.MountPath) == "" {
			continue
		}
		g.Go(func() error {
			c := worker.DoDefault(ctx, d.pool, "capacity "+raw.MountPath, capacity{},
				func(context.Context) (capacity, error) {
					total, available, ok := d.usage(raw.MountPath)
					if !ok {
						return capacity{}, errNoCapacity
					}
					return capacity{total, available}, nil
				})
			raw.Total, raw.Available = c.total, c.available
			return nil
		})
	}
	g.Wait()
}

func (d *Detector) build(ctx context.Context, deviceID uuid.UUID, raw RawVolume, now time.Time) *volume.Volume {
	fs := volume.ParseFileSystem(raw.FileSystem)

	vt := volume.TypeVirtual
	if !raw.Virtual {
		vt = d.classifier.Classify(volume.DetectionInfo{
			MountPath:     raw.MountPath,
			FileSystem:    fs,
			TotalCapacity: raw.Total,
			Removable:     raw.Removable,
			Network:       raw.Network,
			DeviceModel:   raw.Model,
		})
	}

	v := volume.New(deviceID, d.fingerprint(ctx, deviceID, raw, vt), displayName(raw), raw.MountPath)
	v.MountPaths = appendUnique(nil, raw.ExtraMounts...)
	v.VolumeType = vt
	v.MountType = volume.MountTypeFor(vt)
	v.FileSystem = fs
	v.DiskType = diskType(raw.Rotational)
	v.SetCapacity(raw.Total, raw.Available)
	v.ReadOnly = raw.ReadOnly
	v.HardwareID = raw.HardwareID
	v.LastSeen = now
	return v
}

func (d *Detector) fingerprint(ctx context.Context, deviceID uuid.UUID, raw RawVolume, vt volume.VolumeType) volume.Fingerprint {
	switch vt {
	case volume.TypeNetwork:
		return volume.FromNetworkVolume(raw.BackendID, raw.MountPath)
	case volume.TypeExternal:
		if d.markers == nil {
			break
		}
		id, err := worker.Do(ctx, d.pool, "volume marker", func(context.Context) (uuid.UUID, error) {
			return d.markers.ReadOrCreate(raw.MountPath, deviceID)
		})
		if err == nil {
			return volume.FromExternalVolume(id, deviceID)
		}
		log.Ctx(ctx).Warn().Err(err).Str("mount", raw.MountPath).Msg("volume marker unavailable, using path identity")
	}
	return volume.FromPrimaryVolume(raw.MountPath, deviceID)
}

func displayName(raw RawVolume) string {
	if raw.Label != "" {
		return raw.Label
	}
	mp := volume.TrimTrailingSeparators(raw.MountPath)
	if base := filepath.Base(mp); base != "" && base != "." && base != string(filepath.Separator) {
		return base
	}
	return raw.MountPath
}

func diskType(rotational *bool) volume.DiskType {
	switch {
	case rotational == nil:
		return volume.DiskUnknown
	case *rotational:
		return volume.DiskHDD
	default:
		return volume.DiskSSD
	}
}

func appendUnique(dst []string, paths ...string) []string {
	for _, p := range paths {
		found := false
		for _, q := range dst {
			if volume.NormalizeMountPath(q) == volume.NormalizeMountPath(p) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, p)
		}
	}
	return dst
}
