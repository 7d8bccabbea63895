// Package filesystem implements per-filesystem capability handlers: volume
// enrichment, same-storage checks, copy strategy selection and path
// containment.
package filesystem

import (
	"context"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// Handler encapsulates the behavior that differs between filesystem families.
type Handler interface {
	Name() string
	// EnhanceVolume adds filesystem metadata to v. Probe failures leave v
	// untouched; they are never reported as errors.
	EnhanceVolume(ctx context.Context, v *volume.Volume) error
	// SamePhysicalStorage reports whether both paths live on the same
	// storage. Any probe failure answers false.
	SamePhysicalStorage(ctx context.Context, p1, p2 string) bool
	CopyStrategy() CopyStrategy
	ContainsPath(v *volume.Volume, path string) bool
}

// Prober exposes the OS primitives the handlers are built on.
type Prober interface {
	// DeviceID returns the OS device number holding path.
	DeviceID(path string) (uint64, error)
	// VolumeID returns a stable identifier for the volume holding path
	// (a volume GUID path on windows).
	VolumeID(path string) (string, error)
	// VolumeFlags returns the filesystem capability flags of the volume
	// holding path.
	VolumeFlags(path string) (VolumeFlags, error)
	// CloneSupport reports whether the volume holding path can clone blocks.
	CloneSupport(path string) (bool, error)
	// ResolvePath canonicalizes path, following junctions and symlinks.
	ResolvePath(path string) (string, error)
}

// VolumeFlags mirrors the windows FILE_* volume capability bits.
type VolumeFlags uint32

const (
	FlagFileCompression   VolumeFlags = 0x00000010
	FlagReparsePoints     VolumeFlags = 0x00000080
	FlagFileEncryption    VolumeFlags = 0x00020000
	FlagNamedStreams      VolumeFlags = 0x00040000
	FlagSupportsHardLinks VolumeFlags = 0x00400000
	FlagBlockRefcounting  VolumeFlags = 0x08000000
)

func (f VolumeFlags) Has(bit VolumeFlags) bool { return f&bit != 0 }

// Features translates capability flags into feature switches.
func (f VolumeFlags) Features() volume.FilesystemFeatures {
	return volume.FilesystemFeatures{
		Hardlinks:    f.Has(FlagSupportsHardLinks),
		Junctions:    f.Has(FlagReparsePoints),
		Symlinks:     f.Has(FlagReparsePoints),
		Streams:      f.Has(FlagNamedStreams),
		Compression:  f.Has(FlagFileCompression),
		Encryption:   f.Has(FlagFileEncryption),
		BlockCloning: f.Has(FlagBlockRefcounting),
	}
}

// base carries what every handler shares.
type base struct {
	prober Prober
	pool   *worker.Pool
}

func (b base) ContainsPath(v *volume.Volume, path string) bool {
	return ContainsPath(v, path)
}

func (b base) deviceID(ctx context.Context, path string) (uint64, bool) {
	id, err := worker.Do(ctx, b.pool, "device id", func(context.Context) (uint64, error) {
		return b.prober.DeviceID(path)
	})
	if err != nil {
		return 0, false
	}
	return id, true
}

func (b base) volumeID(ctx context.Context, path string) (string, bool) {
	id := worker.DoDefault(ctx, b.pool, "volume id", "", func(context.Context) (string, error) {
		return b.prober.VolumeID(path)
	})
	return id, id != ""
}

// ResolvePath returns the canonical form of path with junctions and symlinks
// resolved and any extended-length prefix stripped. On failure the input is
// returned unchanged.
func (b base) ResolvePath(ctx context.Context, path string) string {
	resolved := worker.DoDefault(ctx, b.pool, "resolve path", path, func(context.Context) (string, error) {
		return b.prober.ResolvePath(path)
	})
	return volume.StripExtendedPrefix(resolved)
}

// PathResolver is implemented by handlers that can canonicalize paths.
type PathResolver interface {
	ResolvePath(ctx context.Context, path string) string
}

// ContainsPath reports whether path lies on any of v's mount paths. Windows
// extended-length prefixes are stripped first.
func ContainsPath(v *volume.Volume, path string) bool {
	if v == nil {
		return false
	}
	p := volume.StripExtendedPrefix(path)
	for _, mp := range v.AllMountPaths() {
		if mp != "" && volume.HasPathPrefix(p, mp) {
			return true
		}
	}
	return false
}
