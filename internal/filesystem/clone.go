package filesystem

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// CloneCache memoizes clone-capability answers per path.
type CloneCache struct {
	mu      sync.Mutex
	entries map[string]bool
}

func NewCloneCache() *CloneCache {
	return &CloneCache{entries: make(map[string]bool)}
}

func (c *CloneCache) Get(path string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[path]
	return v, ok
}

func (c *CloneCache) Put(path string, supported bool) {
	c.mu.Lock()
	c.entries[path] = supported
	c.mu.Unlock()
}

func (c *CloneCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CloneHandler serves copy-on-write filesystems (ReFS, APFS, Btrfs). Two paths
// share storage only when they are on the same volume and that volume can
// clone blocks.
type CloneHandler struct {
	base
	fs    volume.FileSystem
	cache *CloneCache
}

func NewCloneHandler(fs volume.FileSystem, prober Prober, pool *worker.Pool, cache *CloneCache) *CloneHandler {
	if cache == nil {
		cache = NewCloneCache()
	}
	return &CloneHandler{base: base{prober: prober, pool: pool}, fs: fs, cache: cache}
}

func (h *CloneHandler) Name() string { return string(h.fs) }

// supportsClone answers from the cache, probing once per path. Failed probes
// are not cached.
func (h *CloneHandler) supportsClone(ctx context.Context, path string) bool {
	key := volume.NormalizeMountPath(path)
	if ok, hit := h.cache.Get(key); hit {
		return ok
	}
	ok, err := worker.Do(ctx, h.pool, "clone support", func(context.Context) (bool, error) {
		return h.prober.CloneSupport(path)
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("clone support probe failed")
		return false
	}
	h.cache.Put(key, ok)
	return ok
}

func (h *CloneHandler) EnhanceVolume(ctx context.Context, v *volume.Volume) error {
	guid, ok := h.volumeID(ctx, v.MountPath)
	if !ok {
		log.Ctx(ctx).Debug().Str("mount", v.MountPath).Str("filesystem", string(h.fs)).Msg("no volume id, skipping enhancement")
		return nil
	}
	clone := h.supportsClone(ctx, v.MountPath)

	if v.Metadata == nil {
		v.Metadata = &volume.FilesystemMetadata{}
	}
	v.Metadata.VolumeGUID = guid
	v.Metadata.BlockClone = clone
	if h.fs == volume.FSAPFS {
		v.Metadata.ContainerUUID = guid
	}
	f := volume.FilesystemFeatures{Hardlinks: true, Symlinks: true, BlockCloning: clone}
	if flags, err := worker.Do(ctx, h.pool, "volume flags", func(context.Context) (VolumeFlags, error) {
		return h.prober.VolumeFlags(v.MountPath)
	}); err == nil {
		f = flags.Features()
		f.BlockCloning = clone
	}
	v.Metadata.Features = &f
	return nil
}

func (h *CloneHandler) SamePhysicalStorage(ctx context.Context, p1, p2 string) bool {
	g1, ok := h.volumeID(ctx, p1)
	if !ok {
		return false
	}
	g2, ok := h.volumeID(ctx, p2)
	if !ok || g1 != g2 {
		return false
	}
	return h.supportsClone(ctx, p1) && h.supportsClone(ctx, p2)
}

func (h *CloneHandler) CopyStrategy() CopyStrategy { return CloneCopy{h: h} }

// CloneVolumes returns the volumes of vols that belong to this handler's
// filesystem and support block cloning.
func (h *CloneHandler) CloneVolumes(ctx context.Context, vols []*volume.Volume) []*volume.Volume {
	var out []*volume.Volume
	for _, v := range vols {
		if v.FileSystem != h.fs {
			continue
		}
		if h.supportsClone(ctx, v.MountPath) {
			out = append(out, v)
		}
	}
	return out
}
