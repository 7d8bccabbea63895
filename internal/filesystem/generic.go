package filesystem

import (
	"context"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// knownFeatures lists the static capabilities of common filesystems that have
// no dedicated handler.
var knownFeatures = map[volume.FileSystem]volume.FilesystemFeatures{
	volume.FSExt4:    {Hardlinks: true, Symlinks: true},
	volume.FSXFS:     {Hardlinks: true, Symlinks: true},
	volume.FSZFS:     {Hardlinks: true, Symlinks: true, Compression: true},
	volume.FSHFSPlus: {Hardlinks: true, Symlinks: true},
	volume.FSFAT32:   {},
	volume.FSExFAT:   {},
}

// GenericHandler serves filesystems without special capabilities. Storage
// identity is the OS device number.
type GenericHandler struct {
	base
}

func NewGenericHandler(prober Prober, pool *worker.Pool) *GenericHandler {
	return &GenericHandler{base{prober: prober, pool: pool}}
}

func (h *GenericHandler) Name() string { return "generic" }

func (h *GenericHandler) EnhanceVolume(_ context.Context, v *volume.Volume) error {
	f, ok := knownFeatures[v.FileSystem]
	if !ok {
		return nil
	}
	if v.Metadata == nil {
		v.Metadata = &volume.FilesystemMetadata{}
	}
	v.Metadata.Features = &f
	return nil
}

func (h *GenericHandler) SamePhysicalStorage(ctx context.Context, p1, p2 string) bool {
	d1, ok := h.deviceID(ctx, p1)
	if !ok {
		return false
	}
	d2, ok := h.deviceID(ctx, p2)
	return ok && d1 == d2
}

func (h *GenericHandler) CopyStrategy() CopyStrategy { return StreamCopy{} }
