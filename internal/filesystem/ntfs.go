package filesystem

import (
	"context"

	"github.com/rs/zerolog/log"

	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// NTFSHandler identifies storage by volume GUID and reports NTFS feature flags.
type NTFSHandler struct {
	base
}

func NewNTFSHandler(prober Prober, pool *worker.Pool) *NTFSHandler {
	return &NTFSHandler{base{prober: prober, pool: pool}}
}

func (h *NTFSHandler) Name() string { return "ntfs" }

func (h *NTFSHandler) EnhanceVolume(ctx context.Context, v *volume.Volume) error {
	guid, ok := h.volumeID(ctx, v.MountPath)
	if !ok {
		log.Ctx(ctx).Debug().Str("mount", v.MountPath).Msg("ntfs: no volume guid, skipping enhancement")
		return nil
	}
	flags, err := worker.Do(ctx, h.pool, "volume flags", func(context.Context) (VolumeFlags, error) {
		return h.prober.VolumeFlags(v.MountPath)
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("mount", v.MountPath).Msg("ntfs: no volume flags, skipping enhancement")
		return nil
	}

	f := flags.Features()
	if v.Metadata == nil {
		v.Metadata = &volume.FilesystemMetadata{}
	}
	v.Metadata.VolumeGUID = guid
	v.Metadata.Features = &f
	return nil
}

func (h *NTFSHandler) SamePhysicalStorage(ctx context.Context, p1, p2 string) bool {
	g1, ok := h.volumeID(ctx, p1)
	if !ok {
		return false
	}
	g2, ok := h.volumeID(ctx, p2)
	return ok && g1 == g2
}

func (h *NTFSHandler) CopyStrategy() CopyStrategy { return StreamCopy{} }
