//go:build !linux

package platform

import (
	"context"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v4/disk"
)

// PartitionEnumerator lists partitions through gopsutil and asks the OS for
// the drive kind of each mount.
type PartitionEnumerator struct {
	// Partitions returns the partition list; nil queries the OS.
	Partitions func(ctx context.Context) ([]disk.PartitionStat, error)
}

// NativeEnumerator returns the enumerator for the running platform.
func NativeEnumerator() Enumerator { return &PartitionEnumerator{} }

func (e *PartitionEnumerator) Enumerate(ctx context.Context) ([]RawVolume, error) {
	partitions := e.Partitions
	if partitions == nil {
		partitions = func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, false)
		}
	}
	parts, err := partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	out := make([]RawVolume, 0, len(parts))
	for _, p := range parts {
		kind := driveKind(p.Mountpoint, p.Device, p.Fstype)
		raw := RawVolume{
			Device:     p.Device,
			MountPath:  p.Mountpoint,
			FileSystem: p.Fstype,
			Label:      kind.label,
			Removable:  kind.removable,
			Network:    kind.network,
			Virtual:    kind.virtual,
			ReadOnly:   slices.Contains(p.Opts, "ro") || slices.Contains(p.Opts, "rdonly"),
			HardwareID: kind.hardwareID,
		}
		if raw.Network != nil && *raw.Network {
			raw.BackendID = kind.backend
		}
		out = append(out, raw)
	}
	return out, nil
}

// driveDetails is what the OS reports about a mount beyond the partition table.
type driveDetails struct {
	removable  bool
	network    *bool
	virtual    bool
	label      string
	backend    string
	hardwareID string
}
