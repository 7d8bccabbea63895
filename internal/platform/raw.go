// Package platform discovers mounted volumes and turns them into classified,
// fingerprinted volume records.
package platform

import (
	"context"

	"github.com/ricochet2200/go-disk-usage/du"
)

// RawVolume is one mounted filesystem as reported by the operating system.
// Enumerators leave Total at zero when they do not know the capacity; the
// detector probes it per entry.
type RawVolume struct {
	Device      string
	MountPath   string
	ExtraMounts []string
	FileSystem  string
	Label       string
	Total       uint64
	Available   uint64
	Removable   bool
	// Network is nil when the platform gave no explicit signal.
	Network    *bool
	Virtual    bool
	ReadOnly   bool
	Rotational *bool
	Model      string
	HardwareID string
	// BackendID names the remote side of a network mount (server/share).
	BackendID string
}

// Enumerator lists mounted filesystems. Implementations block; callers run
// them on the worker pool.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]RawVolume, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]RawVolume, error)

func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]RawVolume, error) { return f(ctx) }

// UsageFunc reports total and available bytes for the filesystem holding
// path. ok is false when the figures could not be read.
type UsageFunc func(path string) (total, available uint64, ok bool)

// DiskUsage returns total and available bytes for the filesystem holding
// path. ok is false when the figures could not be read.
func DiskUsage(path string) (total, available uint64, ok bool) {
	usage := du.NewDiskUsage(path)
	if usage == nil {
		return 0, 0, false
	}
	total = usage.Size()
	if total == 0 {
		return 0, 0, false
	}
	return total, usage.Available(), true
}

func boolPtr(b bool) *bool { return &b }
