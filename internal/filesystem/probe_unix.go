//go:build linux || darwin

package filesystem

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var errNoVolumeFlags = errors.New("volume flags are not available on this platform")

// NativeProber returns the prober for the running platform.
func NativeProber() Prober { return unixProber{} }

type unixProber struct{}

func (unixProber) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return uint64(st.Dev), nil
}

// VolumeID uses the filesystem id, which stays the same across subvolumes
// and bind mounts of one filesystem.
func (unixProber) VolumeID(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %s: %w", path, err)
	}
	return fmt.Sprintf("fsid:%08x%08x", uint32(st.Fsid.Val[0]), uint32(st.Fsid.Val[1])), nil
}

func (unixProber) VolumeFlags(string) (VolumeFlags, error) {
	return 0, errNoVolumeFlags
}

func (unixProber) CloneSupport(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, fmt.Errorf("statfs %s: %w", path, err)
	}
	return statfsSupportsClone(&st), nil
}

func (unixProber) ResolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
