//go:build !linux && !darwin && !windows

package filesystem

import "errors"

var errUnsupported = errors.New("filesystem probes are not supported on this platform")

// NativeProber returns the prober for the running platform.
func NativeProber() Prober { return noProber{} }

type noProber struct{}

func (noProber) DeviceID(string) (uint64, error) { return 0, errUnsupported }
func (noProber) VolumeID(string) (string, error) { return "", errUnsupported }
func (noProber) VolumeFlags(string) (VolumeFlags, error) { return 0, errUnsupported }
func (noProber) CloneSupport(string) (bool, error) { return false, errUnsupported }
func (noProber) ResolvePath(p string) (string, error) { return p, nil }
