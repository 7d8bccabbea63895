package filesystem

import (
	"errors"
	"sync/atomic"
	"time"

	"voltrack/internal/worker"
)

var errProbe = errors.New("probe failed")

func testPool() *worker.Pool { return worker.New(4, time.Second) }

// fakeProber answers from maps keyed by path. Missing keys fail.
type fakeProber struct {
	devices  map[string]uint64
	volumes  map[string]string
	flags    map[string]VolumeFlags
	clone    map[string]bool
	resolved map[string]string

	cloneCalls atomic.Int32
}

func (f *fakeProber) DeviceID(p string) (uint64, error) {
	if d, ok := f.devices[p]; ok {
		return d, nil
	}
	return 0, errProbe
}

func (f *fakeProber) VolumeID(p string) (string, error) {
	if v, ok := f.volumes[p]; ok {
		return v, nil
	}
	return "", errProbe
}

func (f *fakeProber) VolumeFlags(p string) (VolumeFlags, error) {
	if v, ok := f.flags[p]; ok {
		return v, nil
	}
	return 0, errProbe
}

func (f *fakeProber) CloneSupport(p string) (bool, error) {
	f.cloneCalls.Add(1)
	if v, ok := f.clone[p]; ok {
		return v, nil
	}
	return false, errProbe
}

func (f *fakeProber) ResolvePath(p string) (string, error) {
	if v, ok := f.resolved[p]; ok {
		return v, nil
	}
	return "", errProbe
}

// failingProber fails every call.
type failingProber struct{}

func (failingProber) DeviceID(string) (uint64, error) { return 0, errProbe }
func (failingProber) VolumeID(string) (string, error) { return "", errProbe }
func (failingProber) VolumeFlags(string) (VolumeFlags, error) { return 0, errProbe }
func (failingProber) CloneSupport(string) (bool, error) { return false, errProbe }
func (failingProber) ResolvePath(string) (string, error) { return "", errProbe }

// panickingProber panics on every call.
type panickingProber struct{}

func (panickingProber) DeviceID(string) (uint64, error) { panic("device") }
func (panickingProber) VolumeID(string) (string, error) { panic("volume") }
func (panickingProber) VolumeFlags(string) (VolumeFlags, error) { panic("flags") }
func (panickingProber) CloneSupport(string) (bool, error) { panic("clone") }
func (panickingProber) ResolvePath(string) (string, error) { panic("resolve") }
