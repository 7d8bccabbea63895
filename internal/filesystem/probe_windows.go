//go:build windows

package filesystem

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
)

const (
	fsctlGetRefsVolumeData = 0x000902D8

	// Block cloning arrived with ReFS 2.x.
	minCloneRefsMajor = 2

	maxLongPath = 32768
)

// NativeProber returns the prober for the running platform.
func NativeProber() Prober { return windowsProber{} }

type windowsProber struct{}

func volumePathName(path string) (string, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", err
	}
	buf := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		return "", fmt.Errorf("GetVolumePathName %s: %w", path, err)
	}
	return windows.UTF16ToString(buf), nil
}

func volumeInformation(path string) (serial, flags uint32, err error) {
	root, err := volumePathName(path)
	if err != nil {
		return 0, 0, err
	}
	r, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return 0, 0, err
	}
	var maxComponent uint32
	if err := windows.GetVolumeInformation(r, nil, 0, &serial, &maxComponent, &flags, nil, 0); err != nil {
		return 0, 0, fmt.Errorf("GetVolumeInformation %s: %w", root, err)
	}
	return serial, flags, nil
}

func (windowsProber) DeviceID(path string) (uint64, error) {
	serial, _, err := volumeInformation(path)
	return uint64(serial), err
}

func (windowsProber) VolumeID(path string) (string, error) {
	root, err := volumePathName(path)
	if err != nil {
		return "", err
	}
	r, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", err
	}
	buf := make([]uint16, 50)
	if err := windows.GetVolumeNameForVolumeMountPoint(r, &buf[0], uint32(len(buf))); err != nil {
		return "", fmt.Errorf("GetVolumeNameForVolumeMountPoint %s: %w", root, err)
	}
	return windows.UTF16ToString(buf), nil
}

func (windowsProber) VolumeFlags(path string) (VolumeFlags, error) {
	_, flags, err := volumeInformation(path)
	return VolumeFlags(flags), err
}

func (p windowsProber) CloneSupport(path string) (bool, error) {
	guid, err := p.VolumeID(path)
	if err != nil {
		return false, err
	}
	name, err := windows.UTF16PtrFromString(strings.TrimSuffix(guid, `\`))
	if err != nil {
		return false, err
	}
	h, err := windows.CreateFile(name, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return false, fmt.Errorf("open volume %s: %w", guid, err)
	}
	defer windows.CloseHandle(h)

	// REFS_VOLUME_DATA_BUFFER; MajorVersion is the second DWORD.
	var out [128]byte
	var n uint32
	if err := windows.DeviceIoControl(h, fsctlGetRefsVolumeData, nil, 0, &out[0], uint32(len(out)), &n, nil); err != nil {
		return false, fmt.Errorf("FSCTL_GET_REFS_VOLUME_DATA %s: %w", guid, err)
	}
	if n < 8 {
		return false, fmt.Errorf("short refs volume data (%d bytes)", n)
	}
	return binary.LittleEndian.Uint32(out[4:8]) >= minCloneRefsMajor, nil
}

func (windowsProber) ResolvePath(path string) (string, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", err
	}
	h, err := windows.CreateFile(p, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, maxLongPath)
	n, err := windows.GetFinalPathNameByHandle(h, &buf[0], uint32(len(buf)), 0)
	if err != nil {
		return "", fmt.Errorf("GetFinalPathNameByHandle %s: %w", path, err)
	}
	return windows.UTF16ToString(buf[:n]), nil
}
