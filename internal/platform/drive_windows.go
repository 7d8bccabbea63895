//go:build windows

package platform

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
)

func driveKind(mount, device, _ string) driveDetails {
	var d driveDetails
	root := mount
	if !strings.HasSuffix(root, `\`) {
		root += `\`
	}
	r, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return d
	}

	switch windows.GetDriveType(r) {
	case windows.DRIVE_REMOVABLE, windows.DRIVE_CDROM:
		d.removable = true
		d.network = boolPtr(false)
	case windows.DRIVE_REMOTE:
		d.network = boolPtr(true)
		if strings.HasPrefix(device, `\\`) {
			d.backend = device
		}
	case windows.DRIVE_RAMDISK:
		d.virtual = true
		d.network = boolPtr(false)
	case windows.DRIVE_FIXED:
		d.network = boolPtr(false)
	}

	label := make([]uint16, windows.MAX_PATH+1)
	var serial, maxComponent, flags uint32
	if err := windows.GetVolumeInformation(r, &label[0], uint32(len(label)), &serial, &maxComponent, &flags, nil, 0); err == nil {
		d.label = windows.UTF16ToString(label)
		d.hardwareID = fmt.Sprintf("%08X", serial)
	}
	return d
}
