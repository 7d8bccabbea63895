//go:build darwin

package platform

import (
	"path/filepath"
	"strings"

	"voltrack/internal/volume"
)

// Filesystems that on macOS almost always sit on removable media when
// mounted under /Volumes.
var removableFileSystems = map[volume.FileSystem]bool{
	volume.FSExFAT: true,
	volume.FSFAT32: true,
	volume.FSNTFS:  true,
}

func driveKind(mount, device, fstype string) driveDetails {
	var d driveDetails
	fs := volume.ParseFileSystem(fstype)

	if fs.IsNetwork() {
		d.network = boolPtr(true)
		d.backend = device
		return d
	}
	d.network = boolPtr(false)
	if fstype == "devfs" || fstype == "autofs" {
		d.virtual = true
	}
	if strings.HasPrefix(mount, "/Volumes/") {
		d.label = filepath.Base(mount)
		d.removable = removableFileSystems[fs]
	}
	d.hardwareID = device
	return d
}
