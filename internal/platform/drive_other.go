//go:build !linux && !darwin && !windows

package platform

import "voltrack/internal/volume"

func driveKind(_, device, fstype string) driveDetails {
	d := driveDetails{hardwareID: device}
	if volume.ParseFileSystem(fstype).IsNetwork() {
		d.network = boolPtr(true)
		d.backend = device
	}
	return d
}
