package volume

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MountType is the coarse relation of a volume to the operating system.
type MountType string

const (
	MountSystem   MountType = "system"
	MountUser     MountType = "user"
	MountExternal MountType = "external"
	MountNetwork  MountType = "network"
)

// VolumeType is the semantic role of a volume.
type VolumeType string

const (
	TypePrimary   VolumeType = "primary"
	TypeUserData  VolumeType = "user_data"
	TypeSecondary VolumeType = "secondary"
	TypeExternal  VolumeType = "external"
	TypeNetwork   VolumeType = "network"
	TypeVirtual   VolumeType = "virtual"
	TypeSystem    VolumeType = "system"
	TypeUnknown   VolumeType = "unknown"
)

// DiskType is the physical media kind backing a volume.
type DiskType string

const (
	DiskHDD     DiskType = "hdd"
	DiskSSD     DiskType = "ssd"
	DiskUnknown DiskType = "unknown"
)

// FileSystem identifies a filesystem family. Unrecognized filesystems keep
// their lower-cased OS name.
type FileSystem string

const (
	FSAPFS    FileSystem = "apfs"
	FSHFSPlus FileSystem = "hfs+"
	FSNTFS    FileSystem = "ntfs"
	FSReFS    FileSystem = "refs"
	FSFAT32   FileSystem = "fat32"
	FSExFAT   FileSystem = "exfat"
	FSExt4    FileSystem = "ext4"
	FSBtrfs   FileSystem = "btrfs"
	FSXFS     FileSystem = "xfs"
	FSZFS     FileSystem = "zfs"
	FSNFS     FileSystem = "nfs"
	FSSMB     FileSystem = "smb"
	FSUnknown FileSystem = "unknown"
)

var fsAliases = map[string]FileSystem{
	"apfs":       FSAPFS,
	"hfs":        FSHFSPlus,
	"hfs+":       FSHFSPlus,
	"hfsplus":    FSHFSPlus,
	"ntfs":       FSNTFS,
	"ntfs3":      FSNTFS,
	"fuseblk":    FSNTFS,
	"refs":       FSReFS,
	"fat":        FSFAT32,
	"fat32":      FSFAT32,
	"vfat":       FSFAT32,
	"msdos":      FSFAT32,
	"exfat":      FSExFAT,
	"ext2":       FSExt4,
	"ext3":       FSExt4,
	"ext4":       FSExt4,
	"btrfs":      FSBtrfs,
	"xfs":        FSXFS,
	"zfs":        FSZFS,
	"nfs":        FSNFS,
	"nfs4":       FSNFS,
	"cifs":       FSSMB,
	"smb":        FSSMB,
	"smb2":       FSSMB,
	"smb3":       FSSMB,
	"smbfs":      FSSMB,
	"afpfs":      FSSMB,
	"webdav":     FSSMB,
	"sshfs":      FSSMB,
	"fuse.sshfs": FSSMB,
}

// ParseFileSystem maps an OS-reported filesystem name to a FileSystem.
func ParseFileSystem(name string) FileSystem {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return FSUnknown
	}
	if fs, ok := fsAliases[n]; ok {
		return fs
	}
	return FileSystem(n)
}

// IsNetwork reports whether the filesystem is served over the network.
func (f FileSystem) IsNetwork() bool {
	return f == FSNFS || f == FSSMB
}

// FilesystemFeatures are capability flags reported by a filesystem probe.
type FilesystemFeatures struct {
	Hardlinks    bool `json:"hardlinks" yaml:"hardlinks"`
	Junctions    bool `json:"junctions" yaml:"junctions"`
	Symlinks     bool `json:"symlinks" yaml:"symlinks"`
	Streams      bool `json:"streams" yaml:"streams"`
	Compression  bool `json:"compression" yaml:"compression"`
	Encryption   bool `json:"encryption" yaml:"encryption"`
	BlockCloning bool `json:"block_cloning" yaml:"block_cloning"`
}

// FilesystemMetadata is enrichment added by a filesystem handler. It is never
// part of a volume's identity.
type FilesystemMetadata struct {
	VolumeGUID    string              `json:"volume_guid,omitempty" yaml:"volume_guid,omitempty"`
	ContainerUUID string              `json:"container_uuid,omitempty" yaml:"container_uuid,omitempty"`
	Features      *FilesystemFeatures `json:"features,omitempty" yaml:"features,omitempty"`
	BlockClone    bool                `json:"block_clone" yaml:"block_clone"`
}

// Volume is the canonical record for a physical or logical storage unit.
type Volume struct {
	ID             uuid.UUID           `json:"id" yaml:"id"`
	DeviceID       uuid.UUID           `json:"device_id" yaml:"device_id"`
	Fingerprint    Fingerprint         `json:"fingerprint" yaml:"fingerprint"`
	Name           string              `json:"name" yaml:"name"`
	MountPath      string              `json:"mount_path" yaml:"mount_path"`
	MountPaths     []string            `json:"mount_paths,omitempty" yaml:"mount_paths,omitempty"`
	MountType      MountType           `json:"mount_type" yaml:"mount_type"`
	VolumeType     VolumeType          `json:"volume_type" yaml:"volume_type"`
	DiskType       DiskType            `json:"disk_type" yaml:"disk_type"`
	FileSystem     FileSystem          `json:"file_system" yaml:"file_system"`
	TotalCapacity  uint64              `json:"total_capacity" yaml:"total_capacity"`
	AvailableSpace uint64              `json:"available_space" yaml:"available_space"`
	ReadOnly       bool                `json:"read_only" yaml:"read_only"`
	IsTracked      bool                `json:"is_tracked" yaml:"is_tracked"`
	LibraryID      *uuid.UUID          `json:"library_id,omitempty" yaml:"library_id,omitempty"`
	HardwareID     string              `json:"hardware_id,omitempty" yaml:"hardware_id,omitempty"`
	Metadata       *FilesystemMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	LastSeen       time.Time           `json:"last_seen" yaml:"last_seen"`
}

// New creates an untracked volume. Its ID is derived from the fingerprint.
func New(deviceID uuid.UUID, fp Fingerprint, name, mountPath string) *Volume {
	return &Volume{
		ID:          fp.UUID(),
		DeviceID:    deviceID,
		Fingerprint: fp,
		Name:        name,
		MountPath:   mountPath,
		MountType:   MountUser,
		VolumeType:  TypeUnknown,
		DiskType:    DiskUnknown,
		FileSystem:  FSUnknown,
		LastSeen:    time.Now().UTC(),
	}
}

// SetCapacity records capacity figures, clamping available to total.
func (v *Volume) SetCapacity(total, available uint64) {
	if available > total {
		available = total
	}
	v.TotalCapacity = total
	v.AvailableSpace = available
}

// AllMountPaths returns the primary mount path followed by any additional ones.
func (v *Volume) AllMountPaths() []string {
	out := make([]string, 0, 1+len(v.MountPaths))
	out = append(out, v.MountPath)
	for _, mp := range v.MountPaths {
		if mp != v.MountPath {
			out = append(out, mp)
		}
	}
	return out
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	if v == nil {
		return nil
	}
	c := *v
	c.MountPaths = slices.Clone(v.MountPaths)
	if v.LibraryID != nil {
		id := *v.LibraryID
		c.LibraryID = &id
	}
	if v.Metadata != nil {
		md := *v.Metadata
		if v.Metadata.Features != nil {
			f := *v.Metadata.Features
			md.Features = &f
		}
		c.Metadata = &md
	}
	return &c
}

// SameObservation reports whether two detections of the same volume carry the
// same OS-visible state. Tracking state, enrichment and timestamps are ignored,
// and free space must move by at least FreeSpaceThreshold of capacity to
// count.
func (v *Volume) SameObservation(o *Volume) bool {
	return v.Fingerprint == o.Fingerprint &&
		v.Name == o.Name &&
		v.MountPath == o.MountPath &&
		slices.Equal(v.MountPaths, o.MountPaths) &&
		v.MountType == o.MountType &&
		v.VolumeType == o.VolumeType &&
		v.DiskType == o.DiskType &&
		v.FileSystem == o.FileSystem &&
		v.TotalCapacity == o.TotalCapacity &&
		!freeSpaceShifted(v.AvailableSpace, o.AvailableSpace, v.TotalCapacity) &&
		v.ReadOnly == o.ReadOnly &&
		v.HardwareID == o.HardwareID
}

// FreeSpaceThreshold is the fraction of capacity free space has to move by
// before a refresh reports the volume as changed.
const FreeSpaceThreshold = 0.01

func freeSpaceShifted(a, b, total uint64) bool {
	diff := a - b
	if b > a {
		diff = b - a
	}
	return float64(diff) >= FreeSpaceThreshold*float64(total) && diff > 0
}

// DetectionConfig filters detection results. It never alters classification.
type DetectionConfig struct {
	IncludeSystem        bool     `yaml:"include_system"`
	IncludeVirtual       bool     `yaml:"include_virtual"`
	ExcludeFileSystems   []string `yaml:"exclude_filesystems"`
	ExcludeMountPrefixes []string `yaml:"exclude_mount_prefixes"`
}

// DefaultDetectionConfig surfaces system volumes but hides virtual ones.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{IncludeSystem: true}
}

// Includes reports whether a detected volume passes the filter.
func (c DetectionConfig) Includes(v *Volume) bool {
	if !c.IncludeSystem && (v.MountType == MountSystem || v.VolumeType == TypeSystem) {
		return false
	}
	if !c.IncludeVirtual && (v.VolumeType == TypeVirtual || v.TotalCapacity == 0) {
		return false
	}
	for _, fs := range c.ExcludeFileSystems {
		if ParseFileSystem(fs) == v.FileSystem {
			return false
		}
	}
	for _, prefix := range c.ExcludeMountPrefixes {
		if prefix != "" && HasPathPrefix(v.MountPath, prefix) {
			return false
		}
	}
	return true
}
