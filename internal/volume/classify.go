package volume

import (
	"path"
	"strings"
)

// DetectionInfo is the raw evidence a classifier works from.
type DetectionInfo struct {
	MountPath     string
	FileSystem    FileSystem
	TotalCapacity uint64
	Removable     bool
	// Network is nil when the platform gave no explicit signal.
	Network     *bool
	DeviceModel string
}

// Classifier assigns a semantic VolumeType to a detected volume.
type Classifier interface {
	Classify(info DetectionInfo) VolumeType
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(DetectionInfo) VolumeType

func (f ClassifierFunc) Classify(info DetectionInfo) VolumeType { return f(info) }

// ClassifierPolicy holds the path heuristics used by PathClassifier. Entries
// are path.Match patterns over slash-separated mount paths.
type ClassifierPolicy struct {
	SystemPaths       []string `yaml:"system_paths"`
	PrimaryPaths      []string `yaml:"primary_paths"`
	UserDataPaths     []string `yaml:"user_data_paths"`
	SecondaryPatterns []string `yaml:"secondary_patterns"`
}

// IsZero reports whether the policy has no rules at all.
func (p ClassifierPolicy) IsZero() bool {
	return len(p.SystemPaths) == 0 && len(p.PrimaryPaths) == 0 &&
		len(p.UserDataPaths) == 0 && len(p.SecondaryPatterns) == 0
}

// DefaultPolicy returns the built-in heuristics for an operating system.
func DefaultPolicy(goos string) ClassifierPolicy {
	switch goos {
	case "darwin":
		return ClassifierPolicy{
			SystemPaths: []string{
				"/",
				"/System/Volumes/VM",
				"/System/Volumes/Preboot",
				"/System/Volumes/Update",
				"/System/Volumes/xarts",
				"/System/Volumes/iSCPreboot",
				"/System/Volumes/Hardware",
			},
			PrimaryPaths:      []string{"/System/Volumes/Data"},
			SecondaryPatterns: []string{"/Volumes/*"},
		}
	case "windows":
		return ClassifierPolicy{
			PrimaryPaths:      []string{"C:"},
			SecondaryPatterns: []string{"?:"},
		}
	default:
		return ClassifierPolicy{
			SystemPaths:       []string{"/boot", "/boot/*", "/efi"},
			PrimaryPaths:      []string{"/"},
			UserDataPaths:     []string{"/home"},
			SecondaryPatterns: []string{"/mnt/*", "/media/*", "/media/*/*", "/run/media/*/*", "/srv", "/data"},
		}
	}
}

// PathClassifier classifies volumes by platform signals first and mount path
// heuristics second.
type PathClassifier struct {
	Policy ClassifierPolicy
	Style  PathStyle
}

// NewPathClassifier returns a classifier for the running platform.
func NewPathClassifier(policy ClassifierPolicy) *PathClassifier {
	return &PathClassifier{Policy: policy, Style: nativePaths}
}

func (c *PathClassifier) Classify(info DetectionInfo) VolumeType {
	switch {
	case info.Network != nil && *info.Network, info.FileSystem.IsNetwork():
		return TypeNetwork
	case info.Removable:
		return TypeExternal
	case info.TotalCapacity == 0:
		return TypeVirtual
	}

	p := c.matchForm(info.MountPath)
	switch {
	case c.matchAny(p, c.Policy.SystemPaths):
		return TypeSystem
	case c.matchAny(p, c.Policy.PrimaryPaths):
		return TypePrimary
	case c.matchAny(p, c.Policy.UserDataPaths):
		return TypeUserData
	case c.matchAny(p, c.Policy.SecondaryPatterns):
		return TypeSecondary
	}
	return TypeUnknown
}

func (c *PathClassifier) matchForm(p string) string {
	p = c.Style.normalize(p)
	if c.Style == WindowsPaths {
		p = strings.ReplaceAll(p, `\`, "/")
	}
	return p
}

func (c *PathClassifier) matchAny(p string, patterns []string) bool {
	for _, pat := range patterns {
		pat = c.matchForm(pat)
		if pat == p {
			return true
		}
		if ok, err := path.Match(pat, p); err == nil && ok {
			return true
		}
	}
	return false
}

// MountTypeFor derives the coarse mount relation from a volume type.
func MountTypeFor(t VolumeType) MountType {
	switch t {
	case TypeSystem, TypeVirtual:
		return MountSystem
	case TypeExternal:
		return MountExternal
	case TypeNetwork:
		return MountNetwork
	default:
		return MountUser
	}
}
