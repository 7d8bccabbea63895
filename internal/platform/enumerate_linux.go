//go:build linux

package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// Kernel filesystems that never hold user data.
var pseudoFileSystems = map[string]bool{
	"proc": true, "sysfs": true, "cgroup": true, "cgroup2": true,
	"devpts": true, "devtmpfs": true, "mqueue": true, "debugfs": true,
	"tracefs": true, "securityfs": true, "pstore": true, "bpf": true,
	"configfs": true, "fusectl": true, "hugetlbfs": true, "autofs": true,
	"binfmt_misc": true, "rpc_pipefs": true, "nsfs": true, "efivarfs": true,
	"selinuxfs": true, "fuse.gvfsd-fuse": true, "fuse.portal": true,
}

// Memory-backed or image filesystems reported as virtual volumes.
var virtualFileSystems = map[string]bool{
	"tmpfs": true, "ramfs": true, "overlay": true, "squashfs": true,
	"fuse.lxcfs": true, "zram": true,
}

var networkFileSystems = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "smb3": true, "smbfs": true,
	"sshfs": true, "fuse.sshfs": true, "9p": true, "ceph": true, "glusterfs": true,
	"fuse.rclone": true, "davfs": true,
}

// MountTableEnumerator reads the kernel mount table.
type MountTableEnumerator struct {
	// Mounts returns the mount table; nil reads /proc/self/mountinfo.
	Mounts func() ([]*mountinfo.Info, error)
	SysRoot string
	DevRoot string
}

// NativeEnumerator returns the enumerator for the running platform.
func NativeEnumerator() Enumerator {
	return &MountTableEnumerator{SysRoot: "/sys", DevRoot: "/dev"}
}

func (e *MountTableEnumerator) Enumerate(context.Context) ([]RawVolume, error) {
	mounts := e.Mounts
	if mounts == nil {
		mounts = func() ([]*mountinfo.Info, error) { return mountinfo.GetMounts(nil) }
	}

	infos, err := mounts()
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}

	labels := e.linkTargets("disk/by-label")
	uuids := e.linkTargets("disk/by-uuid")

	// Bind mounts of one filesystem share major:minor and root.
	groups := make(map[string][]*mountinfo.Info)
	var order []string
	for _, info := range infos {
		if pseudoFileSystems[info.FSType] || info.Mountpoint == "" {
			continue
		}
		key := fmt.Sprintf("%d:%d:%s", info.Major, info.Minor, info.Root)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], info)
	}

	var out []RawVolume
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return len(group[i].Mountpoint) < len(group[j].Mountpoint)
		})
		primary := group[0]

		raw := RawVolume{
			Device:     primary.Source,
			MountPath:  primary.Mountpoint,
			FileSystem: primary.FSType,
			Virtual:    virtualFileSystems[primary.FSType],
			ReadOnly:   hasOption(primary.Options, "ro"),
		}
		for _, extra := range group[1:] {
			raw.ExtraMounts = append(raw.ExtraMounts, extra.Mountpoint)
		}

		if networkFileSystems[primary.FSType] {
			raw.Network = boolPtr(true)
			raw.BackendID = primary.Source
		} else if strings.HasPrefix(primary.Source, "/dev/") {
			dev := e.canonicalDevice(primary.Source)
			raw.Network = boolPtr(false)
			raw.Label = labels[dev]
			raw.HardwareID = uuids[dev]
			if raw.HardwareID == "" {
				raw.HardwareID = primary.Source
			}
			e.blockAttributes(&raw, filepath.Base(dev))
		}
		out = append(out, raw)
	}
	return out, nil
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == want {
			return true
		}
	}
	return false
}

// canonicalDevice resolves /dev/mapper and /dev/disk symlinks to the kernel
// device path.
func (e *MountTableEnumerator) canonicalDevice(source string) string {
	p := source
	if e.DevRoot != "/dev" {
		p = filepath.Join(e.DevRoot, strings.TrimPrefix(source, "/dev/"))
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return filepath.Base(resolved)
	}
	return filepath.Base(source)
}

// linkTargets maps kernel device names to the link names under a /dev/disk
// directory (labels or uuids).
func (e *MountTableEnumerator) linkTargets(dir string) map[string]string {
	out := make(map[string]string)
	root := filepath.Join(e.DevRoot, dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return out
	}
	for _, ent := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(root, ent.Name()))
		if err != nil {
			continue
		}
		out[filepath.Base(target)] = unescapeLinkName(ent.Name())
	}
	return out
}

// unescapeLinkName decodes udev's \xNN escapes.
func unescapeLinkName(name string) string {
	if !strings.Contains(name, `\x`) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' && i+3 < len(name) && name[i+1] == 'x' {
			if n, err := strconv.ParseUint(name[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

// blockAttributes fills removable, rotational and model from sysfs. Partitions
// carry none of these, so the parent disk is consulted too.
func (e *MountTableEnumerator) blockAttributes(raw *RawVolume, name string) {
	dir := filepath.Join(e.SysRoot, "class", "block", name)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return
	}
	candidates := []string{resolved, filepath.Dir(resolved)}

	for _, d := range candidates {
		if v, ok := readSysBool(filepath.Join(d, "removable")); ok {
			raw.Removable = v
			break
		}
	}
	for _, d := range candidates {
		if v, ok := readSysBool(filepath.Join(d, "queue", "rotational")); ok {
			raw.Rotational = boolPtr(v)
			break
		}
	}
	for _, d := range candidates {
		if data, err := os.ReadFile(filepath.Join(d, "device", "model")); err == nil {
			raw.Model = strings.TrimSpace(string(data))
			break
		}
	}
}

func readSysBool(p string) (bool, bool) {
	data, err := os.ReadFile(p)
	if err != nil {
		return false, false
	}
	switch strings.TrimSpace(string(data)) {
	case "1":
		return true, true
	case "0":
		return false, true
	}
	return false, false
}
