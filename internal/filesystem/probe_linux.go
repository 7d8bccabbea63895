//go:build linux

package filesystem

import "golang.org/x/sys/unix"

// Btrfs supports reflinks on every volume.
func statfsSupportsClone(st *unix.Statfs_t) bool {
	return uint32(st.Type) == unix.BTRFS_SUPER_MAGIC
}
