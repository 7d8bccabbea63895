//go:build darwin

package filesystem

import "golang.org/x/sys/unix"

// APFS supports clonefile on every volume.
func statfsSupportsClone(st *unix.Statfs_t) bool {
	return unix.ByteSliceToString(st.Fstypename[:]) == "apfs"
}
