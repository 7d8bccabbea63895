package volume

import (
	"runtime"
	"strings"
)

// PathStyle describes how a platform spells and compares paths.
type PathStyle uint8

const (
	// UnixPaths separate on '/' and compare case-sensitively.
	UnixPaths PathStyle = iota
	// DarwinPaths separate on '/' and fold case.
	DarwinPaths
	// WindowsPaths separate on '/' and '\' and fold case.
	WindowsPaths
)

// PathStyleFor returns the path style of goos.
func PathStyleFor(goos string) PathStyle {
	switch goos {
	case "windows":
		return WindowsPaths
	case "darwin":
		return DarwinPaths
	default:
		return UnixPaths
	}
}

var nativePaths = PathStyleFor(runtime.GOOS)

func (s PathStyle) fold() bool { return s != UnixPaths }

func (s PathStyle) isSeparator(c byte) bool {
	return c == '/' || (s == WindowsPaths && c == '\\')
}

const (
	extendedPrefix    = `\\?\`
	extendedUNCPrefix = `\\?\UNC\`
)

// StripExtendedPrefix removes a Windows long-path (\\?\) or long-UNC
// (\\?\UNC\) prefix. Paths without one are returned unchanged.
func StripExtendedPrefix(p string) string {
	if strings.HasPrefix(p, extendedUNCPrefix) {
		return `\\` + p[len(extendedUNCPrefix):]
	}
	return strings.TrimPrefix(p, extendedPrefix)
}

// TrimTrailingSeparators strips trailing path separators while keeping a bare
// root intact.
func TrimTrailingSeparators(p string) string {
	return nativePaths.trimTrailing(p)
}

func (s PathStyle) trimTrailing(p string) string {
	end := len(p)
	for end > 1 && s.isSeparator(p[end-1]) {
		end--
	}
	return p[:end]
}

// NormalizeMountPath is the canonical form used for identity and matching:
// extended prefix removed, trailing separators stripped, case folded where the
// platform ignores case.
func NormalizeMountPath(p string) string {
	return nativePaths.normalize(p)
}

func (s PathStyle) normalize(p string) string {
	p = strings.TrimSpace(p)
	if s == WindowsPaths {
		p = StripExtendedPrefix(p)
	}
	p = s.trimTrailing(p)
	if s.fold() {
		p = strings.ToLower(p)
	}
	return p
}

// HasPathPrefix reports whether p equals prefix or lies beneath it, comparing
// whole path components. Both sides are normalized first.
func HasPathPrefix(p, prefix string) bool {
	return nativePaths.hasPrefix(nativePaths.normalize(p), nativePaths.normalize(prefix))
}

func (s PathStyle) hasPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	if len(p) == len(prefix) {
		return true
	}
	// A root prefix ("/", `\`, "C:\" trimmed to "C:") already ends at a boundary.
	if s.isSeparator(prefix[len(prefix)-1]) {
		return true
	}
	return s.isSeparator(p[len(prefix)])
}
