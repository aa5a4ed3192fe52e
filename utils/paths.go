// Package utils groups small helpers shared across the service.
package utils

import (
	"strings"
)

// NormalizeLocalPath canonicalizes a filesystem path for local backup targets.
// Backslashes become forward slashes, repeated separators collapse, a lone
// drive letter ("C:") becomes its root form ("C:/") and trailing separators
// are stripped except on roots.
func NormalizeLocalPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = collapseSlashes(p)
	if isDriveLetter(p) {
		return p + "/"
	}
	if p == "/" || isDriveRoot(p) {
		return p
	}
	return strings.TrimSuffix(p, "/")
}

// NormalizeRemotePath canonicalizes a slash-rooted path used for SFTP
// browsing. Empty, "." and "./" all mean the root.
func NormalizeRemotePath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || p == "." || p == "./" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = collapseSlashes(p)
	if p == "/" {
		return p
	}
	return strings.TrimSuffix(p, "/")
}

// JoinLocalPath appends name to a normalized local base. An empty name
// returns the base unchanged.
func JoinLocalPath(base, name string) string {
	b := NormalizeLocalPath(base)
	if name == "" {
		return b
	}
	if b == "" {
		return NormalizeLocalPath(name)
	}
	if strings.HasSuffix(b, "/") {
		return b + name
	}
	return b + "/" + name
}

// JoinRemotePath appends name to a normalized remote base.
func JoinRemotePath(base, name string) string {
	b := NormalizeRemotePath(base)
	if name == "" {
		return b
	}
	if b == "/" {
		return "/" + name
	}
	return b + "/" + name
}

// ParentLocalPath returns the normalized parent directory. Roots are their
// own parent.
func ParentLocalPath(path string) string {
	p := NormalizeLocalPath(path)
	if p == "" || p == "/" || isDriveRoot(p) {
		return p
	}
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	if idx == 0 {
		return "/"
	}
	parent := p[:idx]
	if isDriveLetter(parent) {
		return parent + "/"
	}
	return parent
}

// ParentRemotePath returns the normalized parent of a slash-rooted path.
// The root's parent is the root itself.
func ParentRemotePath(path string) string {
	p := NormalizeRemotePath(path)
	if p == "/" {
		return p
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func collapseSlashes(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

func isDriveLetter(p string) bool {
	return len(p) == 2 && p[1] == ':' &&
		((p[0] >= 'A' && p[0] <= 'Z') || (p[0] >= 'a' && p[0] <= 'z'))
}

func isDriveRoot(p string) bool {
	return len(p) == 3 && p[2] == '/' && isDriveLetter(p[:2])
}
