//go:build windows

package sources

import (
	"path/filepath"
	"strings"
)

// longPathname prefixes absolute drive paths with the extended-length marker
// so log files beyond MAX_PATH stay readable.
func longPathname(path string) string {
	if len(path) < 2 || path[1] != ':' {
		return path
	}
	if filepath.IsAbs(path) && !strings.HasPrefix(path, `\\?\`) {
		return `\\?\` + filepath.Clean(path)
	}
	return path
}
