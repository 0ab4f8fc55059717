//go:build windows

package sources

import "io/fs"

// Windows ACLs don't map to POSIX permission bits, so the proactive read
// check is skipped; open reports access errors directly.
func ensureReadable(_ string, _ fs.FileInfo) error {
	return nil
}
