//go:build !windows

package sources

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// ensureReadable rejects files whose POSIX permission bits would deny the
// current user read access. Stat succeeds on such files, so without this
// check the failure only surfaces as a bare EACCES from open.
func ensureReadable(path string, info fs.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	perms := info.Mode().Perm()

	if int(stat.Uid) == os.Geteuid() {
		if perms&0400 == 0 {
			return fmt.Errorf("permission denied reading %s: owner has no read bit", path)
		}
		return nil
	}

	if inGroup(int(stat.Gid)) {
		if perms&0040 == 0 {
			return fmt.Errorf("permission denied reading %s: group has no read bit", path)
		}
		return nil
	}

	if perms&0004 == 0 {
		return fmt.Errorf("permission denied reading %s: others have no read bit", path)
	}
	return nil
}

func inGroup(gid int) bool {
	if gid == os.Getegid() {
		return true
	}
	groups, err := syscall.Getgroups()
	if err != nil {
		return false
	}
	for _, g := range groups {
		if g == gid {
			return true
		}
	}
	return false
}
