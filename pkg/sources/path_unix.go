//go:build !windows

package sources

// longPathname is a no-op on non-Windows platforms.
func longPathname(path string) string {
	return path
}
