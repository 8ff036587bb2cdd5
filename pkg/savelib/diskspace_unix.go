//go:build linux || darwin || freebsd

package savelib

import "golang.org/x/sys/unix"

// FreeSpace returns the number of bytes available to unprivileged users
// on the filesystem holding path, or -1 when the probe is unsupported.
func FreeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return -1, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
