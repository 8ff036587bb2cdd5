//go:build !linux && !darwin && !freebsd

package savelib

// FreeSpace is unsupported on this platform and reports -1.
func FreeSpace(path string) (int64, error) {
	return -1, nil
}
