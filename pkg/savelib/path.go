package savelib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// TempSuffix is appended to a destination path while its transfer is in
// flight. The temp file's length is the resumption offset; no separate
// offset record exists.
const TempSuffix = ".part"

// ResolveWithin joins base with the given path elements and returns the
// cleaned absolute result, failing with ErrUnauthorizedPath when the
// result does not stay inside base. Every path built from user-controlled
// input (custom names, subfolders, request paths) goes through here.
func ResolveWithin(base string, elem ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	parts := append([]string{absBase}, elem...)
	resolved, err := filepath.Abs(filepath.Join(parts...))
	if err != nil {
		return "", err
	}
	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnauthorizedPath, resolved)
	}
	return resolved, nil
}

// nextAvailablePath walks the digit-suffix collision loop for a desired
// destination. When a temp file is found the collision is the resumable
// one: its length becomes the resumption offset and the loop stops. When
// only the final file exists the stem gets a numeric suffix and the probe
// repeats. Returns the settled final path, its temp path and the offset.
func nextAvailablePath(fs afero.Fs, dest string) (finalPath, partPath string, offset int64, err error) {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	finalPath = dest
	partPath = dest + TempSuffix

	for digit := 1; ; digit++ {
		if info, statErr := fs.Stat(partPath); statErr == nil {
			offset = info.Size()
			return
		} else if !os.IsNotExist(statErr) {
			err = statErr
			return
		}
		if _, statErr := fs.Stat(finalPath); os.IsNotExist(statErr) {
			return
		} else if statErr != nil {
			err = statErr
			return
		}
		finalPath = fmt.Sprintf("%s_%d%s", stem, digit, ext)
		partPath = finalPath + TempSuffix
	}
}
