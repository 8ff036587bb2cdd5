package savelib

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name    string
		elem    []string
		wantErr bool
	}{
		{"plain name", []string{"file.txt"}, false},
		{"subfolder", []string{"music", "song.mp3"}, false},
		{"base itself", nil, false},
		{"dot dot escape", []string{"..", "outside.txt"}, true},
		{"nested escape", []string{"sub", "..", "..", "outside.txt"}, true},
		{"absolute element", []string{"/etc/passwd"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tc.elem...)
			if tc.wantErr {
				if !errors.Is(err, ErrUnauthorizedPath) {
					t.Fatalf("ResolveWithin(%v) err = %v, want ErrUnauthorizedPath", tc.elem, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin(%v) err = %v", tc.elem, err)
			}
			if got != base && !isWithin(base, got) {
				t.Errorf("ResolveWithin(%v) = %q, escapes %q", tc.elem, got, base)
			}
		})
	}
}

func isWithin(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && rel[0] != '.')
}

func TestNextAvailablePathFresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	dest := "/downloads/file.zip"

	finalPath, partPath, offset, err := nextAvailablePath(fs, dest)
	if err != nil {
		t.Fatal(err)
	}
	if finalPath != dest {
		t.Errorf("finalPath = %q, want %q", finalPath, dest)
	}
	if partPath != dest+TempSuffix {
		t.Errorf("partPath = %q, want %q", partPath, dest+TempSuffix)
	}
	if offset != 0 {
		t.Errorf("offset = %d, want 0", offset)
	}
}

func TestNextAvailablePathResumesFromPart(t *testing.T) {
	fs := afero.NewMemMapFs()
	dest := "/downloads/file.zip"
	if err := afero.WriteFile(fs, dest+TempSuffix, make([]byte, 1234), 0644); err != nil {
		t.Fatal(err)
	}

	finalPath, _, offset, err := nextAvailablePath(fs, dest)
	if err != nil {
		t.Fatal(err)
	}
	if finalPath != dest {
		t.Errorf("finalPath = %q, want %q", finalPath, dest)
	}
	if offset != 1234 {
		t.Errorf("offset = %d, want 1234", offset)
	}
}

func TestNextAvailablePathSuffixesOnCollision(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, p := range []string{"/downloads/file.zip", "/downloads/file_1.zip"} {
		if err := afero.WriteFile(fs, p, []byte("done"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	finalPath, partPath, offset, err := nextAvailablePath(fs, "/downloads/file.zip")
	if err != nil {
		t.Fatal(err)
	}
	if finalPath != "/downloads/file_2.zip" {
		t.Errorf("finalPath = %q, want /downloads/file_2.zip", finalPath)
	}
	if partPath != "/downloads/file_2.zip"+TempSuffix {
		t.Errorf("partPath = %q", partPath)
	}
	if offset != 0 {
		t.Errorf("offset = %d, want 0", offset)
	}
}

func TestNextAvailablePathPartShortCircuitsSuffixing(t *testing.T) {
	fs := afero.NewMemMapFs()
	// file.zip is complete; file_1.zip has a half-finished temp file.
	// The probe must resume file_1 rather than move on to file_2.
	if err := afero.WriteFile(fs, "/downloads/file.zip", []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/downloads/file_1.zip"+TempSuffix, make([]byte, 500), 0644); err != nil {
		t.Fatal(err)
	}

	finalPath, _, offset, err := nextAvailablePath(fs, "/downloads/file.zip")
	if err != nil {
		t.Fatal(err)
	}
	if finalPath != "/downloads/file_1.zip" {
		t.Errorf("finalPath = %q, want /downloads/file_1.zip", finalPath)
	}
	if offset != 500 {
		t.Errorf("offset = %d, want 500", offset)
	}
}
