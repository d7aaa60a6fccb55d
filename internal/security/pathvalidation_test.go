package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "data", "escape")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in directory", filepath.Join(dir, "data", "a.fit"), false},
		{"nested new file", filepath.Join(dir, "data", "new", "b.fit"), false},
		{"the directory itself", filepath.Join(dir, "data"), false},
		{"parent", filepath.Join(dir, "data", ".."), true},
		{"traversal", filepath.Join(dir, "data", "..", "..", "etc", "passwd"), true},
		{"symlink out", filepath.Join(dir, "data", "escape", "c.fit"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, filepath.Join(dir, "data"))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathTraversal)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(dir, "x"), filepath.Join(dir, "missing")))
}

func TestResolveInDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveInDirectory(dir, "2026-03-01_07.30.00.fit")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2026-03-01_07.30.00.fit"), got)

	for _, name := range []string{"", "..", ".hidden", "../x.fit", "a/b.fit", `a\b.fit`} {
		_, err := ResolveInDirectory(dir, name)
		assert.ErrorIs(t, err, ErrPathTraversal, name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"2026-03-01_07.30.00":   "2026-03-01_07.30.00",
		"":                      "unknown",
		"...":                   "unknown",
		"my session: 2k/test!!": "my_session_2k_test",
		"../../etc/passwd":      "etc_passwd",
		"rowing   erg":          "rowing_erg",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 500)), 128)
}
