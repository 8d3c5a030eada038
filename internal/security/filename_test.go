package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"bed_mesh default", "bed_mesh_default"},
		{"bed_mesh PETG shim, 120C", "bed_mesh_PETG_shim_120C"},
		{"shim-70%-with-plate-9x9", "shim-70_-with-plate-9x9"},
		{"../../etc/passwd", "etc_passwd"},
		{"history.db", "history.db"},
		{"  ", "unknown"},
		{"", "unknown"},
		{"...", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	t.Parallel()
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 500)), maxFilenameLen)
}
