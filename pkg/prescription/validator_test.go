package prescription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadValidator(t *testing.T) {
	v := NewUploadValidator(16 << 20)

	tests := []struct {
		name     string
		filename string
		size     int64
		want     string
		wantErr  error
	}{
		{"png", "scan.png", 10, "image/png", nil},
		{"upper case jpg", "SCAN.JPG", 10, "image/jpeg", nil},
		{"jpeg", "scan.jpeg", 10, "image/jpeg", nil},
		{"pdf", "scan.pdf", 10, "application/pdf", nil},
		{"at limit", "scan.png", 16 << 20, "image/png", nil},
		{"over limit", "scan.png", 16<<20 + 1, "", errFileTooLarge},
		{"empty", "scan.png", 0, "", errEmptyFile},
		{"no name", " ", 10, "", errMissingFile},
		{"gif", "scan.gif", 10, "", errUnsupportedExt},
		{"no extension", "scan", 10, "", errUnsupportedExt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := v.Validate(tt.filename, tt.size)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ct)
		})
	}
}
