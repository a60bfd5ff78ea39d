package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swiftcart/delivery-tracker/pkg/file"
)

func TestStaticTokenProvider(t *testing.T) {
	token, err := StaticTokenProvider("abc123").Token()
	assert.NoError(t, err)
	assert.Equal(t, "abc123", token)

	_, err = StaticTokenProvider("").Token()
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestFileTokenProvider_ReadsAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	assert.NoError(t, os.WriteFile(path, []byte("  abc123\n"), 0600))

	provider := NewFileTokenProvider(path, file.NewFileService())

	token, err := provider.Token()
	assert.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestFileTokenProvider_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	assert.NoError(t, os.WriteFile(path, []byte("\n"), 0600))

	provider := NewFileTokenProvider(path, file.NewFileService())

	_, err := provider.Token()
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestFileTokenProvider_MissingFile(t *testing.T) {
	provider := NewFileTokenProvider(filepath.Join(t.TempDir(), "absent"), file.NewFileService())

	_, err := provider.Token()
	assert.Error(t, err)
}
