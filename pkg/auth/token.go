package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/swiftcart/delivery-tracker/pkg/file"
)

// ErrEmptyToken is returned when the credential source yields nothing.
var ErrEmptyToken = errors.New("bearer token is empty")

// TokenProvider resolves the bearer credential used for order API
// requests. Issuing and refreshing tokens is the backend's concern; the
// tracker only consumes whatever the provider hands out.
type TokenProvider interface {
	Token() (string, error)
}

// FileTokenProvider reads the credential from a file on every call, so a
// token refreshed by an external process is picked up without restarting
// the agent.
type FileTokenProvider struct {
	tokenFilePath string
	fileClient    file.FileOperations
}

// NewFileTokenProvider creates a FileTokenProvider for the given path.
func NewFileTokenProvider(tokenFilePath string, fileClient file.FileOperations) *FileTokenProvider {
	return &FileTokenProvider{
		tokenFilePath: tokenFilePath,
		fileClient:    fileClient,
	}
}

// Token returns the trimmed file contents.
func (p *FileTokenProvider) Token() (string, error) {
	raw, err := p.fileClient.ReadFile(p.tokenFilePath)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", p.tokenFilePath, err)
	}

	token := strings.TrimSpace(raw)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// StaticTokenProvider wraps a fixed credential, mainly for tests.
type StaticTokenProvider string

// Token returns the wrapped credential.
func (p StaticTokenProvider) Token() (string, error) {
	if p == "" {
		return "", ErrEmptyToken
	}
	return string(p), nil
}
