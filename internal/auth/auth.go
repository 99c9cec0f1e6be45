// Package auth supplies bearer tokens to the favorites client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Common errors.
var (
	ErrNoToken = errors.New("no authentication token")
)

// TokenSource provides the current user's bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, e.g. from a command-line flag.
type Static string

// Token returns the static token, or ErrNoToken if it is empty.
func (s Static) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// First returns the first token any source yields.
func First(sources ...TokenSource) TokenSource {
	return chain(sources)
}

type chain []TokenSource

func (c chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Clear clears every source that can be cleared.
func (c chain) Clear() error {
	var errs []error
	for _, src := range c {
		if cl, ok := src.(interface{ Clear() error }); ok {
			errs = append(errs, cl.Clear())
		}
	}
	return errors.Join(errs...)
}

// tokenFile is the on-disk format of a saved session.
type tokenFile struct {
	Token   string    `yaml:"token"`
	SavedAt time.Time `yaml:"saved_at"`
}

// FileStore keeps the session token in a YAML file under the data dir.
type FileStore struct {
	path string
}

// NewFileStore creates a token store at dir/token.yaml.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "token.yaml")}
}

// Path returns the token file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save persists token, replacing any previous session.
func (s *FileStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	content, err := yaml.Marshal(tokenFile{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.path, content, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Token returns the saved token, or ErrNoToken if none was saved.
func (s *FileStore) Token(ctx context.Context) (string, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	var tf tokenFile
	if err := yaml.Unmarshal(content, &tf); err != nil {
		return "", fmt.Errorf("failed to parse token file: %w", err)
	}
	if tf.Token == "" {
		return "", ErrNoToken
	}
	return tf.Token, nil
}

// Clear removes the saved session.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Expired reports whether token is a JWT whose exp claim is not after now.
// The signature is not verified; opaque tokens never expire locally.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
