package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TokenStore persists the identity token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

type state struct {
	Token     string    `toml:"token"`
	UpdatedAt time.Time `toml:"updatedAt"`
}

// FileStore keeps the token in a small TOML file readable only by its owner.
// Clearing the token writes an empty value; the file is never removed.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

// Load returns the stored token, or an empty token when the file does not exist yet.
func (f *FileStore) Load() (string, error) {
	var st state
	if _, err := toml.DecodeFile(f.path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session file %s: %w", f.path, err)
	}
	return st.Token, nil
}

func (f *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	st := state{Token: token, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := toml.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}
