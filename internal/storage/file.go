package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"snippet-sandbox/internal/policy"
)

// FileStore persists the trust/block policy sets as a JSON document.
// The whole document is rewritten on every mutation; writes go through a
// temp file and rename so a crash never leaves a half-written state.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted state. A missing file is not an error: the
// service starts with empty sets.
func (s *FileStore) Load() (policy.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info().Str("path", s.path).Msg("no policy state file, starting empty")
			return policy.State{}, nil
		}
		return policy.State{}, fmt.Errorf("reading policy state: %w", err)
	}

	var st policy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return policy.State{}, fmt.Errorf("parsing policy state: %w", err)
	}
	return st, nil
}

// Save rewrites the full state durably.
func (s *FileStore) Save(st policy.State) error {
	if st.TrustedUsers == nil {
		st.TrustedUsers = []int64{}
	}
	if st.BlockedUsers == nil {
		st.BlockedUsers = []int64{}
	}

	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding policy state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".policy-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing policy state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing policy state file: %w", err)
	}
	return nil
}
