package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pyxis-run/pyxis/internal/sessionctx"
)

// Store persists one JSON document per (user, session) notebook. It lives
// under the host data directory, outside every sandbox-visible path.
type Store struct {
	dir string
}

// NewStore creates a notebook store under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("notebook: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads the notebook for the identity. The second return is false
// when none has been persisted yet.
func (s *Store) Load(id sessionctx.Identity) (*Notebook, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("notebook: read %s: %w", id, err)
	}

	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, false, fmt.Errorf("notebook: parse %s: %w", id, err)
	}
	return &nb, true, nil
}

// Save writes the notebook atomically.
func (s *Store) Save(nb *Notebook) error {
	data, err := json.MarshalIndent(nb, "", "  ")
	if err != nil {
		return fmt.Errorf("notebook: marshal: %w", err)
	}

	path := s.path(sessionctx.Identity{UserID: nb.UserID, SessionID: nb.SessionID})
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notebook: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("notebook: commit: %w", err)
	}
	return nil
}

// Delete removes the persisted notebook, if any.
func (s *Store) Delete(id sessionctx.Identity) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("notebook: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id sessionctx.Identity) string {
	return filepath.Join(s.dir, safeKey(id.Key())+".json")
}

// safeKey converts a session key to a safe filename.
func safeKey(key string) string {
	key = strings.ReplaceAll(key, "\x00", "")
	key = strings.ReplaceAll(key, "..", "")
	key = strings.ReplaceAll(key, "/", "")
	key = strings.ReplaceAll(key, "\\", "")
	return strings.ReplaceAll(key, ":", "_")
}
