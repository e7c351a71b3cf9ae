// Package sensitivity tracks per-session data-sensitivity state and derives
// the network posture a session's sandboxes must run under.
//
// The state is a ratchet: registering a dataset can only raise a session's
// sensitivity, never lower it. Once a session holds anything above PUBLIC its
// required network mode is "none" for the rest of its lifetime, short of an
// explicit administrative Reset. State files live in a directory the sandbox
// never sees, so code running inside a sandbox cannot erase its own taint
// marker.
package sensitivity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// NetworkMode is the posture a session's sandboxes must use.
type NetworkMode string

const (
	NetworkFull NetworkMode = "full"
	NetworkNone NetworkMode = "none"
)

// State is the persisted sensitivity record for one session.
type State struct {
	Sensitivity Level           `json:"sensitivity"`
	Datasets    map[string]bool `json:"datasets"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Tracker owns sensitivity state for all sessions. It is safe for
// concurrent use.
type Tracker struct {
	dir   string
	cache map[string]*State
	mu    sync.RWMutex
}

// NewTracker creates a tracker persisting under dir. The directory must be
// outside any path mounted into sandboxes.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sensitivity: create state dir: %w", err)
	}
	return &Tracker{
		dir:   dir,
		cache: make(map[string]*State),
	}, nil
}

// AddDataset registers a dataset at the given level for the session,
// raising the session's sensitivity to at least that level. The call is
// idempotent per dataset name. The updated state is written to disk before
// returning; a persist failure fails the whole call, since a lost
// escalation would let a tainted session keep network access.
func (t *Tracker) AddDataset(sessionKey, name string, level Level) error {
	if name == "" {
		return fmt.Errorf("sensitivity: dataset name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(sessionKey)
	state.Datasets[name] = true
	state.Sensitivity = maxLevel(state.Sensitivity, level)
	state.UpdatedAt = time.Now().UTC()

	if err := t.persistLocked(sessionKey, state); err != nil {
		// Drop the cached entry so a failed write cannot leave memory
		// ahead of disk.
		delete(t.cache, sessionKey)
		return err
	}
	t.cache[sessionKey] = state
	return nil
}

// Sensitivity returns the session's current level. Sessions never seen
// before are PUBLIC.
func (t *Tracker) Sensitivity(sessionKey string) Level {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(sessionKey).Sensitivity
}

// HasPrivateData reports whether anything above PUBLIC has entered the
// session.
func (t *Tracker) HasPrivateData(sessionKey string) bool {
	return t.Sensitivity(sessionKey) > Public
}

// RequiredNetworkMode returns the posture sandboxes for this session must
// run under: NetworkNone whenever the session holds private data.
func (t *Tracker) RequiredNetworkMode(sessionKey string) NetworkMode {
	if t.HasPrivateData(sessionKey) {
		return NetworkNone
	}
	return NetworkFull
}

// Datasets returns the sorted dataset names registered for the session.
func (t *Tracker) Datasets(sessionKey string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.loadLocked(sessionKey)
	names := make([]string, 0, len(state.Datasets))
	for name := range state.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears a session's state. This is the administrative escape hatch;
// nothing in the sandbox or notebook path calls it.
func (t *Tracker) Reset(sessionKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.cache, sessionKey)
	if err := os.Remove(t.statePath(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sensitivity: reset %s: %w", sessionKey, err)
	}
	return nil
}

// loadLocked returns the cached state for the session, reading it from disk
// on first touch. Callers must hold t.mu.
func (t *Tracker) loadLocked(sessionKey string) *State {
	if state, ok := t.cache[sessionKey]; ok {
		return state
	}

	state := &State{Datasets: make(map[string]bool)}
	if data, err := os.ReadFile(t.statePath(sessionKey)); err == nil {
		var onDisk State
		if err := json.Unmarshal(data, &onDisk); err == nil {
			state = &onDisk
			if state.Datasets == nil {
				state.Datasets = make(map[string]bool)
			}
		}
	}
	t.cache[sessionKey] = state
	return state
}

func (t *Tracker) persistLocked(sessionKey string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("sensitivity: marshal state: %w", err)
	}

	path := t.statePath(sessionKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("sensitivity: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sensitivity: commit state: %w", err)
	}
	return nil
}

func (t *Tracker) statePath(sessionKey string) string {
	return filepath.Join(t.dir, safeKey(sessionKey)+".json")
}

// safeKey converts a session key to a safe filename.
func safeKey(key string) string {
	key = strings.ReplaceAll(key, "\x00", "")
	key = strings.ReplaceAll(key, "..", "")
	key = strings.ReplaceAll(key, "/", "")
	key = strings.ReplaceAll(key, "\\", "")
	return strings.ReplaceAll(key, ":", "_")
}
