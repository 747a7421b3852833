package prefs

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lessonpulse/notify/internal/domain"
)

// FileStore persists preferences as JSON on local disk. It satisfies
// domain.PreferenceStore for the server binary; embedding hosts supply their
// own implementation (device storage, backend sync).
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed preference store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted preference set. A missing file yields defaults.
func (f *FileStore) Load() (domain.Preferences, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DefaultPreferences(), nil
		}
		return domain.Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}

	var prefs domain.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return domain.Preferences{}, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	return prefs, nil
}

// Save writes the preference set to disk
func (f *FileStore) Save(prefs domain.Preferences) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// MemoryStore is an in-process preference store; the zero value starts from
// defaults. Used by tests and by hosts that persist elsewhere.
type MemoryStore struct {
	prefs    *domain.Preferences
	FailSave bool
}

// NewMemoryStore creates a memory-backed store seeded with prefs
func NewMemoryStore(prefs domain.Preferences) *MemoryStore {
	return &MemoryStore{prefs: &prefs}
}

// Load returns the held preference set
func (m *MemoryStore) Load() (domain.Preferences, error) {
	if m.prefs == nil {
		return domain.DefaultPreferences(), nil
	}
	return *m.prefs, nil
}

// Save replaces the held preference set
func (m *MemoryStore) Save(prefs domain.Preferences) error {
	if m.FailSave {
		return fmt.Errorf("save disabled")
	}
	m.prefs = &prefs
	return nil
}
