// Package session holds the selected client shared by every view.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/utils"
)

// Session is one operator's view state. The CLI persists it to a JSON file
// between invocations; the API keeps it in a Registry.
type Session struct {
	ID         uuid.UUID `json:"id"`
	Key        *int      `json:"selected,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	mu   sync.Mutex
	path string
}

// New constructs an empty in-memory session.
func New() *Session {
	now := time.Now()
	return &Session{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Validate reports whether id addresses a record of ds.
func Validate(id int, ds *dataset.Dataset) bool {
	return ds.Validate(id)
}

// Select stores id after checking it against ds. An invalid id leaves the
// previous selection untouched.
func (s *Session) Select(ds *dataset.Dataset, id int) error {
	if err := ds.CheckKey(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Key = &id
	s.ExternalID = ds.ExternalID(id)
	s.UpdatedAt = time.Now()
	return nil
}

// SelectExternal selects the record carrying the business identifier ext.
func (s *Session) SelectExternal(ds *dataset.Dataset, ext string) (int, error) {
	key, ok := ds.KeyForExternalID(ext)
	if !ok {
		return 0, &dataset.InvalidSelectionError{Key: -1, ExternalID: ext, Min: ds.MinKey(), Max: ds.MaxKey()}
	}
	return key, s.Select(ds, key)
}

// Selected returns the stored key without validating it.
func (s *Session) Selected() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Key == nil {
		return 0, false
	}
	return *s.Key, true
}

// Selection returns the stored key and its business identifier as one
// consistent pair.
func (s *Session) Selection() (key int, externalID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Key == nil {
		return 0, "", false
	}
	return *s.Key, s.ExternalID, true
}

// Resolve returns the selected key if it is still valid for ds.
func (s *Session) Resolve(ds *dataset.Dataset) (int, error) {
	id, ok := s.Selected()
	if !ok {
		return 0, &dataset.InvalidSelectionError{Absent: true}
	}
	if err := ds.CheckKey(id); err != nil {
		return 0, err
	}
	return id, nil
}

// Clear forgets the selection.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Key = nil
	s.ExternalID = ""
	s.UpdatedAt = time.Now()
}

// Load reads the session file at path; a missing file yields a fresh session.
func Load(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s := New()
			s.path = path
			return s, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.path = path
	return &s, nil
}

// Path returns the file the session is persisted to.
func (s *Session) Path() string { return s.path }

// Save writes the session file atomically.
func (s *Session) Save() error {
	if s.path == "" {
		return fmt.Errorf("session has no file path")
	}
	if err := utils.EnsureDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	s.mu.Lock()
	b, err := utils.PrettyJSON(s)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(s.path, b)
}
