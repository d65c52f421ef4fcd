// Package session persists the signed-in auditor between runs: the API
// token, the user record returned by the service, the client settings and
// SKU condition definitions that ride along with it, and the bookkeeping
// for the last catalog refresh.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joostmulder/AuditPro/internal/model"
)

const (
	// FileName is the name of the session file inside the data directory.
	FileName = "session.toml"

	// CatalogFileName holds the catalog refresh bookkeeping. It is kept out
	// of the session file so a sync pass never rewrites FileName.
	CatalogFileName = "catalog.toml"
)

var (
	// ErrNoSession is returned by Load when nobody is signed in.
	ErrNoSession = errors.New("not signed in")

	// ErrNoToken is returned by Begin when the token is blank.
	ErrNoToken = errors.New("session token is required")
)

var validate = validator.New()

// Session is the signed-in auditor.
type Session struct {
	Token           string     `toml:"token"`
	User            model.User `toml:"user"`
	CatalogVersion  int        `toml:"-"`
	CatalogSyncedAt time.Time  `toml:"-"`

	path string
}

// catalogState is the content of CatalogFileName.
type catalogState struct {
	UserID   int64     `toml:"user_id"`
	Version  int       `toml:"version"`
	SyncedAt time.Time `toml:"synced_at"`
}

// Path returns the session file location for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Begin validates user and writes a new session to dir, replacing any
// earlier one. Catalog bookkeeping starts empty so the first sync after a
// login always refreshes the catalog.
func Begin(dir, token string, user model.User) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if err := ValidateUser(user); err != nil {
		return nil, err
	}

	if err := removeFile(filepath.Join(dir, CatalogFileName), "catalog state"); err != nil {
		return nil, err
	}
	s := &Session{Token: token, User: user, path: Path(dir)}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the session stored in dir.
func Load(dir string) (*Session, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if s.Token == "" {
		return nil, ErrNoSession
	}
	s.path = path
	if err := s.loadCatalogState(); err != nil {
		return nil, err
	}
	return &s, nil
}

// loadCatalogState fills the catalog fields. State recorded for another
// user is ignored.
func (s *Session) loadCatalogState() error {
	path := filepath.Join(filepath.Dir(s.path), CatalogFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog state: %w", err)
	}
	var st catalogState
	if _, err := toml.Decode(string(data), &st); err != nil {
		return fmt.Errorf("failed to parse catalog state %s: %w", path, err)
	}
	if st.UserID == s.User.ID {
		s.CatalogVersion = st.Version
		s.CatalogSyncedAt = st.SyncedAt.UTC()
	}
	return nil
}

// End removes the session stored in dir. Ending when nobody is signed in is
// not an error.
func End(dir string) error {
	if err := removeFile(filepath.Join(dir, CatalogFileName), "catalog state"); err != nil {
		return err
	}
	return removeFile(Path(dir), "session")
}

func removeFile(path, what string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", what, err)
	}
	return nil
}

// Save writes the session back to its file. Catalog bookkeeping is not
// part of it; see MarkCatalogSynced.
func (s *Session) Save() error {
	if s.path == "" {
		return fmt.Errorf("failed to save session: no file location")
	}
	return writeTOML(s.path, s, "session")
}

// writeTOML replaces path atomically with v encoded as TOML.
func writeTOML(path string, v any, what string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", what, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s file: %w", what, err)
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode %s: %w", what, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", what, err)
	}
	return nil
}

// Settings returns the client settings of the signed-in user.
func (s *Session) Settings() Settings {
	return NewSettings(s.User.Settings)
}

// SKUCondition returns the definition of a condition id.
func (s *Session) SKUCondition(id int) (model.SKUCondition, bool) {
	for _, c := range s.User.SKUConditions {
		if c.ID == id {
			return c, true
		}
	}
	return model.SKUCondition{}, false
}

// MarkCatalogSynced records a successful catalog refresh made under the
// given schema version. It writes CatalogFileName and leaves the session
// file untouched.
func (s *Session) MarkCatalogSynced(version int, at time.Time) error {
	if s.path == "" {
		return fmt.Errorf("failed to save catalog state: no file location")
	}
	st := catalogState{UserID: s.User.ID, Version: version, SyncedAt: at.UTC()}
	path := filepath.Join(filepath.Dir(s.path), CatalogFileName)
	if err := writeTOML(path, st, "catalog state"); err != nil {
		return err
	}
	s.CatalogVersion = version
	s.CatalogSyncedAt = st.SyncedAt
	return nil
}

// CatalogSyncRequired reports whether the catalog has to be refreshed before
// an audit can start: it was never refreshed, or the refresh happened under a
// different schema version.
func (s *Session) CatalogSyncRequired(version int) bool {
	return s.CatalogSyncedAt.IsZero() || s.CatalogVersion != version
}

// ValidateUser checks the fields the client relies on.
func ValidateUser(u model.User) error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	return nil
}
