package prefs

import (
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Preference keys. Values are plain strings so the store stays a dumb
// key/value surface; typed accessors live on Store.
const (
	KeyVoiceEnabled  = "voice_enabled"
	KeyWelcomeShown  = "voice_welcome_shown"
	KeyMicPermission = "mic_permission"
)

// Store persists user preference flags in a local badger database. It
// survives process restarts and entries never expire.
//
// Invariant: voice_enabled must never remain "true" after a
// PermissionDenied recognition error. The listener owns enforcement and
// force-clears it through SetVoiceEnabled(false).
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the preference database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a non-persistent store, for tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the stored value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("preference read failed", "key", key, "err", err)
		}
		return "", false
	}
	return value, true
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// VoiceEnabled reports whether the user previously enabled voice.
// Absent keys read as false.
func (s *Store) VoiceEnabled() bool {
	return s.getBool(KeyVoiceEnabled)
}

// SetVoiceEnabled records the voice toggle.
func (s *Store) SetVoiceEnabled(enabled bool) error {
	return s.setBool(KeyVoiceEnabled, enabled)
}

// WelcomeShown reports whether the first-run welcome was dismissed.
func (s *Store) WelcomeShown() bool {
	return s.getBool(KeyWelcomeShown)
}

// SetWelcomeShown records the welcome dismissal.
func (s *Store) SetWelcomeShown(shown bool) error {
	return s.setBool(KeyWelcomeShown, shown)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getBool(key string) bool {
	value, ok := s.Get(key)
	return ok && value == "true"
}

func (s *Store) setBool(key string, value bool) error {
	if value {
		return s.Set(key, "true")
	}
	return s.Set(key, "false")
}
