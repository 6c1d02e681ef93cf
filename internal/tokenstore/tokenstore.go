// package tokenstore persists the music server session shared by the CLI and agent
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/oauth2"

	"fermata/internal/shared"
)

var (
	bucketName = []byte("session")
	sessionKey = []byte("current")
)

// Session is the stored login state: who logged in and their server token.
type Session struct {
	Username string        `json:"username"`
	Token    *oauth2.Token `json:"token"`
}

// AccessToken returns the bearer token string, or empty when the session
// carries none.
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

// Expired reports whether the access token has an expiry in the past.
// Sessions without an expiry never report expired.
func (s *Session) Expired() bool {
	if s == nil || s.Token == nil || s.Token.Expiry.IsZero() {
		return false
	}
	return time.Now().After(s.Token.Expiry)
}

// Store reads and writes the session file.
//
// The CLI writes sessions while the agent is running, so the file is opened
// per operation and released immediately instead of being held for the
// process lifetime. bbolt's file lock makes concurrent openers wait.
type Store struct {
	path string
}

// NewStore creates a store over the session file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the session, replacing any previous one.
func (s *Store) Save(session *Session) error {
	if session == nil || session.AccessToken() == "" {
		return fmt.Errorf("%w: session has no access token", shared.ErrInvalidInput)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: failed to create session directory: %v", shared.ErrStorage, err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bucket.Put(sessionKey, data)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write session: %v", shared.ErrStorage, err)
	}

	return nil
}

// Read returns the stored session, or (nil, nil) when no session exists.
func (s *Store) Read() (*Session, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var data []byte
	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		if value := bucket.Get(sessionKey); value != nil {
			data = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read session: %v", shared.ErrStorage, err)
	}

	if data == nil {
		return nil, nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: malformed session: %v", shared.ErrStorage, err)
	}

	return &session, nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(sessionKey)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to clear session: %v", shared.ErrStorage, err)
	}

	return nil
}

func (s *Store) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open session store: %v", shared.ErrStorage, err)
	}
	return db, nil
}
