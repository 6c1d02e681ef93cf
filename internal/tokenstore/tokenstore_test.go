package tokenstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"fermata/internal/shared"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "session.db"))
}

func testSession(access string) *Session {
	return &Session{
		Username: "ellen",
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: "ref-1",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
	}
}

func TestStore(t *testing.T) {
	t.Run("Save And Read", func(t *testing.T) {
		store := testStore(t)

		if err := store.Save(testSession("tok-1")); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		session, err := store.Read()
		if err != nil {
			t.Fatalf("failed to read session: %v", err)
		}
		if session == nil {
			t.Fatal("expected a session")
		}
		if session.Username != "ellen" {
			t.Errorf("expected username ellen, got %s", session.Username)
		}
		if session.AccessToken() != "tok-1" {
			t.Errorf("expected token tok-1, got %s", session.AccessToken())
		}
		if session.Token.RefreshToken != "ref-1" {
			t.Errorf("expected refresh token ref-1, got %s", session.Token.RefreshToken)
		}
	})

	t.Run("Save Replaces", func(t *testing.T) {
		store := testStore(t)

		if err := store.Save(testSession("tok-1")); err != nil {
			t.Fatalf("failed to save first session: %v", err)
		}
		if err := store.Save(testSession("tok-2")); err != nil {
			t.Fatalf("failed to save second session: %v", err)
		}

		session, err := store.Read()
		if err != nil {
			t.Fatalf("failed to read session: %v", err)
		}
		if session.AccessToken() != "tok-2" {
			t.Errorf("expected tok-2, got %s", session.AccessToken())
		}
	})

	t.Run("Second Store Sees The Session", func(t *testing.T) {
		// the CLI and the agent each build their own Store over the file
		path := filepath.Join(t.TempDir(), "session.db")

		if err := NewStore(path).Save(testSession("tok-1")); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		session, err := NewStore(path).Read()
		if err != nil {
			t.Fatalf("failed to read session: %v", err)
		}
		if session.AccessToken() != "tok-1" {
			t.Errorf("expected tok-1, got %s", session.AccessToken())
		}
	})

	t.Run("Save Rejects Empty Token", func(t *testing.T) {
		store := testStore(t)

		if err := store.Save(&Session{Username: "ellen"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Read Missing Store", func(t *testing.T) {
		store := testStore(t)

		session, err := store.Read()
		if err != nil {
			t.Fatalf("expected no error for missing store, got %v", err)
		}
		if session != nil {
			t.Errorf("expected nil session, got %+v", session)
		}

		// reading must not create the file
		if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
			t.Error("read should not create the session file")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := testStore(t)

		// clearing an empty store is fine
		if err := store.Clear(); err != nil {
			t.Fatalf("clear on missing store should be a no-op: %v", err)
		}

		if err := store.Save(testSession("tok-1")); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("failed to clear session: %v", err)
		}

		session, err := store.Read()
		if err != nil {
			t.Fatalf("failed to read after clear: %v", err)
		}
		if session != nil {
			t.Errorf("expected nil session after clear, got %+v", session)
		}
	})

	t.Run("Corrupted File", func(t *testing.T) {
		store := testStore(t)
		if err := os.WriteFile(store.Path(), []byte("not a bolt file"), 0o600); err != nil {
			t.Fatalf("failed to write garbage: %v", err)
		}

		if _, err := store.Read(); !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage for corrupted file, got %v", err)
		}
	})
}

func TestSession(t *testing.T) {
	t.Run("AccessToken Nil Safety", func(t *testing.T) {
		var session *Session
		if session.AccessToken() != "" {
			t.Error("nil session should yield empty token")
		}

		session = &Session{}
		if session.AccessToken() != "" {
			t.Error("tokenless session should yield empty token")
		}
	})

	t.Run("Expired", func(t *testing.T) {
		session := testSession("tok")
		if session.Expired() {
			t.Error("future expiry should not be expired")
		}

		session.Token.Expiry = time.Now().Add(-time.Minute)
		if !session.Expired() {
			t.Error("past expiry should be expired")
		}

		session.Token.Expiry = time.Time{}
		if session.Expired() {
			t.Error("zero expiry should never expire")
		}
	})
}

func TestProvider(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("Returns Stored Token", func(t *testing.T) {
		store := testStore(t)
		if err := store.Save(testSession("tok-1")); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		provider := NewProvider(store, logger)
		token, err := provider.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != "tok-1" {
			t.Errorf("expected tok-1, got %s", token)
		}
	})

	t.Run("Missing Session Means Guest", func(t *testing.T) {
		provider := NewProvider(testStore(t), logger)
		token, err := provider.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != "" {
			t.Errorf("expected empty token, got %s", token)
		}
	})

	t.Run("Store Failure Degrades To Guest", func(t *testing.T) {
		store := testStore(t)
		if err := os.WriteFile(store.Path(), []byte("garbage"), 0o600); err != nil {
			t.Fatalf("failed to write garbage: %v", err)
		}

		provider := NewProvider(store, logger)
		token, err := provider.Token()
		if err != nil {
			t.Fatalf("store failure should not error the request, got %v", err)
		}
		if token != "" {
			t.Errorf("expected empty token, got %s", token)
		}
	})
}
