package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fermata/internal/gateway"
	"fermata/internal/shared"
	tu "fermata/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config: nil,
			})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Logger: nil,
			})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Output: nil,
			})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				HTTPClient: nil,
			})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				ConfigPath: "/test/path/config.toml",
			})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			data := map[string]string{"key": "value"}
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("hello %s", "world")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})

	t.Run("openStack", func(t *testing.T) {
		t.Run("wires collaborators over a fresh data dir", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Storage.DataDir = t.TempDir()

			runner := NewRunner(RunnerOpts{
				Config: config,
				Output: &bytes.Buffer{},
			})

			s, cleanup, err := runner.openStack()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer cleanup()

			if s.db == nil || s.media == nil || s.engine == nil || s.monitor == nil || s.store == nil {
				t.Fatal("expected every collaborator to be wired")
			}
			if err := s.db.Ping(); err != nil {
				t.Errorf("expected a usable database, got %v", err)
			}
			tu.AssertDirExists(t, config.BlobDir())
		})

		t.Run("surfaces data directory failure", func(t *testing.T) {
			tmp := t.TempDir()
			blocker := filepath.Join(tmp, "data")
			if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
				t.Fatalf("failed to write blocker file: %v", err)
			}

			config := shared.DefaultConfig()
			// a file where the data dir should be makes MkdirAll fail
			config.Storage.DataDir = blocker

			runner := NewRunner(RunnerOpts{
				Config: config,
				Output: &bytes.Buffer{},
			})

			_, _, err := runner.openStack()
			if !errors.Is(err, shared.ErrStorage) {
				t.Fatalf("expected ErrStorage, got %v", err)
			}
		})
	})

	t.Run("gatewayCall", func(t *testing.T) {
		newResponse := func(body string) *http.Response {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}
		}

		t.Run("decodes the envelope data", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(newResponse(`{"success": true, "data": {"online": true}}`), nil)}
			runner := NewRunner(RunnerOpts{HTTPClient: client, Output: &bytes.Buffer{}})

			var st gateway.Status
			if err := runner.gatewayCall(context.Background(), http.MethodGet, "/status", nil, &st); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !st.Online {
				t.Error("expected the online flag decoded")
			}
		})

		t.Run("surfaces envelope errors", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(newResponse(`{"success": false, "error": "cache clear failed"}`), nil)}
			runner := NewRunner(RunnerOpts{HTTPClient: client, Output: &bytes.Buffer{}})

			err := runner.gatewayCall(context.Background(), http.MethodGet, "/status", nil, nil)
			if !errors.Is(err, shared.ErrNetwork) {
				t.Fatalf("expected ErrNetwork, got %v", err)
			}
			if !strings.Contains(err.Error(), "cache clear failed") {
				t.Errorf("expected the gateway error surfaced, got %v", err)
			}
		})

		t.Run("connection failure means no agent", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, fmt.Errorf("connection refused"))}
			runner := NewRunner(RunnerOpts{HTTPClient: client, Output: &bytes.Buffer{}})

			err := runner.gatewayCall(context.Background(), http.MethodGet, "/status", nil, nil)
			if !errors.Is(err, shared.ErrAgentNotRunning) {
				t.Fatalf("expected ErrAgentNotRunning, got %v", err)
			}
		})
	})
}
