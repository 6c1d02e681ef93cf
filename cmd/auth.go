package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"fermata/internal/services"
	"fermata/internal/shared"
	"fermata/internal/tokenstore"
)

// AuthLogin exchanges credentials for a session token and stores it.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	username := cmd.StringArg("username")
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	password := cmd.String("password")
	if password == "" {
		password = os.Getenv("FERMATA_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("%w: pass --password or set FERMATA_PASSWORD", shared.ErrMissingArgument)
	}

	httpClient := r.httpClient
	if httpClient == http.DefaultClient {
		httpClient = &http.Client{Timeout: r.config.UpstreamTimeout()}
	}

	// login is the one anonymous call; the provider only exists after it
	client := services.NewServerClient(r.config.Upstream.URL, httpClient, nil)

	r.logger.Info("logging in", "upstream", r.config.Upstream.URL, "username", username)
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	store := tokenstore.NewStore(r.config.TokenPath())
	if err := store.Save(&tokenstore.Session{Username: username, Token: token}); err != nil {
		return err
	}

	r.logger.Info("session stored", "path", store.Path())
	return r.writePlain("✓ Logged in as %s\n", username)
}

// AuthLogout drops the stored session. The agent degrades to guest mode on
// its next token read.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	store := tokenstore.NewStore(r.config.TokenPath())
	if err := store.Clear(); err != nil {
		return err
	}

	r.logger.Info("session cleared")
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus shows the stored session and whether its token has expired.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	store := tokenstore.NewStore(r.config.TokenPath())
	session, err := store.Read()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := struct {
			LoggedIn bool      `json:"logged_in"`
			Username string    `json:"username,omitempty"`
			Expired  bool      `json:"expired,omitempty"`
			Expiry   time.Time `json:"expiry,omitempty"`
		}{}
		if session != nil {
			out.LoggedIn = true
			out.Username = session.Username
			out.Expired = session.Expired()
			if session.Token != nil {
				out.Expiry = session.Token.Expiry
			}
		}
		return r.writeJSON(out, true)
	}

	if session == nil {
		return r.writePlain("✗ Not logged in (guest mode)\n")
	}

	r.writePlain("✓ Logged in as %s\n", session.Username)
	if session.Token != nil && !session.Token.Expiry.IsZero() {
		r.writePlain("Token expiry: %s\n", session.Token.Expiry.Local().Format(time.RFC1123))
	}
	if session.Expired() {
		r.writePlain("✗ Token expired, run 'fermata auth login %s' again\n", session.Username)
	}
	return nil
}
