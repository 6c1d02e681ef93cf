package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/urfave/cli/v3"

	"fermata/internal/agent"
	"fermata/internal/formatter"
	"fermata/internal/gateway"
	"fermata/internal/preload"
	"fermata/internal/shared"
)

// AgentRun starts the agent in the foreground: playback gateway, sync
// scheduler, connectivity watcher, and quota monitor. It blocks until the
// process is interrupted or a SHUTDOWN control message arrives.
func (r *Runner) AgentRun(ctx context.Context, cmd *cli.Command) error {
	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	preloader := preload.NewPreloader(s.media, r.config.GatewayURL(), r.config.Gateway.PreloadSlots, r.logger)

	a, err := agent.New(r.config, s.db, s.client, s.media, preloader, s.engine, r.logger)
	if err != nil {
		return err
	}

	r.writePlain("Starting agent on %s (data in %s)\n", r.config.GatewayAddr(), r.config.ResolvedDataDir())
	if err := a.Run(ctx); err != nil {
		return err
	}

	return r.writePlain("✓ Agent stopped\n")
}

// AgentStatus fetches a running agent's status over its gateway.
func (r *Runner) AgentStatus(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var st gateway.Status
	if err := r.gatewayCall(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return err
	}

	out, err := formatter.AgentStatus(st, format, formatter.Decorated(r.output))
	if err != nil {
		return err
	}
	return r.writePlain("%s", out)
}

// AgentUpdate asks a running agent to apply a pending server update.
func (r *Runner) AgentUpdate(ctx context.Context, cmd *cli.Command) error {
	result, err := r.controlPost(ctx, gateway.ControlSkipWaiting)
	if err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("%w: update not accepted by the agent", shared.ErrInvalidInput)
	}

	return r.writePlain("✓ Update accepted, applying once playback goes quiet\n")
}

// AgentStop asks a running agent to shut down.
func (r *Runner) AgentStop(ctx context.Context, cmd *cli.Command) error {
	result, err := r.controlPost(ctx, gateway.ControlShutdown)
	if err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("%w: stop not accepted by the agent", shared.ErrInvalidInput)
	}

	return r.writePlain("✓ Agent stopping\n")
}

// controlPost sends one control message to a running agent's gateway.
func (r *Runner) controlPost(ctx context.Context, kind string) (*gateway.ControlResult, error) {
	body, err := json.Marshal(gateway.ControlMessage{Kind: kind})
	if err != nil {
		return nil, fmt.Errorf("failed to encode control message: %w", err)
	}

	var result gateway.ControlResult
	if err := r.gatewayCall(ctx, http.MethodPost, "/control", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// gatewayCall performs one JSON request against the local gateway and
// decodes the envelope's data into out. A connection failure means no agent
// is listening on the configured address.
func (r *Runner) gatewayCall(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, r.config.GatewayURL()+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: no gateway at %s: %v", shared.ErrAgentNotRunning, r.config.GatewayAddr(), err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: malformed gateway response: %v", shared.ErrNetwork, err)
	}
	if !envelope.Success {
		return fmt.Errorf("%w: %s", shared.ErrNetwork, envelope.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: malformed gateway payload: %v", shared.ErrNetwork, err)
	}
	return nil
}
