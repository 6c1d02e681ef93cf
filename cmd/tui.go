package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"fermata/internal/shared"
	"fermata/internal/ui"
)

// TUI launches the interactive cache dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering; the
	// stack is built after so every component logs there too
	fileLogger, logFile, err := shared.NewFileLogger(filepath.Join(r.config.ResolvedDataDir(), "fermata-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(fileLogger)

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	model := ui.NewModel(ctx, s.db, s.media, s.monitor, s.engine)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
