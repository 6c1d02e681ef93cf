package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"fermata/internal/cache"
	"fermata/internal/quota"
	"fermata/internal/services"
	"fermata/internal/shared"
	"fermata/internal/tasks"
	"fermata/internal/tokenstore"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the runner's logger, used when the TUI redirects logs to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, agentCommand, cacheCommand, syncCommand, quotaCommand, importCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// stack is the set of collaborators most commands share: the catalog
// database, the session store, the upstream client, the media cache, and
// the task engine over all of them.
type stack struct {
	db      *sql.DB
	store   *tokenstore.Store
	tokens  *tokenstore.Provider
	client  services.Client
	media   *cache.Engine
	monitor *quota.Monitor
	engine  tasks.Engine
}

// openStack opens the data directory and wires the shared collaborators.
// The returned closer releases the database.
func (r *Runner) openStack() (*stack, func(), error) {
	cfg := r.config

	if err := os.MkdirAll(cfg.BlobDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create data directory: %v", shared.ErrStorage, err)
	}

	db, err := shared.NewDatabase(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := tokenstore.NewStore(cfg.TokenPath())
	tokens := tokenstore.NewProvider(store, r.logger)

	httpClient := r.httpClient
	if httpClient == http.DefaultClient {
		// the default client carries no timeout; apply the configured one
		httpClient = &http.Client{Timeout: cfg.UpstreamTimeout()}
	}
	client := services.NewServerClient(cfg.Upstream.URL, httpClient, tokens)

	media, err := cache.NewEngine(db, cfg.BlobDir(), client, tokens, r.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	monitor := quota.NewMonitor(cfg.BlobDir(), cfg.CacheCapBytes(), media.Usage, r.logger)
	media.SetMonitor(monitor)

	engine := tasks.NewOfflineEngine(db, client, media, tasks.EngineOpts{ChunkSize: cfg.SyncChunkSize()}, r.logger)

	s := &stack{
		db:      db,
		store:   store,
		tokens:  tokens,
		client:  client,
		media:   media,
		monitor: monitor,
		engine:  engine,
	}
	return s, func() { db.Close() }, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
