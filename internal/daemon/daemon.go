package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/luna/internal/config"
	"github.com/harun/luna/internal/logger"
	"github.com/harun/luna/internal/observability"
	"github.com/harun/luna/internal/telegram"
	"github.com/harun/luna/internal/tracing"
	"github.com/harun/luna/pkg/channels"
	"github.com/harun/luna/pkg/commandqueue"
	"github.com/harun/luna/pkg/generation"
	"github.com/harun/luna/pkg/orchestrator"
	"github.com/harun/luna/pkg/prompt"
	"github.com/harun/luna/pkg/session"
)

const drainTimeout = 5 * time.Second

// Daemon represents the Luna daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store          *session.Store
	reaper         *session.Reaper
	persona        *prompt.Persona
	personaWatcher *config.PersonaWatcher
	generator      orchestrator.Generator
	queue          *commandqueue.CommandQueue
	orchestrator   *orchestrator.Orchestrator

	// Channels
	channelRegistry *channels.Registry
	telegramBot     *telegram.Bot
	console         *channels.ConsoleChannel
	consoleIn       io.Reader
	consoleOut      io.Writer

	// Services
	metricsServer *MetricsServer

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	version        string
	shutdownTracer tracing.ShutdownFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithGenerator replaces the generation client built from config.
func WithGenerator(g orchestrator.Generator) Option {
	return func(d *Daemon) {
		d.generator = g
	}
}

// WithConsoleIO sets the streams used by the console channel.
func WithConsoleIO(in io.Reader, out io.Writer) Option {
	return func(d *Daemon) {
		d.consoleIn = in
		d.consoleOut = out
	}
}

// WithVersion sets the build version reported on traces.
func WithVersion(v string) Option {
	return func(d *Daemon) {
		d.version = v
	}
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config:     cfg,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		consoleIn:  os.Stdin,
		consoleOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(cfg.Tracing.ServiceName, d.version, cfg.Tracing.SampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.shutdownTracer = shutdown
			log.Info().Float64("sample_ratio", cfg.Tracing.SampleRatio).Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeChannels(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize channels: %w", err)
	}

	if cfg.Metrics.Enabled {
		d.metricsServer = NewMetricsServer(cfg.Metrics.Addr(), d, log.Component("metrics"))
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.shutdownTracer != nil {
		_ = d.shutdownTracer(context.Background())
		d.shutdownTracer = nil
	}
}

// initializeCoreModules builds memory, persona, generation, queue and
// orchestrator in dependency order.
func (d *Daemon) initializeCoreModules() error {
	if err := os.MkdirAll(d.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := filepath.Join(d.config.DataDir, "audit.jsonl")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger")
	} else {
		d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	if r := d.logger.Redactor(); r != nil {
		r.AddLiteral(d.config.Generation.APIKey)
		r.AddLiteral(d.config.Telegram.BotToken)
	}

	for _, err := range config.NewValidator().ValidateConfig(d.config) {
		d.logger.Warn().Err(err).Msg("Configuration warning")
	}

	d.store = session.NewStore(d.config.Memory)
	d.reaper = session.NewReaper(d.store, d.config.Memory)
	d.logger.Info().
		Int("max_turns", d.store.MaxTurns()).
		Dur("idle_timeout", d.config.Memory.IdleTimeout).
		Dur("sweep_interval", d.config.Memory.SweepInterval).
		Msg("Session store initialized")

	d.persona = prompt.NewPersona("")
	if path := d.config.Bot.PersonaFile; path != "" {
		watcher, err := config.NewPersonaWatcher(path, d.persona, 0)
		if err != nil {
			return fmt.Errorf("failed to create persona watcher: %w", err)
		}
		d.personaWatcher = watcher
	}

	if d.generator == nil {
		client, err := generation.New(d.config.Generation)
		if err != nil {
			return fmt.Errorf("failed to create generation client: %w", err)
		}
		if !client.Configured() {
			d.logger.Warn().Msg("Generation API key is not configured; questions will get the unconfigured reply")
		}
		d.generator = client
		d.logger.Info().
			Str("provider", client.Config().Provider).
			Str("model", client.Config().Model).
			Msg("Generation client initialized")
	}

	d.queue = commandqueue.New(d.config.Queue())
	d.queue.On("rejected", func(event commandqueue.Event) {
		observability.RecordConversationAudit(d.ctx, "dispatch_rejected", event.Lane, "rejected", event.Data)
	})
	d.logger.Info().Msg("Command queue initialized")

	d.channelRegistry = channels.NewRegistry(nil)
	d.orchestrator = orchestrator.New(
		d.config.Orchestrator(),
		d.store,
		d.persona,
		d.generator,
		d.channelRegistry,
		orchestrator.WithQueue(d.queue),
	)
	d.channelRegistry.SetDispatcher(d.orchestrator.Dispatch)
	d.logger.Info().Str("prefix", d.orchestrator.Router().Prefix()).Msg("Orchestrator initialized")

	return nil
}

func (d *Daemon) initializeChannels() error {
	if d.config.Telegram.Enabled {
		bot, err := telegram.New(&d.config.Telegram, d.logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		if err := d.channelRegistry.Register(bot); err != nil {
			return err
		}
		d.telegramBot = bot
		d.logger.Info().Interface("bot", bot.GetBotInfo()).Msg("Telegram channel registered")
	}

	if d.config.Console.Enabled {
		d.console = channels.NewConsoleChannel(d.consoleIn, d.consoleOut, d.config.Console.Participant, d.config.Bot.Name)
		if err := d.channelRegistry.Register(d.console); err != nil {
			return err
		}
	}

	d.logger.Info().Strs("channels", d.channelRegistry.Names()).Msg("Channels registered")
	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting Luna daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.reaper.Start(); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}
	logger.Info().Msg("Session reaper started")

	if d.personaWatcher != nil {
		if err := d.personaWatcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start persona watcher")
		}
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := d.channelRegistry.StartAll(d.ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	logger.Info().Strs("channels", d.channelRegistry.Names()).Msg("Channels started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully. Channels stop first so no new
// work arrives, then in-flight conversations get a chance to finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping Luna daemon")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelStop()

	if err := d.channelRegistry.StopAll(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop channels")
	}

	d.eventLoop.HandleShutdown()
	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	logger.Info().Msg("Command queue stopped")

	if d.reaper.IsRunning() {
		if err := d.reaper.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop reaper")
		}
	}

	if d.personaWatcher != nil {
		if err := d.personaWatcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop persona watcher")
		}
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(drainTimeout):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.shutdownTracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := d.shutdownTracer(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.shutdownTracer = nil
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.store.Len(),
		Channels: d.channelRegistry.Names(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT/SIGTERM, or until console input ends, then stops
// the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var consoleDone <-chan struct{}
	if d.console != nil {
		consoleDone = d.console.Done()
	}

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-consoleDone:
		d.logger.Info().Msg("Console input closed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the dispatch queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetStore returns the conversation store
func (d *Daemon) GetStore() *session.Store {
	return d.store
}

// GetOrchestrator returns the orchestrator
func (d *Daemon) GetOrchestrator() *orchestrator.Orchestrator {
	return d.orchestrator
}

// GetChannelRegistry returns the channel registry
func (d *Daemon) GetChannelRegistry() *channels.Registry {
	return d.channelRegistry
}

// GetPersona returns the active persona
func (d *Daemon) GetPersona() *prompt.Persona {
	return d.persona
}

// Status is a point-in-time daemon summary.
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	StartTime time.Time     `json:"start_time"`
	Sessions  int           `json:"sessions"`
	Channels  []string      `json:"channels"`
}
