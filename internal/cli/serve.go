package cli

import (
	"fmt"

	"github.com/harun/luna/internal/daemon"
	"github.com/harun/luna/internal/logger"
	"github.com/spf13/cobra"
)

var serveConsole bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Run the Luna daemon in the foreground",
	Long: `Run the Luna daemon in the foreground until SIGINT or SIGTERM.
The daemon answers messages from Telegram and, with --console, from stdin.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveConsole, "console", false, "chat on stdin/stdout instead of Telegram")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveConsole {
		cfg.Console.Enabled = true
		cfg.Telegram.Enabled = false
		// Keep stdout for the conversation.
		cfg.Logging.Console = false
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if pid, err := daemon.ReadPID(daemon.PIDFilePath(cfg.DataDir)); err == nil && daemon.ProcessAlive(pid) {
		return fmt.Errorf("daemon is already running (pid %d)", pid)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.WithVersion(GetVersion()))
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		_ = d.Stop()
		return err
	}

	d.Wait()
	return nil
}
