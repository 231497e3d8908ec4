package cli

import (
	"fmt"
	"os"

	"github.com/harun/luna/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file with every default filled in.
Secrets can stay empty in the file and come from LUNA_GENERATION_API_KEY
and LUNA_TELEGRAM_BOT_TOKEN (or a .env file) instead.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile).WithEnvFile("")
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	if len(cfg.Bot.Router.TargetRooms) == 0 {
		fmt.Fprintln(out, "bot.router.target_rooms is empty, so Luna answers in every room. List room IDs there to restrict it.")
	}
	fmt.Fprintln(out, "Set generation.api_key and telegram.bot_token, then start Luna with: luna serve")

	return nil
}
