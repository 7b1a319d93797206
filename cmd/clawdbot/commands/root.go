// Package commands implements the clawdbot CLI's subcommand tree.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/config"
)

// NewRootCmd builds the `clawdbot` root command and its full subcommand tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "clawdbot",
		Short:   "Clawdbot: a personal assistant gateway",
		Version: version,
		Long: `Clawdbot runs one resident agent behind a set of chat channels
(Discord, Telegram, Slack, WhatsApp), a companion-app bridge, and a cron
scheduler, persisting conversation state to disk under its state
directory ($HOME/.clawd, or CLAWD_STATE_DIR when set).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", defaultConfigPath(), "path to clawd.json")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newChatCmd(),
		newAgentCmd(),
		newSessionsCmd(),
		newResetCmd(),
		newCronCmd(),
		newPairingCmd(),
		newHealthCmd(),
		newCompletionCmd(),
	)

	return root
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawd", "clawd.json")
}

// resolveConfig loads the config named by the root --config flag, shared by
// every leaf command that needs one.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}
