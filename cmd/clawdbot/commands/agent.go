package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/agent"
	"github.com/clawdbot/clawdbot/internal/gateway"
	"github.com/clawdbot/clawdbot/internal/sessions"
)

// newAgentCmd creates the `clawdbot agent` command: one non-interactive
// turn against the main session, for scripting and cron-style invocation
// from outside the gateway process.
func newAgentCmd() *cobra.Command {
	var sessionSuffix string

	cmd := &cobra.Command{
		Use:   "agent [message...]",
		Short: "Run one agent turn and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			runner, _, err := gateway.NewStandaloneRunner(cfg)
			if err != nil {
				return err
			}

			sessionKey := sessions.MainKey(gateway.DefaultAgentID)
			if sessionSuffix != "" {
				sessionKey = sessions.Key(gateway.DefaultAgentID, sessionSuffix)
			}

			result, err := runner.Run(context.Background(), agent.RunRequest{
				SessionKey: sessionKey,
				Message:    strings.Join(args, " "),
			})
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}

			fmt.Println(result.Response)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionSuffix, "session", "", "run against a named isolated session instead of main")
	return cmd
}
