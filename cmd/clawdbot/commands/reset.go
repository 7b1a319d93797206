package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/gateway"
	"github.com/clawdbot/clawdbot/internal/sessions"
)

// newResetCmd creates the `clawdbot reset` command: the CLI-side equivalent
// of sending "reset" to the main session.
func newResetCmd() *cobra.Command {
	var sessionSuffix string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a session, allocating a fresh transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			_, store, err := gateway.NewStandaloneRunner(cfg)
			if err != nil {
				return err
			}

			sessionKey := sessions.MainKey(gateway.DefaultAgentID)
			if sessionSuffix != "" {
				sessionKey = sessions.Key(gateway.DefaultAgentID, sessionSuffix)
			}

			sess := store.Reset(sessionKey)
			fmt.Printf("Reset %s -> new session id %s\n", sessionKey, sess.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionSuffix, "session", "", "reset a named isolated session instead of main")
	return cmd
}
