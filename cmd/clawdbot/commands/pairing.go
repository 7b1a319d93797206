package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/pairing"
)

// newPairingCmd creates the `clawdbot pairing` command group, used to
// approve a pending pairing code from the operator's side.
func newPairingCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pairing",
		Short: "Manage pairing codes for unauthorized senders",
	}
	root.AddCommand(newPairingApproveCmd())
	return root
}

func newPairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <provider> <code>",
		Short: "Approve a pending pairing code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			store := pairing.NewStore(cfg.StateDir(), nil)
			entry, ok := store.Approve(args[0], args[1], "cli")
			if !ok {
				return fmt.Errorf("pairing: no pending code %q for provider %q", args[1], args[0])
			}

			fmt.Printf("Approved %s/%s\n", entry.Provider, entry.Principal)
			return nil
		},
	}
}
