package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `clawdbot health` command, used by container
// healthchecks and monitoring.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report gateway health",
		Long:  `Reports whether the gateway's workspace and config are reachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				fmt.Printf(`{"status":"error","error":%q}`+"\n", err.Error())
				return nil
			}
			fmt.Printf(`{"status":"ok","workspace":%q,"stateDir":%q}`+"\n", cfg.Agent.Workspace, cfg.StateDir())
			return nil
		},
	}
}
