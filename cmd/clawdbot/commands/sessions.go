package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/gateway"
)

// newSessionsCmd creates the `clawdbot sessions` command: lists every
// known session key with its last-updated time and cumulative usage.
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			_, store, err := gateway.NewStandaloneRunner(cfg)
			if err != nil {
				return err
			}

			all := store.List()
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				sess := all[k]
				updated := time.UnixMilli(sess.UpdatedAtMs).Format(time.RFC3339)
				fmt.Printf("%-40s  updated=%s  tokens=%d  model=%s/%s\n", k, updated, sess.Cumulative.Total, sess.LastModel.Provider, sess.LastModel.ModelID)
			}
			return nil
		},
	}
}
