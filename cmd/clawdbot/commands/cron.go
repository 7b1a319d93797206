package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/agent"
	"github.com/clawdbot/clawdbot/internal/cron"
	"github.com/clawdbot/clawdbot/internal/gateway"
	"github.com/clawdbot/clawdbot/internal/sessions"
)

// cliDispatcher is a minimal cron.Dispatcher for `clawdbot cron run`: it
// drives the Agent Runner directly and prints results instead of routing
// them through a channel, since the CLI has no provider/chatID to deliver
// to outside of an actual gateway process.
type cliDispatcher struct {
	runner *agent.Runner
}

func (d *cliDispatcher) runMain(ctx context.Context, message string) error {
	result, err := d.runner.Run(ctx, agent.RunRequest{SessionKey: sessions.MainKey(gateway.DefaultAgentID), Message: message})
	if err != nil {
		return err
	}
	fmt.Println(result.Response)
	return nil
}

func (d *cliDispatcher) EnqueueMainSystemEvent(ctx context.Context, text string) error {
	return d.runMain(ctx, "[system event] "+text)
}

func (d *cliDispatcher) EnqueueMainAgentTurn(ctx context.Context, message string, _ cron.WakeMode) error {
	return d.runMain(ctx, message)
}

func (d *cliDispatcher) RunIsolated(ctx context.Context, payload cron.Payload, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	sessionKey := sessions.Key(gateway.DefaultAgentID, "cron:"+uuid.NewString())
	result, err := d.runner.Run(ctx, agent.RunRequest{SessionKey: sessionKey, Message: payload.Message, SuppressMemory: true})
	if err != nil {
		return "", err
	}
	fmt.Println(result.Response)
	return result.Response, nil
}

func (d *cliDispatcher) PostToMain(_ context.Context, text string) error {
	fmt.Println(text)
	return nil
}

// newCronCmd creates the `clawdbot cron` command group, a thin CLI over the
// scheduler's persisted job store.
func newCronCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	root.AddCommand(newCronListCmd(), newCronAddCmd(), newCronRemoveCmd(), newCronRunCmd())
	return root
}

// openCronScheduler builds a Scheduler over the persisted job store without
// starting its tick loop, for subcommands that only add/list/remove jobs.
func openCronScheduler(cmd *cobra.Command) (*cron.Scheduler, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	st := cron.NewStore(cfg.StateDir())
	return cron.NewScheduler(st, nil, nil, nil), nil
}

func newCronListCmd() *cobra.Command {
	var includeDisabled bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := openCronScheduler(cmd)
			if err != nil {
				return err
			}
			for _, j := range sched.List(includeDisabled) {
				next := "-"
				if j.State.NextRunAtMs > 0 {
					next = time.UnixMilli(j.State.NextRunAtMs).Format(time.RFC3339)
				}
				fmt.Printf("%s  %-20s  enabled=%-5v  next=%s  status=%s\n", j.ID, j.Name, j.Enabled, next, j.State.LastStatus)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&includeDisabled, "all", false, "include disabled jobs")
	return c
}

func newCronAddCmd() *cobra.Command {
	var name, every, message string
	c := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring job that posts a message to the main session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := openCronScheduler(cmd)
			if err != nil {
				return err
			}

			d, err := time.ParseDuration(every)
			if err != nil {
				return fmt.Errorf("cron: --every: %w", err)
			}

			job := cron.Job{
				Name:          name,
				Enabled:       true,
				Schedule:      cron.Schedule{Kind: cron.ScheduleEvery, EveryMs: d.Milliseconds()},
				SessionTarget: cron.SessionTargetMain,
				WakeMode:      cron.WakeNow,
				Payload:       cron.Payload{Kind: cron.PayloadAgentTurn, Message: message},
			}
			added, err := sched.Add(job)
			if err != nil {
				return fmt.Errorf("cron: add: %w", err)
			}
			fmt.Printf("Added job %s (%s)\n", added.ID, added.Name)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "job name")
	c.Flags().StringVar(&every, "every", "1h", "recurrence, e.g. 30m, 1h")
	c.Flags().StringVar(&message, "message", "", "message delivered to the agent on each fire")
	return c
}

func newCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := openCronScheduler(cmd)
			if err != nil {
				return err
			}
			if !sched.Remove(args[0]) {
				return fmt.Errorf("cron: no job %q", args[0])
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func newCronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a job immediately, bypassing its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			st := cron.NewStore(cfg.StateDir())

			runner, _, err := gateway.NewStandaloneRunner(cfg)
			if err != nil {
				return err
			}

			sched := cron.NewScheduler(st, &cliDispatcher{runner: runner}, nil, nil)
			if err := sched.Run(context.Background(), args[0], "manual"); err != nil {
				return err
			}
			sched.Stop()
			return nil
		},
	}
}
