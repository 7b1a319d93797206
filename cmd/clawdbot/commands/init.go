package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/bootstrap"
	"github.com/clawdbot/clawdbot/internal/config"
)

// newInitCmd creates the `clawdbot init` command: a short interactive form
// that writes a starter clawd.json and materializes the workspace.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and materialize the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			var workspace, provider, model string
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Workspace directory").
						Placeholder("~/.clawd/workspace").
						Value(&workspace),
					huh.NewSelect[string]().
						Title("Model provider").
						Options(
							huh.NewOption("openai", "openai"),
							huh.NewOption("gemini", "gemini"),
						).
						Value(&provider),
					huh.NewInput().
						Title("Model id").
						Placeholder("gpt-4o-mini").
						Value(&model),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			if workspace == "" {
				workspace = "~/.clawd/workspace"
			}

			cfg := config.Config{}
			cfg.Agent.Workspace = workspace
			if provider != "" && model != "" {
				cfg.Agent.Model = config.ModelConfig{Provider: provider, Model: model}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			raw, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return fmt.Errorf("init: writing %s: %w", path, err)
			}

			expanded := bootstrap.ExpandWorkspace(workspace)
			if _, err := bootstrap.EnsureWorkspace(expanded); err != nil {
				return fmt.Errorf("init: workspace: %w", err)
			}

			fmt.Printf("Wrote %s and materialized workspace at %s\n", path, expanded)
			return nil
		},
	}
}
