package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/ingest"
)

func newInitCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var skipGitCheck bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Validate the configuration and prepare the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, loader, flags)
			if err != nil {
				return err
			}

			if err := ensureOutputDir(cfg.DataDir); err != nil {
				return err
			}

			if !skipGitCheck && cfg.FetchMode == config.FetchModeClone {
				if err := gitRunner().EnsureBinary(); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Environment looks good. Data will be stored in %s\n", cfg.DataDir)
			if cfg.LLM.APIKey == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Warning: OPENROUTER_API_KEY is not set; analysis capabilities will fail.")
			}
			if !cfg.Slack.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "Note: Slack is not configured; escalations will only be logged.")
			}
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().BoolVar(&skipGitCheck, "skip-git-check", false, "Allow init to pass even if git is missing in clone fetch mode")

	return cmd
}

// gitRunner is swapped in tests.
var gitRunner = ingest.NewGitRunner
