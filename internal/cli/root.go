package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
)

// version is overridden at build time with -ldflags "-X github.com/example/sentinel/internal/cli.version=...".
var version = "dev"

// Execute builds the root command tree and runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	loader := &config.Loader{ConfigPath: config.DefaultConfigPath, EnvPath: config.DefaultEnvFile}
	rootOpts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "sentinel",
		Short:         "Multi-capability security analysis for code, documents and repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetVersionTemplate("sentinel version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&rootOpts.ConfigPath, "config", config.DefaultConfigPath, "Path to sentinel.config.yml (optional)")
	rootCmd.PersistentFlags().StringVar(&rootOpts.EnvPath, "env-file", config.DefaultEnvFile, "Path to a .env file (optional)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if rootOpts.ConfigPath != "" {
			loader.ConfigPath = rootOpts.ConfigPath
		}
		if rootOpts.EnvPath != "" {
			loader.EnvPath = rootOpts.EnvPath
		}
	}

	rootCmd.AddCommand(
		newInitCmd(loader),
		newServeCmd(loader),
		newAnalyzeCmd(loader),
		newHistoryCmd(loader),
		newTestAlertCmd(loader),
		newReportCmd(),
		newDoctorCmd(loader),
	)

	return rootCmd
}

type rootOptions struct {
	ConfigPath string
	EnvPath    string
}
