package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/logging"
)

func ensureOutputDir(path string) error {
	if path == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	return os.MkdirAll(path, 0o755)
}

// loadRuntime resolves and validates the configuration, then initialises logging to stderr so that
// stdout stays reserved for NDJSON events and command output.
func loadRuntime(cmd *cobra.Command, loader *config.Loader, flags *runtimeFlagSet) (config.RuntimeConfig, error) {
	cfg, err := loader.Load(flags.toOverrides(cmd))
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "sentinel",
		Output:    cmd.ErrOrStderr(),
	})
	return cfg, nil
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := ensureOutputDir(dir); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
