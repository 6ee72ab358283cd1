package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/logging"
)

type doctorCheck struct {
	Name   string
	Status string // "✓", "✗" or "⊘"
	Detail string
	Error  error
}

func newDoctorCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var timeout int
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration, credentials, storage and LLM endpoint reachability",
		Long: `The doctor subcommand performs comprehensive validation of the sentinel environment:
- Go runtime version
- Configuration validity
- LLM API key and endpoint reachability
- Slack alert delivery settings
- Data directory and audit database
- git binary (required for the clone fetch mode)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loader.Load(flags.toOverrides(cmd))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logging.Init(logging.Config{Format: cfg.LogFormat, Level: "warn", Output: cmd.ErrOrStderr()})

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			defer cancel()

			client := &http.Client{Timeout: 10 * time.Second}
			checks := runDoctorChecks(ctx, &cfg, client, offline)
			printDoctorReport(cmd, checks)

			// Return error if any check failed
			for _, check := range checks {
				if check.Error != nil {
					return fmt.Errorf("doctor checks failed")
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\n✓ All checks passed. System is ready.")
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().IntVar(&timeout, "timeout", 30, "Timeout in seconds for network checks")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the LLM endpoint reachability check")

	return cmd
}

func runDoctorChecks(ctx context.Context, cfg *config.RuntimeConfig, client *http.Client, offline bool) []doctorCheck {
	checks := []doctorCheck{
		checkGoVersion(),
		checkConfiguration(cfg),
		checkAPIKey(cfg.LLM.APIKey),
	}

	if offline {
		checks = append(checks, doctorCheck{Name: "LLM Endpoint", Status: "⊘", Detail: "Skipped (offline)"})
	} else {
		checks = append(checks, checkLLMEndpoint(ctx, client, cfg.LLM))
	}

	checks = append(checks,
		checkSlack(cfg.Slack),
		checkGitBinary(cfg.FetchMode),
	)

	if cfg.Audit {
		dirCheck := checkDataDirectory(cfg.DataDir)
		checks = append(checks, dirCheck)
		if dirCheck.Error == nil {
			checks = append(checks, checkAuditDatabase(ctx, cfg.DataDir))
		}
	} else {
		checks = append(checks, doctorCheck{Name: "Audit Database", Status: "⊘", Detail: "Skipped (auditing disabled)"})
	}

	return checks
}

func checkGoVersion() doctorCheck {
	version := runtime.Version()
	return doctorCheck{
		Name:   "Go Runtime",
		Status: "✓",
		Detail: fmt.Sprintf("Version %s", version),
	}
}

func checkConfiguration(cfg *config.RuntimeConfig) doctorCheck {
	err := cfg.Validate()
	if err != nil {
		return doctorCheck{
			Name:   "Configuration",
			Status: "✗",
			Detail: "Invalid configuration",
			Error:  err,
		}
	}

	return doctorCheck{
		Name:   "Configuration",
		Status: "✓",
		Detail: fmt.Sprintf("model=%s, fetch=%s", cfg.LLM.Model, cfg.FetchMode),
	}
}

func checkAPIKey(key string) doctorCheck {
	if strings.TrimSpace(key) == "" {
		return doctorCheck{
			Name:   "LLM API Key",
			Status: "✗",
			Detail: "OPENROUTER_API_KEY is not set",
			Error:  fmt.Errorf("missing LLM API key"),
		}
	}
	return doctorCheck{Name: "LLM API Key", Status: "✓", Detail: "Set (" + maskSecret(key) + ")"}
}

func checkLLMEndpoint(ctx context.Context, client *http.Client, cfg config.LLMConfig) doctorCheck {
	check := doctorCheck{Name: "LLM Endpoint"}
	url := strings.TrimRight(cfg.BaseURL, "/") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		check.Status = "✗"
		check.Detail = "Invalid URL"
		check.Error = err
		return check
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		check.Status = "✗"
		check.Detail = "Unreachable"
		check.Error = err
		return check
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		check.Status = "✗"
		check.Detail = fmt.Sprintf("HTTP %d (key rejected)", resp.StatusCode)
		check.Error = fmt.Errorf("LLM endpoint rejected the API key")
	case resp.StatusCode >= 500:
		check.Status = "✗"
		check.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		check.Error = fmt.Errorf("LLM endpoint returned %s", resp.Status)
	default:
		check.Status = "✓"
		check.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return check
}

func checkSlack(cfg config.SlackConfig) doctorCheck {
	switch {
	case cfg.BotToken != "" && cfg.Channel != "":
		return doctorCheck{Name: "Slack", Status: "✓", Detail: "Bot token, channel " + cfg.Channel}
	case cfg.WebhookURL != "":
		return doctorCheck{Name: "Slack", Status: "✓", Detail: "Incoming webhook"}
	default:
		return doctorCheck{Name: "Slack", Status: "⊘", Detail: "Not configured (alerts are only logged)"}
	}
}

func checkGitBinary(fetchMode string) doctorCheck {
	if err := gitRunner().EnsureBinary(); err != nil {
		if fetchMode != config.FetchModeClone {
			return doctorCheck{Name: "git Binary", Status: "⊘", Detail: "Not found (only needed for fetch mode clone)"}
		}
		return doctorCheck{
			Name:   "git Binary",
			Status: "✗",
			Detail: "Not found in PATH",
			Error:  err,
		}
	}

	versionDetail := "Available"
	if version, err := getGitVersion(); err == nil {
		versionDetail = version
	}
	return doctorCheck{Name: "git Binary", Status: "✓", Detail: versionDetail}
}

func getGitVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "git", "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(output))
	if version == "" {
		return "unknown", nil
	}
	return version, nil
}

func checkDataDirectory(dataDir string) doctorCheck {
	err := ensureOutputDir(dataDir)
	if err != nil {
		return doctorCheck{
			Name:   "Data Directory",
			Status: "✗",
			Detail: dataDir,
			Error:  err,
		}
	}

	return doctorCheck{
		Name:   "Data Directory",
		Status: "✓",
		Detail: dataDir,
	}
}

func checkAuditDatabase(ctx context.Context, dataDir string) doctorCheck {
	store, err := audit.NewSQLiteStore(audit.SQLiteConfig{DataDir: dataDir})
	if err != nil {
		return doctorCheck{Name: "Audit Database", Status: "✗", Detail: "Cannot open", Error: err}
	}
	defer store.Close()

	if _, err := store.Query(ctx, audit.Filter{Limit: 1}); err != nil {
		return doctorCheck{Name: "Audit Database", Status: "✗", Detail: store.Path(), Error: err}
	}
	return doctorCheck{Name: "Audit Database", Status: "✓", Detail: store.Path()}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func printDoctorReport(cmd *cobra.Command, checks []doctorCheck) {
	fmt.Fprintln(cmd.OutOrStdout(), "Running environment diagnostics...")

	for _, check := range checks {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-30s %s\n", check.Status, check.Name+":", check.Detail)
		if check.Error != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "   Error: %v\n", check.Error)
		}
	}
}
