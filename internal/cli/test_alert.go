package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/model"
	"github.com/example/sentinel/internal/notify"
)

func newTestAlertCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var risk, artifactType string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "test-alert",
		Short: "Send a sample security alert to the configured Slack destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, loader, flags)
			if err != nil {
				return err
			}
			if !cfg.Slack.Enabled() {
				return errors.New("slack is not configured: set SLACK_BOT_TOKEN and SLACK_CHANNEL_ID or SLACK_WEBHOOK_URL")
			}

			alert := notify.SampleAlert()
			if cmd.Flags().Changed("risk") {
				alert.Level = model.RiskLevel(strings.ToUpper(strings.TrimSpace(risk)))
			}
			if cmd.Flags().Changed("confidence") {
				alert.Confidence = confidence
			}
			if cmd.Flags().Changed("artifact-type") {
				alert.ArtifactType = strings.ToUpper(artifactType)
				alert.DerivedFrom = alert.ArtifactType
			}

			if !newNotifier(cfg.Slack).Notify(cmd.Context(), alert) {
				return errors.New("alert was not delivered; see the log for details")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Alert sent. Check the Slack channel.")
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().StringVar(&risk, "risk", "HIGH", "Risk level shown in the alert")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.82, "Confidence shown in the alert (0-1)")
	cmd.Flags().StringVar(&artifactType, "artifact-type", "PDF_DOCUMENT", "Artifact type shown in the alert")

	return cmd
}
