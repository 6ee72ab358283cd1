package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/notify"
)

func newHistoryCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}
	var limit int
	var risk string
	var asJSON, withAlerts bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analyses from the audit database, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 1000 {
				return errors.New("--limit must be between 1 and 1000")
			}
			cfg, err := loadRuntime(cmd, loader, flags)
			if err != nil {
				return err
			}
			if !cfg.Audit {
				return errors.New("auditing is disabled; nothing to show")
			}

			store, err := audit.NewSQLiteStore(audit.SQLiteConfig{DataDir: cfg.DataDir})
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Query(cmd.Context(), audit.Filter{Limit: limit, Risk: risk})
			if err != nil {
				return err
			}

			alerts := map[string][]audit.Alert{}
			if withAlerts {
				for _, r := range records {
					a, err := store.Alerts(cmd.Context(), r.ID)
					if err != nil {
						return err
					}
					alerts[r.ID] = a
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if !withAlerts {
					return enc.Encode(records)
				}
				type entry struct {
					audit.Vulnerability
					Alerts []audit.Alert `json:"alerts"`
				}
				out := make([]entry, 0, len(records))
				for _, r := range records {
					out = append(out, entry{Vulnerability: r, Alerts: alerts[r.ID]})
				}
				return enc.Encode(out)
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analyses recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tARTIFACT\tRISK\tCONF\tSTATUS\tSCORE\tVOTES\tALERTS")
			for _, r := range records {
				alertCol := "-"
				if withAlerts {
					alertCol = fmt.Sprintf("%d", len(alerts[r.ID]))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%d\t%s\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"),
					r.Artifact,
					r.Risk,
					r.Confidence,
					r.Status,
					r.OverallScore,
					notify.ConsensusSummary(r.AgentVotes),
					alertCol,
				)
			}
			return tw.Flush()
		},
	}

	bindRuntimeFlags(cmd, flags)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records (1-1000)")
	cmd.Flags().StringVar(&risk, "risk", "", "Only show one risk level (LOW, MEDIUM, HIGH, CRITICAL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	cmd.Flags().BoolVar(&withAlerts, "alerts", false, "Include the alerts raised for each record")

	return cmd
}
