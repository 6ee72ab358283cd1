package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/server"
)

func newServeCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API and the live monitor websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, loader, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := events.NewHub(events.DefaultHistorySize)
			defer hub.Close()

			a, err := newApp(ctx, cfg, hub)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			log.Info().
				Str("model", cfg.LLM.Model).
				Bool("audit", cfg.Audit).
				Bool("tracing", cfg.Tracing).
				Str("fetchMode", cfg.FetchMode).
				Msg("sentinel starting")

			srv := server.New(cfg.ListenAddr, server.Deps{
				Pipeline:     a.orchestrator,
				PDF:          a.pdf,
				Repositories: a.repos,
				Audit:        a.audit,
				Notifier:     a.notifier,
				Hub:          hub,
				Metrics:      a.metrics,
				Gatherer:     a.registry,
				Tracing:      cfg.Tracing,
			})
			return srv.Run(ctx)
		},
	}

	bindRuntimeFlags(cmd, flags)
	bindListenFlag(cmd, flags)

	return cmd
}
