package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/app"
)

func newServeCommand(e *env) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the backend and serve the dashboard until interrupted",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				e.cfg.Dashboard.Enabled = true
				e.cfg.Dashboard.Port = port
			}

			application, err := app.New(e.cfg)
			if err != nil {
				return err
			}

			ctx := app.SignalContext()
			if err := application.Start(ctx); err != nil {
				application.Stop()
				return err
			}

			application.Wait()

			if err := application.Stop(); err != nil {
				log.Error().Err(err).Msg("Error during shutdown")
				return err
			}
			log.Info().Msg("Shutdown complete")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "dashboard port, enables the dashboard")
	return cmd
}
