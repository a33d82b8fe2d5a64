package cli

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/ledger"
	"github.com/dokzlo13/homepanel/internal/tables"
)

type historyOutput struct {
	Backend []api.HistoryEntry `json:"backend"`
	Local   []*ledger.Entry    `json:"local,omitempty"`
}

func newHistoryCommand(e *env) *cobra.Command {
	var (
		local bool
		limit int
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the backend action history",
		Long: `history shows the newest entries of the backend history. With --local the
actions this panel sent are listed too, from the local ledger, even when the
backend is unreachable.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return usageError{msg: "--limit must be positive"}
			}
			if since < 0 {
				return usageError{msg: "--since must not be negative"}
			}
			if since > 0 {
				local = true
			}

			svc, err := e.services()
			if err != nil {
				return err
			}
			defer svc.Close()

			var out historyOutput
			entries, fetchErr := svc.API.ListHistory(cmd.Context())
			if fetchErr != nil && !local {
				return fetchErr
			}
			if len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			out.Backend = entries
			if out.Backend == nil {
				out.Backend = []api.HistoryEntry{}
			}

			if local {
				if err := svc.OpenLedger(); err != nil {
					return err
				}
				if since > 0 {
					now := time.Now()
					out.Local, err = svc.Ledger.ByTimeRange(now.Add(-since), now, limit)
				} else {
					out.Local, err = svc.Ledger.Recent(limit)
				}
				if err != nil {
					return err
				}
				if out.Local == nil {
					out.Local = []*ledger.Entry{}
				}
			}

			if fetchErr != nil {
				log.Warn().Err(fetchErr).Msg("Backend history unavailable, showing local ledger only")
				e.out.Warn("backend history unavailable: " + describeError(fetchErr))
			}

			if e.out.JSON {
				return e.out.EmitJSON(out)
			}

			if fetchErr == nil {
				e.printTable(tables.History(out.Backend), "backend history")
			}
			if local {
				if fetchErr == nil {
					e.out.Print("")
				}
				e.out.Print(e.out.Bold("Local ledger"))
				e.printTable(tables.Ledger(out.Local), "local actions")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "also show the local action ledger")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().DurationVar(&since, "since", 0, "only local actions newer than this (e.g. 2h), implies --local")
	return cmd
}
