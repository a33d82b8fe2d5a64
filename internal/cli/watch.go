package cli

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/app"
	"github.com/dokzlo13/homepanel/internal/poller"
	"github.com/dokzlo13/homepanel/internal/tui"
)

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [RESOURCE...]",
		Short: "Live view of rooms, devices, groups, scenes, scene actions and history",
		Long: `watch polls the backend and shows every resource in a tabbed terminal view.
Without arguments the resources from polling.resources are shown, or all of them
when that list is empty. With --json, or when stdout is not a terminal, each
snapshot is written as one JSON line instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources := make([]api.Resource, 0, len(args))
			for _, arg := range args {
				res, err := api.ParseResource(arg)
				if err != nil {
					return usageError{msg: err.Error()}
				}
				resources = append(resources, res)
			}

			svc, err := e.services()
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(resources) == 0 {
				resources = svc.Resources()
			}

			ctx, cancel := context.WithCancel(app.SignalContext())
			defer cancel()
			if err := svc.StartPolling(ctx, resources...); err != nil {
				return err
			}

			selected := svc.Sources.Select(resources...)
			if e.out.JSON || !isTerminal(e.stdout) {
				return stream(ctx, e.stdout, selected)
			}
			return tui.Run(ctx, selected)
		},
	}
}

// stream writes every snapshot as one JSON line until ctx is done
func stream(ctx context.Context, w io.Writer, sources []poller.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan poller.View, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		ch, stop := src.Watch()
		defer stop()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range ch {
				select {
				case merged <- v:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-merged:
			if !ok {
				return nil
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
	}
}
