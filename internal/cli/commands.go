package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/app"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/tables"
)

type runFunc func(ctx context.Context, svc *app.Services, args []string) error

// withServices opens the service container for the duration of one command
func (e *env) withServices(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := e.services()
		if err != nil {
			return err
		}
		defer svc.Close()
		return fn(cmd.Context(), svc, args)
	}
}

// idCommand builds `<use> ID` commands that apply a single mutation
func (e *env) idCommand(use, short string, build func(svc *app.Services, id int64) control.Mutation) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  exactArgs(1),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return e.apply(ctx, svc, build(svc, id))
		}),
	}
}

// listCommand builds `list` over one fetch
func listCommand[T any](e *env, noun string, fetch func(ctx context.Context, svc *app.Services) ([]T, tables.Table, error)) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + noun,
		Args:    exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			items, tbl, err := fetch(ctx, svc)
			if err != nil {
				return err
			}
			if e.out.JSON {
				if items == nil {
					items = []T{}
				}
				return e.out.EmitJSON(items)
			}
			e.printTable(tbl, noun)
			return nil
		}),
	}
}

func (e *env) printTable(tbl tables.Table, noun string) {
	if tbl.Empty() {
		e.out.Print(e.out.Gray("no " + noun))
		return
	}
	e.out.Print(tables.Render(tbl, e.out.Plain))
}

// lookup fetches the names other tables refer to. Failures only cost the names.
func lookup(ctx context.Context, svc *app.Services) tables.Lookup {
	var l tables.Lookup
	l.Rooms, _ = svc.API.ListRooms(ctx)
	l.Scenes, _ = svc.API.ListScenes(ctx)
	return l
}
