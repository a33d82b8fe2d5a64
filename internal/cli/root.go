// Package cli wires the homepanel command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/app"
	"github.com/dokzlo13/homepanel/internal/backend"
	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/control"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

// env is the state shared by every command of one invocation
type env struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	jsonOut    bool
	noColor    bool
	logLevel   string

	cfg *config.Config
	out *Output
}

// usageError marks bad arguments
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// Execute runs the command tree against os.Args and returns the exit code
func Execute() int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	return run(root, os.Stderr)
}

func run(root *cobra.Command, stderr io.Writer) int {
	if err := root.Execute(); err != nil {
		out := NewOutput(os.Stdout, stderr, false, !isTerminal(stderr))
		out.Error(describeError(err))
		var ue usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitFailure
	}
	return exitSuccess
}

// NewRootCommand builds the command tree writing to the given streams
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	e := &env{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "homepanel",
		Short: "Dashboard client for a home-automation backend",
		Long: `homepanel talks to a home-automation REST backend: it lists and edits rooms,
devices, groups, scenes and scene actions, switches things on and off, shows the
action history and keeps a live view of everything by polling.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: e.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", "config.yaml", "path to configuration file")
	flags.BoolVar(&e.jsonOut, "json", false, "emit machine-readable JSON")
	flags.BoolVar(&e.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&e.logLevel, "log-level", "", "override log level (debug, info, warn, error, disabled)")

	root.AddCommand(
		newServeCommand(e),
		newWatchCommand(e),
		newRoomsCommand(e),
		newDevicesCommand(e),
		newGroupsCommand(e),
		newScenesCommand(e),
		newActionsCommand(e),
		newHistoryCommand(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}
	e.cfg = cfg

	plain := e.noColor || os.Getenv("NO_COLOR") != "" || !isTerminal(e.stdout)
	e.out = NewOutput(e.stdout, e.stderr, e.jsonOut, plain)

	setupLogging(e.stderr, cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors && isTerminal(e.stderr))
	return nil
}

// services opens the backend side only; the ledger is opened by the commands that write or read it
func (e *env) services() (*app.Services, error) {
	return app.NewClientServices(e.cfg)
}

// apply runs one mutation through a cli-tagged controller and reports the outcome
func (e *env) apply(ctx context.Context, svc *app.Services, m control.Mutation) error {
	if err := svc.OpenLedger(); err != nil {
		log.Warn().Err(err).Str("path", e.cfg.Database.Path).Msg("Local ledger unavailable")
		e.out.Warn("local ledger unavailable, action will not be recorded: " + err.Error())
	}

	out, err := svc.NewController("cli").Apply(ctx, m)
	if e.out.JSON {
		if jerr := e.out.EmitJSON(out); jerr != nil {
			return jerr
		}
		return err
	}
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s %s", m.Action, m.Resource)
	if m.Target != "" {
		msg += " " + m.Target
	}
	e.out.Success(msg + e.out.Gray(fmt.Sprintf(" (%s)", out.Took.Round(time.Millisecond))))
	return nil
}

// exactArgs is cobra.ExactArgs reporting a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{msg: err.Error()}
		}
		return nil
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError{msg: fmt.Sprintf("invalid id %q", arg)}
	}
	return id, nil
}

// describeError renders backend failures with their status
func describeError(err error) string {
	apiErr, ok := backend.AsError(err)
	if !ok {
		return err.Error()
	}
	msg := strings.TrimSpace(apiErr.Message)
	switch apiErr.Kind {
	case backend.KindStatus:
		if msg == "" {
			return fmt.Sprintf("backend answered %d %s", apiErr.Status, apiErr.StatusText)
		}
		return fmt.Sprintf("backend answered %d %s: %s", apiErr.Status, apiErr.StatusText, msg)
	case backend.KindTransport:
		return "backend unreachable: " + msg
	default:
		return msg
	}
}
