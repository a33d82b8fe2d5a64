package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Output writes human or JSON output for one command invocation.
type Output struct {
	JSON  bool
	Plain bool

	stdout io.Writer
	stderr io.Writer

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
	bold   *color.Color
}

// NewOutput creates an Output. Colors are off when plain is set.
func NewOutput(stdout, stderr io.Writer, jsonOut, plain bool) *Output {
	o := &Output{
		JSON:   jsonOut,
		Plain:  plain,
		stdout: stdout,
		stderr: stderr,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		gray:   color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{o.green, o.yellow, o.red, o.gray, o.bold} {
		if plain {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return o
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (o *Output) Green(s string) string {
	return o.green.Sprint(s)
}

func (o *Output) Yellow(s string) string {
	return o.yellow.Sprint(s)
}

func (o *Output) Red(s string) string {
	return o.red.Sprint(s)
}

func (o *Output) Gray(s string) string {
	return o.gray.Sprint(s)
}

func (o *Output) Bold(s string) string {
	return o.bold.Sprint(s)
}

func (o *Output) Print(msg string) {
	if o.JSON {
		return
	}
	fmt.Fprintln(o.stdout, msg)
}

func (o *Output) Success(msg string) {
	if o.JSON {
		return
	}
	fmt.Fprintln(o.stdout, o.Green("✓ "+msg))
}

func (o *Output) Warn(msg string) {
	if o.JSON {
		return
	}
	fmt.Fprintln(o.stderr, o.Yellow("! "+msg))
}

// Error is printed in every mode
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.stderr, o.Red("✗ "+msg))
}

func (o *Output) EmitJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
