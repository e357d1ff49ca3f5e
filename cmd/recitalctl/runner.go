package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/iliyamo/recital-program/internal/catalog"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/search"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrUnknownShow     = errors.New("unknown show")
)

// Runner carries the dependencies of every command.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var (
		out []byte
		err error
	)
	if pretty {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	out = append(out, '\n')
	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) load(cmd *cli.Command) (*catalog.Catalog, error) {
	loc, err := time.LoadLocation(cmd.String("tz"))
	if err != nil {
		return nil, fmt.Errorf("--tz %q: %w", cmd.String("tz"), err)
	}
	path := cmd.String("data")
	r.logger.Debug("loading dataset", "path", path, "tz", loc)
	return catalog.LoadFile(path, loc)
}

// Encode validates a JSON dataset and writes its base64 form.
func (r *Runner) Encode(_ context.Context, cmd *cli.Command) error {
	doc, err := os.ReadFile(cmd.String("input"))
	if err != nil {
		return err
	}
	c, err := catalog.Parse(doc, time.UTC)
	if err != nil {
		return err
	}
	raw, err := catalog.Encode(c.Dataset())
	if err != nil {
		return err
	}
	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, raw, 0o644); err != nil {
			return err
		}
		r.logger.Info("dataset written", "path", out, "shows", c.Len())
		return nil
	}
	return r.writePlain("%s\n", raw)
}

// Decode prints the dataset as JSON.
func (r *Runner) Decode(_ context.Context, cmd *cli.Command) error {
	c, err := r.load(cmd)
	if err != nil {
		return err
	}
	return r.writeJSON(c.Dataset(), cmd.Bool("pretty"))
}

// Shows lists show keys and labels in dataset order.
func (r *Runner) Shows(_ context.Context, cmd *cli.Command) error {
	c, err := r.load(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		type row struct {
			Key   model.ShowKey `json:"key"`
			Label string        `json:"label"`
			Acts  int           `json:"acts"`
		}
		rows := make([]row, 0, c.Len())
		for _, s := range c.Shows() {
			rows = append(rows, row{Key: s.Key, Label: s.Label, Acts: len(s.Acts)})
		}
		return r.writeJSON(rows, cmd.Bool("pretty"))
	}
	for _, s := range c.Shows() {
		if err := r.writePlain("%s  %s  (%d acts)\n", s.Key, s.Label, len(s.Acts)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) index(cmd *cli.Command) (*search.Index, string, error) {
	key := cmd.StringArg("show")
	if key == "" {
		return nil, "", fmt.Errorf("%w: show key", ErrMissingArgument)
	}
	c, err := r.load(cmd)
	if err != nil {
		return nil, "", err
	}
	show, ok := c.Show(model.ShowKey(key))
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownShow, key)
	}
	return search.NewIndex(show), cmd.StringArg("query"), nil
}

// SearchPerformers prints the performer view of one show.
func (r *Runner) SearchPerformers(_ context.Context, cmd *cli.Command) error {
	idx, q, err := r.index(cmd)
	if err != nil {
		return err
	}
	matches := idx.Performers(q)
	if cmd.Bool("json") {
		return r.writeJSON(matches, cmd.Bool("pretty"))
	}
	for _, m := range matches {
		refs := make([]string, 0, len(m.Acts))
		for _, a := range m.Acts {
			refs = append(refs, fmt.Sprintf("#%d %s", a.Number, a.Title))
		}
		if err := r.writePlain("%s: %s\n", m.Name, strings.Join(refs, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// SearchActs prints the act view of one show.
func (r *Runner) SearchActs(_ context.Context, cmd *cli.Command) error {
	idx, q, err := r.index(cmd)
	if err != nil {
		return err
	}
	acts := idx.Acts(q)
	if cmd.Bool("json") {
		return r.writeJSON(acts, cmd.Bool("pretty"))
	}
	for _, a := range acts {
		if err := r.writePlain("#%d %s  [%s]\n", a.Number, a.Title, strings.Join(a.Performers, ", ")); err != nil {
			return err
		}
	}
	return nil
}
