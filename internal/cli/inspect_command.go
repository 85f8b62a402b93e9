package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"seqgen/internal/api"
	"seqgen/internal/jobstore"
	"seqgen/internal/layout"
	"seqgen/internal/validate"
)

const watchDebounce = 100 * time.Millisecond

type layoutInspector interface {
	InspectLayout(ctx context.Context, file *validate.File) (*layout.Node, error)
	RecommendGroups(ctx context.Context, file *validate.File) (*api.RecommendResponse, error)
	RenderLayout(ctx context.Context, file *validate.File) (*api.Figure, error)
}

// inspection holds the three layout lookups issued for one layout
// selection. Each one fails on its own.
type inspection struct {
	Tree      *layout.Node
	TreeErr   error
	Recs      *api.RecommendResponse
	RecsErr   error
	Figure    *api.Figure
	FigureErr error
}

func inspectAll(ctx context.Context, c layoutInspector, file *validate.File) inspection {
	var out inspection
	var g errgroup.Group
	g.Go(func() error {
		out.Tree, out.TreeErr = c.InspectLayout(ctx, file)
		return nil
	})
	g.Go(func() error {
		out.Recs, out.RecsErr = c.RecommendGroups(ctx, file)
		return nil
	})
	g.Go(func() error {
		out.Figure, out.FigureErr = c.RenderLayout(ctx, file)
		return nil
	})
	_ = g.Wait()
	return out
}

type inspectOptions struct {
	layout     string
	search     string
	showGroups bool
	showModels bool
	watch      bool
	figure     string
}

type inspectReport struct {
	Layout          string       `json:"layout" yaml:"layout"`
	ModelCount      int          `json:"modelCount" yaml:"modelCount"`
	VisibleCount    int          `json:"visibleCount" yaml:"visibleCount"`
	Tree            []layout.Row `json:"tree" yaml:"tree"`
	Recommendations int          `json:"recommendations" yaml:"recommendations"`
	Traces          int          `json:"traces" yaml:"traces"`
	Errors          []string     `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func newInspectCmd() *cobra.Command {
	opts := inspectOptions{showGroups: true, showModels: true}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the model tree of a layout",
		Long: `Inspect uploads a layout and prints its group/model tree, the number of
group suggestions and the number of chart traces. The three lookups run
concurrently and fail independently.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.layout, "layout", "", "layout XML file")
	f.StringVar(&opts.search, "search", "", "case-insensitive name filter")
	f.BoolVar(&opts.showGroups, "groups", true, "show groups")
	f.BoolVar(&opts.showModels, "models", true, "show models")
	f.BoolVar(&opts.watch, "watch", false, "re-inspect when the layout file changes")
	f.StringVar(&opts.figure, "figure", "", "save the layout chart JSON to this path")
	_ = cmd.MarkFlagRequired("layout")
	return cmd
}

var errLayoutRequired = errors.New("layout file is required")

func runInspect(cmd *cobra.Command, opts inspectOptions) error {
	a := getApp(cmd)
	if strings.TrimSpace(opts.layout) == "" {
		return errLayoutRequired
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	tree := layout.NewTree()
	tree.SetFilter(layout.Filter{SearchText: opts.search, ShowGroups: opts.showGroups, ShowModels: opts.showModels})

	once := func(ctx context.Context) error {
		file, err := validate.Stat(opts.layout)
		if err != nil {
			return err
		}
		if file == nil {
			return errLayoutRequired
		}
		tok := tree.Begin(file.Path)
		res := inspectAll(ctx, client, file)
		if res.TreeErr != nil {
			tree.Fail(tok, res.TreeErr)
		} else {
			tree.Apply(tok, res.Tree)
		}
		if opts.figure != "" && res.Figure != nil {
			if err := jobstore.WriteJSON(opts.figure, res.Figure); err != nil {
				res.FigureErr = fmt.Errorf("save figure: %w", err)
			}
		}
		for _, e := range []error{res.TreeErr, res.RecsErr, res.FigureErr} {
			if e != nil {
				a.logger.Warn("layout lookup failed", "error", e)
			}
		}
		if err := printInspection(cmd.OutOrStdout(), a, tree, res); err != nil {
			return err
		}
		return res.TreeErr
	}

	if !opts.watch {
		return once(cmd.Context())
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := once(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return watchFile(ctx, opts.layout, func() {
		if err := once(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		}
	})
}

func printInspection(w io.Writer, a *app, tree *layout.Tree, res inspection) error {
	rows := tree.Rows()
	report := inspectReport{
		Layout:       tree.Source(),
		ModelCount:   tree.ModelCount(),
		VisibleCount: len(rows),
		Tree:         rows,
	}
	if res.Recs != nil {
		report.Recommendations = res.Recs.Count
	}
	if res.Figure != nil {
		report.Traces = res.Figure.TraceCount()
	}
	for _, e := range []error{res.TreeErr, res.RecsErr, res.FigureErr} {
		if e != nil {
			report.Errors = append(report.Errors, e.Error())
		}
	}

	return emit(w, a, report, func() error {
		fmt.Fprintf(w, "%s: %d models\n", filepath.Base(report.Layout), report.ModelCount)
		if tree.Status() == layout.StatusReady && len(rows) == 0 {
			fmt.Fprintln(w, "  (nothing matches the filter)")
		}
		for _, line := range layout.FormatRows(rows) {
			fmt.Fprintln(w, "  "+line)
		}
		if res.Recs != nil {
			fmt.Fprintf(w, "suggestions: %d\n", report.Recommendations)
		}
		if res.Figure != nil {
			fmt.Fprintf(w, "chart traces: %d\n", report.Traces)
		}
		for _, e := range report.Errors {
			warnf(w, "%s", e)
		}
		return nil
	})
}

// watchFile calls fn after path changes, debounced, until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func watchFile(ctx context.Context, path string, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
	}
}
