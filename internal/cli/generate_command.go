package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"seqgen/internal/api"
	"seqgen/internal/jobstore"
	"seqgen/internal/preview"
	"seqgen/internal/recommend"
	"seqgen/internal/submit"
	"seqgen/internal/validate"
)

type generateOptions struct {
	layout       string
	audio        string
	networks     string
	manualBPM    string
	exportFormat string
	recommend    bool
	selectNames  []string
	noPreview    bool
	previewPNG   string
	download     bool
	dir          string
}

type generateReport struct {
	Result      *api.JobResult `json:"result" yaml:"result"`
	DownloadURL string         `json:"downloadUrl" yaml:"downloadUrl"`
	Selection   []string       `json:"selection,omitempty" yaml:"selection,omitempty"`
	Preview     *previewReport `json:"preview,omitempty" yaml:"preview,omitempty"`
	SavedTo     string         `json:"savedTo,omitempty" yaml:"savedTo,omitempty"`
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit a layout and audio file and show the generated sequence",
		Long: `Generate validates the inputs, submits them to the server, prints the
result and a beat/section preview, and optionally downloads the sequence.

With --recommend, group suggestions for the layout are fetched first and all
of them are sent as the selection; --select narrows that to named groups.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.layout, "layout", "", "layout XML file")
	f.StringVar(&opts.audio, "audio", "", "audio file")
	f.StringVar(&opts.networks, "networks", "", "optional networks XML file")
	f.StringVar(&opts.manualBPM, "manual-bpm", "", "override detected tempo")
	f.StringVar(&opts.exportFormat, "export-format", "", "export format (default from config)")
	f.BoolVar(&opts.recommend, "recommend", false, "fetch group suggestions and send them as the selection")
	f.StringSliceVar(&opts.selectNames, "select", nil, "send only these suggestions (implies --recommend)")
	f.BoolVar(&opts.noPreview, "no-preview", false, "skip the beat/section preview")
	f.StringVar(&opts.previewPNG, "preview-png", "", "also render the preview to this PNG file")
	f.BoolVar(&opts.download, "download", false, "download the generated sequence")
	f.StringVar(&opts.dir, "dir", "", "download directory (default from config)")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	ctx := cmd.Context()
	a := getApp(cmd)
	out := cmd.OutOrStdout()

	files, err := statUploads(opts.layout, opts.audio, opts.networks)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	var sel submit.SelectionSource
	var selector *recommend.Selector
	if (opts.recommend || len(opts.selectNames) > 0) && files.Layout != nil {
		// Suggestions upload the layout, so the files must pass first.
		if err := validate.Validate(files, a.cfg.MaxBytes(), validate.DefaultAllowedMIME()); err != nil {
			return err
		}
		selector = recommend.NewSelector()
		if err := fetchSelection(ctx, client, files.Layout, selector); err != nil {
			a.logger.Warn("recommendations unavailable", "error", err)
			if !a.structured() {
				warnf(cmd.ErrOrStderr(), "%v; submitting without a selection", err)
			}
		}
		if len(opts.selectNames) > 0 && selector.State() == recommend.StateLoaded {
			if err := selector.Only(opts.selectNames); err != nil {
				return err
			}
		}
		sel = selector
	}

	lock, err := jobstore.AcquireSubmitLock(a.cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctrl := submit.NewController(submit.Options{MaxBytes: a.cfg.MaxBytes(), Logger: a.logger})
	format := strings.TrimSpace(opts.exportFormat)
	if format == "" {
		format = a.cfg.ExportFormat
	}
	res, err := ctrl.Submit(ctx, client, api.GenerateRequest{
		Files:        files,
		ManualBPM:    strings.TrimSpace(opts.manualBPM),
		ExportFormat: format,
	}, sel)
	if err != nil {
		return err
	}

	report := generateReport{Result: res, DownloadURL: client.ResolveURL(res.DownloadURL)}
	if selector != nil && selector.State() == recommend.StateLoaded {
		report.Selection = selector.CurrentSelection()
	}

	var rec jobstore.Record
	if store, err := a.store(); err != nil {
		a.logger.Warn("job record not saved", "error", err)
	} else if rec, err = store.Save(a.cfg.ServerURL, report.DownloadURL, *res); err != nil {
		a.logger.Warn("job record not saved", "error", err)
	}

	if !opts.noPreview {
		pr := renderPreview(ctx, client, res, terminalWidth(72), opts.previewPNG, a)
		report.Preview = &pr
	}

	var downloadErr error
	if opts.download {
		if rec.Result.JobID == "" {
			rec = jobstore.Record{ServerURL: a.cfg.ServerURL, DownloadURL: report.DownloadURL, Result: *res}
		}
		dir := opts.dir
		if dir == "" {
			dir = a.cfg.DownloadDir
		}
		report.SavedTo, _, downloadErr = downloadRecord(ctx, client, rec, dir)
	}

	if err := emit(out, a, report, func() error {
		printGenerateText(out, report, client.ResolveURL)
		return nil
	}); err != nil {
		return err
	}
	if downloadErr != nil {
		return fmt.Errorf("download: %w", downloadErr)
	}
	return nil
}

func printGenerateText(w io.Writer, r generateReport, resolve func(string) string) {
	fmt.Fprintln(w, "Sequence ready.")
	printFields(w, submit.Summary(r.Result, resolve))
	if len(r.Selection) > 0 {
		fmt.Fprintf(w, "selection: %s\n", strings.Join(r.Selection, ", "))
	}
	if r.Preview != nil {
		printPreviewText(w, *r.Preview)
	}
	if r.SavedTo != "" {
		fmt.Fprintf(w, "saved: %s\n", r.SavedTo)
	}
}

func statUploads(layoutPath, audioPath, networksPath string) (validate.Files, error) {
	var files validate.Files
	var err error
	if files.Layout, err = validate.Stat(layoutPath); err != nil {
		return files, fmt.Errorf("layout: %w", err)
	}
	if files.Audio, err = validate.Stat(audioPath); err != nil {
		return files, fmt.Errorf("audio: %w", err)
	}
	if files.Networks, err = validate.Stat(networksPath); err != nil {
		return files, fmt.Errorf("networks: %w", err)
	}
	return files, nil
}

type recommender interface {
	RecommendGroups(ctx context.Context, file *validate.File) (*api.RecommendResponse, error)
}

func fetchSelection(ctx context.Context, c recommender, file *validate.File, sel *recommend.Selector) error {
	tok := sel.Begin()
	resp, err := c.RecommendGroups(ctx, file)
	if err != nil {
		sel.Fail(tok, err)
		return err
	}
	sel.Apply(tok, resp.Recommendations)
	return nil
}

type downloader interface {
	Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error)
}

// downloadRecord streams the record's sequence into dir. A failed transfer
// leaves nothing behind.
func downloadRecord(ctx context.Context, c downloader, rec jobstore.Record, dir string) (string, int64, error) {
	if strings.TrimSpace(rec.DownloadURL) == "" {
		return "", 0, errors.New("job has no download url")
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := c.Download(ctx, rec.DownloadURL, pw)
		pw.CloseWithError(err)
	}()
	path, n, err := jobstore.SaveDownload(dir, rec, pr)
	_ = pr.CloseWithError(err)
	return path, n, err
}

type previewReport struct {
	Beats    int    `json:"beats" yaml:"beats"`
	Sections int    `json:"sections" yaml:"sections"`
	Strip    string `json:"strip,omitempty" yaml:"strip,omitempty"`
	PNG      string `json:"png,omitempty" yaml:"png,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// previewCache fetches one job's preview data once for several canvases.
type previewCache struct {
	f     submit.PreviewFetcher
	jobID string
	data  *preview.Data
}

func (p *previewCache) Preview(ctx context.Context, jobID string) (*preview.Data, error) {
	if p.data != nil && p.jobID == jobID {
		return p.data, nil
	}
	d, err := p.f.Preview(ctx, jobID)
	if err != nil {
		return nil, err
	}
	p.jobID, p.data = jobID, d
	return d, nil
}

// renderPreview draws the preview as a text strip and, when pngPath is set,
// as an image. Failures are reported in the result and logged, never
// returned.
func renderPreview(ctx context.Context, f submit.PreviewFetcher, res *api.JobResult, width int, pngPath string, a *app) previewReport {
	var out previewReport
	cache := &previewCache{f: f}
	var panel preview.Panel

	strip := preview.NewStripCanvas(width, 1)
	if err := submit.ShowPreview(ctx, cache, &panel, strip, res); err != nil {
		a.logger.Warn("preview unavailable", "job", res.JobID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Beats, out.Sections = panel.Counts()
	out.Strip = strip.Row()

	if pngPath != "" {
		raster := preview.NewRasterCanvas(a.cfg.CanvasWidth, a.cfg.CanvasHeight)
		err := submit.ShowPreview(ctx, cache, &panel, raster, res)
		if err == nil {
			raster.LabelSections(cache.data.Sections, res.DurationMs)
			err = raster.WritePNG(pngPath)
		}
		if err != nil {
			a.logger.Warn("preview image not written", "path", pngPath, "error", err)
			out.Error = err.Error()
		} else {
			out.PNG = pngPath
		}
	}
	return out
}

func printPreviewText(w io.Writer, p previewReport) {
	if p.Error != "" {
		warnf(w, "%s", p.Error)
	}
	if p.Strip == "" {
		return
	}
	fmt.Fprintf(w, "preview: %d beats, %d sections\n", p.Beats, p.Sections)
	fmt.Fprintln(w, p.Strip)
	if p.PNG != "" {
		fmt.Fprintf(w, "preview image: %s\n", p.PNG)
	}
}
