package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"seqgen/internal/api"
	"seqgen/internal/jobstore"
)

type jobTarget struct {
	jobID  string
	latest bool
}

func (t *jobTarget) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.jobID, "job", "", "job id from a previous generate")
	cmd.Flags().BoolVar(&t.latest, "latest", false, "use the most recent job")
	cmd.MarkFlagsMutuallyExclusive("job", "latest")
}

// resolve finds the local record for the target. An unknown --job that was
// never saved locally still resolves to a bare record when allowBare is set.
func (t jobTarget) resolve(a *app, allowBare bool) (jobstore.Record, error) {
	store, err := a.store()
	if err != nil {
		return jobstore.Record{}, err
	}
	id := strings.TrimSpace(t.jobID)
	if id == "" && !t.latest {
		return jobstore.Record{}, errors.New("--job or --latest is required")
	}
	rec, err := store.Resolve(id)
	if err == nil {
		return rec, nil
	}
	if allowBare && id != "" && errors.Is(err, os.ErrNotExist) {
		a.logger.Debug("no local record for job", "job", id, "error", err)
		return jobstore.Record{ServerURL: a.cfg.ServerURL, Result: api.JobResult{JobID: id}}, nil
	}
	return jobstore.Record{}, err
}

type previewOptions struct {
	target     jobTarget
	durationMs float64
	png        string
	width      int
}

func newPreviewCmd() *cobra.Command {
	var opts previewOptions
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the beat/section preview of a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp(cmd)
			rec, err := opts.target.resolve(a, true)
			if err != nil {
				return err
			}
			res := rec.Result
			if opts.durationMs > 0 {
				res.DurationMs = opts.durationMs
			}
			if res.DurationMs <= 0 {
				return fmt.Errorf("duration of job %s is unknown; pass --duration-ms", res.JobID)
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			width := opts.width
			if width <= 0 {
				width = terminalWidth(72)
			}
			pr := renderPreview(cmd.Context(), client, &res, width, opts.png, a)
			out := cmd.OutOrStdout()
			if err := emit(out, a, pr, func() error {
				printPreviewText(out, pr)
				return nil
			}); err != nil {
				return err
			}
			if pr.Error != "" {
				return errors.New(pr.Error)
			}
			return nil
		},
	}
	opts.target.register(cmd)
	cmd.Flags().Float64Var(&opts.durationMs, "duration-ms", 0, "song duration in milliseconds (default from the job record)")
	cmd.Flags().StringVar(&opts.png, "png", "", "write the preview to this PNG file")
	cmd.Flags().IntVar(&opts.width, "width", 0, "strip width in columns (default terminal width)")
	return cmd
}

type downloadReport struct {
	JobID string `json:"jobId" yaml:"jobId"`
	Path  string `json:"path" yaml:"path"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

func newDownloadCmd() *cobra.Command {
	var target jobTarget
	var dir string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the generated sequence of a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp(cmd)
			rec, err := target.resolve(a, false)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.DownloadDir
			}
			path, n, err := downloadRecord(cmd.Context(), client, rec, dir)
			if err != nil {
				return fmt.Errorf("download job %s: %w", rec.Result.JobID, err)
			}
			report := downloadReport{JobID: rec.Result.JobID, Path: path, Bytes: n}
			out := cmd.OutOrStdout()
			return emit(out, a, report, func() error {
				fmt.Fprintf(out, "saved: %s (%s)\n", path, formatBytesIEC(n))
				return nil
			})
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "download directory (default from config)")
	return cmd
}
