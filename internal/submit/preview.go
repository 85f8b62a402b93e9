package submit

import (
	"context"
	"errors"

	"seqgen/internal/api"
	"seqgen/internal/preview"
)

type PreviewFetcher interface {
	Preview(ctx context.Context, jobID string) (*preview.Data, error)
}

// ShowPreview fetches the preview for res and renders it onto c through the
// panel. Any failure is returned as a degraded error and leaves the panel
// hidden; it never touches the controller's result.
func ShowPreview(ctx context.Context, f PreviewFetcher, panel *preview.Panel, c preview.Canvas, res *api.JobResult) error {
	if res == nil || res.JobID == "" {
		return &api.DegradedError{Feature: "preview", Err: errors.New("no job to preview")}
	}
	data, err := f.Preview(ctx, res.JobID)
	if err != nil {
		panel.Fail(err)
		if api.IsDegraded(err) {
			return err
		}
		return &api.DegradedError{Feature: "preview", Err: err}
	}
	if err := panel.Show(c, *data, res.DurationMs); err != nil {
		return &api.DegradedError{Feature: "preview", Err: err}
	}
	return nil
}
