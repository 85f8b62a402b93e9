package api

import (
	"encoding/json"

	"seqgen/internal/layout"
	"seqgen/internal/recommend"
	"seqgen/internal/validate"
)

// JobResult is the /generate success payload.
type JobResult struct {
	JobID              string   `json:"jobId" yaml:"jobId"`
	OK                 bool     `json:"ok" yaml:"ok"`
	Error              string   `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs         float64  `json:"durationMs" yaml:"durationMs"`
	BPM                *float64 `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	ManualBPM          *float64 `json:"manualBpm,omitempty" yaml:"manualBpm,omitempty"`
	BeatCount          int      `json:"beatCount" yaml:"beatCount"`
	DownbeatCount      int      `json:"downbeatCount" yaml:"downbeatCount"`
	SectionCount       int      `json:"sectionCount" yaml:"sectionCount"`
	ModelCount         int      `json:"modelCount" yaml:"modelCount"`
	SelectedModelCount *int     `json:"selectedModelCount,omitempty" yaml:"selectedModelCount,omitempty"`
	TotalModelCount    *int     `json:"totalModelCount,omitempty" yaml:"totalModelCount,omitempty"`
	ExportFormat       string   `json:"exportFormat" yaml:"exportFormat"`
	Version            string   `json:"version,omitempty" yaml:"version,omitempty"`
	DownloadURL        string   `json:"downloadUrl" yaml:"downloadUrl"`
}

// GenerateRequest describes one submission. Selection is the JSON-encoded
// list of recommendation names; empty omits the field.
type GenerateRequest struct {
	Files        validate.Files
	ManualBPM    string
	ExportFormat string
	Selection    string
}

type RecommendResponse struct {
	Count           int                        `json:"count"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

type inspectResponse struct {
	Tree *layout.Node `json:"tree"`
}

// Figure is the chart payload from /render-layout, kept opaque.
type Figure struct {
	Data   []json.RawMessage `json:"data"`
	Layout json.RawMessage   `json:"layout"`
}

func (f *Figure) TraceCount() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

type renderResponse struct {
	Figure *Figure `json:"figure"`
}

type envelope struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}
