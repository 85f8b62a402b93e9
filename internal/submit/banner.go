package submit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"seqgen/internal/api"
)

type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerInfo
	BannerError
)

// Banner is the one status line shown to the user. Errors render in their
// own style so they never read as progress.
type Banner struct {
	Kind BannerKind
	Text string
}

func InfoBanner(text string) Banner {
	return Banner{Kind: BannerInfo, Text: text}
}

func ErrorBanner(err error) Banner {
	if err == nil {
		return Banner{}
	}
	return Banner{Kind: BannerError, Text: err.Error()}
}

func (b Banner) IsError() bool { return b.Kind == BannerError }

// FormatDuration renders milliseconds as m:ss, rounding to the nearest second.
func FormatDuration(ms float64) string {
	if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return "0:00"
	}
	total := int64(math.Round(ms / 1000))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func FormatBPM(res *api.JobResult) string {
	if res == nil || res.BPM == nil {
		if res != nil && res.ManualBPM != nil {
			return formatFloat(*res.ManualBPM) + " (manual)"
		}
		return "?"
	}
	out := formatFloat(*res.BPM)
	if res.ManualBPM != nil {
		out += " (manual " + formatFloat(*res.ManualBPM) + ")"
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

type Field struct {
	Label string
	Value string
}

// Summary lists the result panel rows. resolve turns the server-relative
// download URL into an absolute one.
func Summary(res *api.JobResult, resolve func(string) string) []Field {
	if res == nil {
		return nil
	}
	download := res.DownloadURL
	if resolve != nil {
		download = resolve(download)
	}
	models := strconv.Itoa(res.ModelCount)
	if res.SelectedModelCount != nil && res.TotalModelCount != nil {
		models = fmt.Sprintf("%d (%d/%d selected)", res.ModelCount, *res.SelectedModelCount, *res.TotalModelCount)
	}
	fields := []Field{
		{"Job", res.JobID},
		{"BPM", FormatBPM(res)},
		{"Duration", FormatDuration(res.DurationMs)},
		{"Beats", strconv.Itoa(res.BeatCount)},
		{"Downbeats", strconv.Itoa(res.DownbeatCount)},
		{"Sections", strconv.Itoa(res.SectionCount)},
		{"Models", models},
		{"Format", res.ExportFormat},
	}
	if v := strings.TrimSpace(res.Version); v != "" {
		fields = append(fields, Field{"Version", v})
	}
	return append(fields, Field{"Download", download})
}
