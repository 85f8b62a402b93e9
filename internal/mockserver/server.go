// Package mockserver is a local stand-in for the sequence generation server.
// It serves the same endpoints with deterministic analysis results so the
// client can be exercised without audio processing.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"seqgen/internal/layout"
	"seqgen/internal/preview"
	"seqgen/internal/recommend"
)

const (
	DefaultBPM        = 120.0
	DefaultDurationMs = 180000.0
	SectionSeconds    = 30.0
	BeatsPerBar       = 4
	Version           = "mock-1"
	maxUploadBytes    = 25 << 20
)

type job struct {
	id      string
	format  string
	preview preview.Data
	models  []string
}

type Server struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger *slog.Logger
	newID  func() string
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJobIDs replaces the random job id source.
func WithJobIDs(next func() string) Option {
	return func(s *Server) {
		if next != nil {
			s.newID = next
		}
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		jobs:   map[string]*job{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/generate", s.handleGenerate)
	r.Get("/preview.json", s.handlePreview)
	r.Post("/inspect-layout", s.handleInspect)
	r.Post("/recommend-groups", s.handleRecommend)
	r.Post("/render-layout", s.handleRender)
	r.Get("/files/{name}", s.handleFile)
	return r
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return egctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("mock server listening", "addr", ln.Addr().String())

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": Version})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(4 * maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	layoutFile, ok := formFile(r, "layout")
	if !ok {
		writeError(w, http.StatusBadRequest, "layout file required")
		return
	}
	audioFile, ok := formFile(r, "audio")
	if !ok {
		writeError(w, http.StatusBadRequest, "audio file required")
		return
	}
	if layoutFile.Size > maxUploadBytes || audioFile.Size > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	parsed, err := parseUpload(layoutFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid xml")
		return
	}
	if len(parsed.Models) == 0 {
		writeError(w, http.StatusBadRequest, errNoModels.Error())
		return
	}

	bpm := DefaultBPM
	var manual *float64
	if raw := strings.TrimSpace(r.FormValue("manual_bpm")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			writeError(w, http.StatusBadRequest, "invalid manual bpm")
			return
		}
		bpm = v
		manual = &v
	}
	format := strings.ToLower(strings.TrimSpace(r.FormValue("export_format")))
	if format == "" {
		format = "xsq"
	}

	total := len(parsed.Models)
	var selectedCount *int
	if raw, present := r.MultipartForm.Value["selected_recommendations"]; present && len(raw) > 0 {
		var names []string
		if err := json.Unmarshal([]byte(raw[0]), &names); err != nil {
			writeError(w, http.StatusBadRequest, "invalid selected_recommendations")
			return
		}
		n := selectedMembers(recommendGroups(parsed.Models), names)
		selectedCount = &n
	}

	data := beatGrid(bpm, DefaultDurationMs)
	downbeats := 0
	for i := range data.BeatTimes {
		if i%BeatsPerBar == 0 {
			downbeats++
		}
	}

	id := s.newID()
	names := make([]string, 0, total)
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	s.mu.Lock()
	s.jobs[id] = &job{id: id, format: format, preview: data, models: names}
	s.mu.Unlock()
	s.logger.Info("generated job", "job", id, "bpm", bpm, "models", total, "request_id", middleware.GetReqID(r.Context()))

	resp := map[string]any{
		"ok":            true,
		"jobId":         id,
		"durationMs":    DefaultDurationMs,
		"bpm":           bpm,
		"beatCount":     len(data.BeatTimes),
		"downbeatCount": downbeats,
		"sectionCount":  len(data.Sections),
		"modelCount":    total,
		"exportFormat":  format,
		"version":       Version,
		"downloadUrl":   fmt.Sprintf("/files/%s.%s", id, format),
	}
	if manual != nil {
		resp["manualBpm"] = *manual
	}
	if selectedCount != nil {
		resp["selectedModelCount"] = *selectedCount
		resp["totalModelCount"] = total
	}
	writeJSON(w, http.StatusOK, resp)
}

func selectedMembers(recs []recommend.Recommendation, names []string) int {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	members := map[string]bool{}
	for _, r := range recs {
		if !want[r.Name] {
			continue
		}
		for _, m := range r.Members {
			members[m] = true
		}
	}
	return len(members)
}

func beatGrid(bpm, durationMs float64) preview.Data {
	step := 60 / bpm
	limit := durationMs / 1000
	data := preview.Data{OK: true}
	for i := 0; ; i++ {
		t := float64(i) * step
		if t >= limit {
			break
		}
		data.BeatTimes = append(data.BeatTimes, math.Round(t*1000)/1000)
	}
	for i := 0; float64(i)*SectionSeconds < limit; i++ {
		data.Sections = append(data.Sections, preview.Section{
			Time:  float64(i) * SectionSeconds,
			Label: fmt.Sprintf("Section %d", i+1),
		})
	}
	return data
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("job"))
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"beatTimes": j.preview.BeatTimes,
		"sections":  j.preview.Sections,
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}
	root := parsed.tree()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"tree":       root,
		"modelCount": layout.CountModels(root),
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}
	recs := recommendGroups(parsed.Models)
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"count":           len(recs),
		"recommendations": recs,
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}
	traces := make([]map[string]any, 0, len(parsed.Models))
	for i, m := range parsed.Models {
		pts := m.Points
		if len(pts) == 0 {
			pts = []point{{X: float64(i), Y: 0}}
		}
		xs := make([]float64, 0, len(pts))
		ys := make([]float64, 0, len(pts))
		for _, p := range pts {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
		traces = append(traces, map[string]any{
			"type": "scattergl",
			"mode": "markers",
			"name": m.Name,
			"x":    xs,
			"y":    ys,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"figure": map[string]any{
			"data": traces,
			"layout": map[string]any{
				"showlegend": false,
				"yaxis":      map[string]any{"autorange": "reversed"},
			},
		},
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ext := path.Ext(name)
	id := strings.TrimSuffix(name, ext)
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok || "."+j.format != ext {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = io.WriteString(w, sequenceDocument(j))
}

func sequenceDocument(j *job) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<xsequence>\n")
	fmt.Fprintf(&b, "  <head><version>%s</version><jobId>%s</jobId></head>\n", Version, j.id)
	b.WriteString("  <DisplayElements>\n")
	for _, m := range j.models {
		fmt.Fprintf(&b, "    <Element type=\"model\" name=%q/>\n", m)
	}
	b.WriteString("  </DisplayElements>\n")
	fmt.Fprintf(&b, "  <TimingMarks count=\"%d\"/>\n", len(j.preview.BeatTimes))
	b.WriteString("</xsequence>\n")
	return b.String()
}

func (s *Server) layoutFromRequest(w http.ResponseWriter, r *http.Request) (*parsedLayout, bool) {
	if err := r.ParseMultipartForm(2 * maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return nil, false
	}
	fh, ok := formFile(r, "layout")
	if !ok {
		writeError(w, http.StatusBadRequest, "layout file required")
		return nil, false
	}
	parsed, err := parseUpload(fh)
	if err != nil {
		s.logger.Warn("layout parse failed", "file", fh.Filename, "error", err)
		writeError(w, http.StatusBadRequest, "invalid xml")
		return nil, false
	}
	return parsed, true
}

func formFile(r *http.Request, field string) (*multipart.FileHeader, bool) {
	if r.MultipartForm == nil {
		return nil, false
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 || files[0].Filename == "" {
		return nil, false
	}
	return files[0], true
}

func parseUpload(fh *multipart.FileHeader) (*parsedLayout, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return parseLayout(f)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
