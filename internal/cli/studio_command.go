package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"seqgen/internal/api"
	"seqgen/internal/config"
	"seqgen/internal/jobstore"
	"seqgen/internal/layout"
	"seqgen/internal/preview"
	"seqgen/internal/recommend"
	"seqgen/internal/reqtoken"
	"seqgen/internal/submit"
	"seqgen/internal/validate"
)

type studioPane int

const (
	studioPaneFiles studioPane = iota
	studioPaneTree
	studioPaneRecs
	studioPaneCount
)

// studioBackend is the server surface the studio talks to.
type studioBackend interface {
	layoutInspector
	submit.Generator
	submit.PreviewFetcher
	downloader
	ResolveURL(ref string) string
}

type studioModel struct {
	ctx    context.Context
	client studioBackend
	cfg    *config.Config
	logger *slog.Logger

	width  int
	height int
	pane   studioPane
	form   *studioForm

	tree       *layout.Tree
	treeCursor int
	searching  bool
	search     textinput.Model
	recs       *recommend.Selector
	recCursor  int
	traces     int
	layoutNote string

	ctrl        *submit.Controller
	lock        *jobstore.SubmitLock
	spinner     spinner.Model
	panel       *preview.Panel
	previewJob  string
	previewData *preview.Data
	previewErr  string
	strip       string

	watch         *layoutWatch
	statusMessage string
}

type layoutLoadedMsg struct {
	treeTok reqtoken.Token
	recTok  reqtoken.Token
	res     inspection
}

type layoutChangedMsg struct {
	path    string
	watcher *fsnotify.Watcher
}

type submitDoneMsg struct {
	res *api.JobResult
	err error
}

type previewLoadedMsg struct {
	jobID string
	data  *preview.Data
	err   error
}

type downloadDoneMsg struct {
	path string
	n    int64
	err  error
}

func newStudioCmd() *cobra.Command {
	var layoutPath, audioPath string
	cmd := &cobra.Command{
		Use:   "studio",
		Short: "Interactive layout browser, group picker and submission view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !stdinIsTTY() {
				return errors.New("studio requires an interactive terminal (TTY)")
			}
			a := getApp(cmd)
			logger, closeLog := studioLogger(a.cfg)
			defer closeLog()
			client, err := api.New(a.cfg.ServerURL, api.WithTimeout(a.cfg.RequestTimeout), api.WithLogger(logger))
			if err != nil {
				return err
			}

			m := newStudioModel(cmd.Context(), client, a.cfg, logger)
			m.form.set(fieldLayout, layoutPath)
			m.form.set(fieldAudio, audioPath)
			defer m.watch.close()

			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			final, err := p.Run()
			if fm, ok := final.(studioModel); ok {
				fm.releaseLock()
			}
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "tty") {
					return errors.New("studio requires an interactive terminal (TTY)")
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "layout XML file to open")
	cmd.Flags().StringVar(&audioPath, "audio", "", "audio file to prefill")
	return cmd
}

// studioLogger sends logs to {state_dir}/studio.log since the terminal is
// owned by the UI.
func studioLogger(cfg *config.Config) (*slog.Logger, func()) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err == nil {
		f, err := os.OpenFile(filepath.Join(cfg.StateDir, "studio.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return config.NewLogger(f, cfg), func() { _ = f.Close() }
		}
	}
	return config.NewLogger(io.Discard, cfg), func() {}
}

func newStudioModel(ctx context.Context, client studioBackend, cfg *config.Config, logger *slog.Logger) studioModel {
	if ctx == nil {
		ctx = context.Background()
	}
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "filter by name"
	search.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	return studioModel{
		ctx:     ctx,
		client:  client,
		cfg:     cfg,
		logger:  logger,
		pane:    studioPaneFiles,
		form:    newStudioForm(cfg.ExportFormat, 100),
		tree:    layout.NewTree(),
		search:  search,
		recs:    recommend.NewSelector(),
		ctrl:    submit.NewController(submit.Options{MaxBytes: cfg.MaxBytes(), Logger: logger}),
		spinner: sp,
		panel:   &preview.Panel{},
		watch:   &layoutWatch{},
	}
}

func (m studioModel) Init() tea.Cmd {
	if path := m.form.value(fieldLayout); path != "" {
		_, cmd := m.loadLayout(path)
		return tea.Batch(textinput.Blink, cmd)
	}
	return textinput.Blink
}

func (m studioModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.form.resize(m.width)
		m.redrawPreview()
		return m, nil
	case layoutLoadedMsg:
		return m.applyLayout(msg), nil
	case layoutChangedMsg:
		if m.watch == nil || m.watch.w != msg.watcher {
			return m, nil
		}
		m, cmd := m.loadLayout(msg.path)
		m.statusMessage = "layout changed on disk; reloaded"
		return m, tea.Batch(cmd, waitLayoutChange(msg.watcher, msg.path))
	case submitDoneMsg:
		return m.finishSubmit(msg)
	case previewLoadedMsg:
		return m.applyPreview(msg), nil
	case downloadDoneMsg:
		if msg.err != nil {
			m.statusMessage = "error: download: " + msg.err.Error()
		} else {
			m.statusMessage = fmt.Sprintf("saved %s (%s)", msg.path, formatBytesIEC(msg.n))
		}
		return m, nil
	case spinner.TickMsg:
		if !m.ctrl.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+s":
		return m.startSubmit()
	case "ctrl+r":
		if path := m.form.value(fieldLayout); path != "" {
			return m.loadLayout(path)
		}
		return m, nil
	case "tab":
		if !m.searching {
			return m.focusPane((m.pane + 1) % studioPaneCount)
		}
	case "shift+tab":
		if !m.searching {
			return m.focusPane((m.pane + studioPaneCount - 1) % studioPaneCount)
		}
	}

	switch m.pane {
	case studioPaneFiles:
		return m.updateFiles(keyMsg)
	case studioPaneTree:
		return m.updateTree(keyMsg)
	case studioPaneRecs:
		return m.updateRecs(keyMsg)
	default:
		return m, nil
	}
}

func (m studioModel) focusPane(p studioPane) (tea.Model, tea.Cmd) {
	if m.pane == studioPaneFiles {
		m.form.commitInput()
		m.form.Input.Blur()
	}
	m.pane = p
	if p == studioPaneFiles {
		return m, m.form.Input.Focus()
	}
	return m, nil
}

func (m studioModel) updateFiles(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		m.form.move(-1)
		return m, nil
	case "down":
		m.form.move(1)
		return m, nil
	case "enter":
		m.form.commitInput()
		if m.form.currentField().Key == fieldLayout {
			return m.loadLayout(m.form.currentField().Value)
		}
		m.form.move(1)
		return m, nil
	}
	var cmd tea.Cmd
	m.form.Input, cmd = m.form.Input.Update(msg)
	return m, cmd
}

func (m studioModel) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			m.search.SetValue("")
			m.tree.SetSearch("")
			m.treeCursor = 0
			return m, nil
		case "enter":
			m.searching = false
			m.search.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.tree.SetSearch(m.search.Value())
		m.treeCursor = 0
		return m, cmd
	}

	rows := len(m.tree.Rows())
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "g":
		m.tree.ToggleGroups()
	case "m":
		m.tree.ToggleModels()
	case "up", "k":
		if m.treeCursor > 0 {
			m.treeCursor--
		}
	case "down", "j":
		if m.treeCursor < rows-1 {
			m.treeCursor++
		}
	case "d":
		return m.startDownload()
	}
	m.treeCursor = clampInt(m.treeCursor, 0, max(len(m.tree.Rows())-1, 0))
	return m, nil
}

func (m studioModel) updateRecs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.recCursor > 0 {
			m.recCursor--
		}
	case "down", "j":
		if m.recCursor < m.recs.Len()-1 {
			m.recCursor++
		}
	case " ", "space":
		m.recs.Toggle(m.recCursor)
	case "d":
		return m.startDownload()
	}
	return m, nil
}

// loadLayout starts a fresh inspection of path. Any response still in
// flight for an earlier layout is discarded when it arrives.
func (m studioModel) loadLayout(path string) (studioModel, tea.Cmd) {
	file, err := validate.Stat(path)
	if err != nil {
		m.statusMessage = "error: " + err.Error()
		return m, nil
	}
	if file == nil {
		return m, nil
	}
	treeTok := m.tree.Begin(file.Path)
	recTok := m.recs.Begin()
	m.treeCursor, m.recCursor = 0, 0
	m.traces = 0
	m.layoutNote = ""

	cmds := []tea.Cmd{inspectLayoutCmd(m.ctx, m.client, file, treeTok, recTok)}
	if cmd := m.watch.follow(file.Path); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m studioModel) applyLayout(msg layoutLoadedMsg) studioModel {
	var current bool
	if msg.res.TreeErr != nil {
		current = m.tree.Fail(msg.treeTok, msg.res.TreeErr)
	} else {
		current = m.tree.Apply(msg.treeTok, msg.res.Tree)
	}
	switch {
	case msg.res.RecsErr != nil:
		m.recs.Fail(msg.recTok, msg.res.RecsErr)
	case msg.res.Recs != nil:
		m.recs.Apply(msg.recTok, msg.res.Recs.Recommendations)
	default:
		m.recs.Apply(msg.recTok, nil)
	}
	if !current {
		return m
	}

	var notes []string
	for _, err := range []error{msg.res.TreeErr, msg.res.RecsErr, msg.res.FigureErr} {
		if err != nil {
			m.logger.Warn("layout lookup failed", "layout", m.tree.Source(), "error", err)
		}
	}
	if msg.res.Figure != nil {
		m.traces = msg.res.Figure.TraceCount()
	} else if msg.res.FigureErr != nil {
		notes = append(notes, msg.res.FigureErr.Error())
	}
	m.layoutNote = strings.Join(notes, "; ")
	return m
}

func (m studioModel) startSubmit() (tea.Model, tea.Cmd) {
	if !m.ctrl.CanSubmit() {
		m.statusMessage = "a submission is already in progress"
		return m, nil
	}
	m.form.commitInput()
	files, err := statUploads(m.form.value(fieldLayout), m.form.value(fieldAudio), m.form.value(fieldNetworks))
	if err != nil {
		m.statusMessage = "error: " + err.Error()
		return m, nil
	}
	if m.lock == nil {
		lock, err := jobstore.AcquireSubmitLock(m.cfg.StateDir)
		if err != nil {
			m.statusMessage = "error: " + err.Error()
			return m, nil
		}
		m.lock = &lock
	}
	m.statusMessage = ""
	if err := m.ctrl.Begin(files); err != nil {
		m.releaseLock()
		return m, nil
	}

	req := api.GenerateRequest{
		Files:        files,
		ManualBPM:    m.form.value(fieldBPM),
		ExportFormat: defaultIfEmpty(m.form.value(fieldFormat), m.cfg.ExportFormat),
	}
	if payload, ok := m.recs.Payload(); ok {
		req.Selection = payload
	}
	return m, tea.Batch(m.spinner.Tick, generateCmd(m.ctx, m.client, req))
}

func (m studioModel) finishSubmit(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	err := m.ctrl.Finish(msg.res, msg.err)
	m.releaseLock()
	if err != nil {
		return m, nil
	}
	res := m.ctrl.Result()
	if store, err := jobstore.New(m.cfg.StateDir); err == nil {
		if _, err := store.Save(m.cfg.ServerURL, m.client.ResolveURL(res.DownloadURL), *res); err != nil {
			m.logger.Warn("job record not saved", "job", res.JobID, "error", err)
		}
	}
	m.previewJob = res.JobID
	m.previewData = nil
	m.previewErr = ""
	m.strip = ""
	m.panel.Hide()
	return m, previewCmd(m.ctx, m.client, res.JobID)
}

func (m studioModel) applyPreview(msg previewLoadedMsg) studioModel {
	if msg.jobID != m.previewJob {
		return m
	}
	if msg.err != nil {
		err := msg.err
		if !api.IsDegraded(err) {
			err = &api.DegradedError{Feature: "preview", Err: err}
		}
		m.panel.Fail(err)
		m.previewErr = err.Error()
		m.logger.Warn("preview unavailable", "job", msg.jobID, "error", err)
		return m
	}
	m.previewData = msg.data
	m.redrawPreview()
	return m
}

func (m *studioModel) redrawPreview() {
	res := m.ctrl.Result()
	if m.previewData == nil || res == nil || res.JobID != m.previewJob {
		return
	}
	strip := preview.NewStripCanvas(m.previewWidth(), 1)
	if err := m.panel.Show(strip, *m.previewData, res.DurationMs); err != nil {
		m.previewErr = (&api.DegradedError{Feature: "preview", Err: err}).Error()
		m.strip = ""
		return
	}
	m.previewErr = ""
	m.strip = strip.Row()
}

func (m studioModel) startDownload() (tea.Model, tea.Cmd) {
	res := m.ctrl.Result()
	if res == nil {
		m.statusMessage = "no sequence to download yet"
		return m, nil
	}
	rec := jobstore.Record{ServerURL: m.cfg.ServerURL, DownloadURL: m.client.ResolveURL(res.DownloadURL), Result: *res}
	m.statusMessage = "downloading " + jobstore.DownloadName(rec) + "..."
	return m, downloadCmd(m.ctx, m.client, rec, m.cfg.DownloadDir)
}

func (m *studioModel) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(); err != nil {
		m.logger.Warn("release submit lock", "error", err)
	}
	m.lock = nil
}

func inspectLayoutCmd(ctx context.Context, c layoutInspector, file *validate.File, treeTok, recTok reqtoken.Token) tea.Cmd {
	return func() tea.Msg {
		return layoutLoadedMsg{treeTok: treeTok, recTok: recTok, res: inspectAll(ctx, c, file)}
	}
}

func generateCmd(ctx context.Context, gen submit.Generator, req api.GenerateRequest) tea.Cmd {
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = submitDoneMsg{err: fmt.Errorf("submission panicked: %v", r)}
			}
		}()
		res, err := gen.Generate(ctx, req)
		return submitDoneMsg{res: res, err: err}
	}
}

func previewCmd(ctx context.Context, f submit.PreviewFetcher, jobID string) tea.Cmd {
	return func() tea.Msg {
		data, err := f.Preview(ctx, jobID)
		return previewLoadedMsg{jobID: jobID, data: data, err: err}
	}
}

func downloadCmd(ctx context.Context, c downloader, rec jobstore.Record, dir string) tea.Cmd {
	return func() tea.Msg {
		path, n, err := downloadRecord(ctx, c, rec, dir)
		return downloadDoneMsg{path: path, n: n, err: err}
	}
}

// layoutWatch follows the current layout file on disk.
type layoutWatch struct {
	w    *fsnotify.Watcher
	path string
}

// follow switches the watch to path and returns the command waiting for
// its first change, or nil when path is already followed.
func (lw *layoutWatch) follow(path string) tea.Cmd {
	if lw == nil {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	if lw.w != nil && lw.path == abs {
		return nil
	}
	lw.close()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil
	}
	lw.w, lw.path = w, abs
	return waitLayoutChange(w, abs)
}

func (lw *layoutWatch) close() {
	if lw == nil || lw.w == nil {
		return
	}
	_ = lw.w.Close()
	lw.w, lw.path = nil, ""
}

func waitLayoutChange(w *fsnotify.Watcher, abs string) tea.Cmd {
	return func() tea.Msg {
		var settle <-chan time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) == abs && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					settle = time.After(watchDebounce)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return nil
				}
			case <-settle:
				return layoutChangedMsg{path: abs, watcher: w}
			}
		}
	}
}
