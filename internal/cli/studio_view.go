package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"seqgen/internal/layout"
	"seqgen/internal/recommend"
	"seqgen/internal/submit"
)

var (
	studioTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	studioMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	studioErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	studioOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	studioPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	studioFocusStyle = studioPanelStyle.BorderForeground(lipgloss.Color("212"))
	studioSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

const studioWideWidth = 100

func (m studioModel) View() string {
	if m.width <= 0 {
		m.width = studioWideWidth
	}
	if m.height <= 0 {
		m.height = 30
	}

	header := studioTitleStyle.Render("seqgen studio") + "  " + studioMutedStyle.Render(m.cfg.ServerURL) + "\n" +
		studioMutedStyle.Render(m.hints())

	leftW, rightW := m.columns()
	files := m.renderFilesPanel(leftW)
	result := m.renderResultPanel(leftW)
	tree := m.renderTreePanel(rightW)
	recs := m.renderRecsPanel(rightW)

	var body string
	if m.width < studioWideWidth {
		body = lipgloss.JoinVertical(lipgloss.Left, files, tree, recs, result)
	} else {
		left := lipgloss.JoinVertical(lipgloss.Left, files, result)
		right := lipgloss.JoinVertical(lipgloss.Left, tree, recs)
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m studioModel) hints() string {
	common := "tab: pane | ctrl+s: submit | ctrl+r: reload layout | ctrl+c: quit"
	switch m.pane {
	case studioPaneTree:
		if m.searching {
			return "type to filter | enter: keep filter | esc: clear filter"
		}
		return "up/down: move | /: search | g: groups | m: models | d: download | " + common
	case studioPaneRecs:
		return "up/down: move | space: toggle | d: download | " + common
	default:
		return "up/down: field | enter: next / load layout | " + common
	}
}

// columns returns the panel widths for the current terminal width.
func (m studioModel) columns() (int, int) {
	width := m.width
	if width <= 0 {
		width = studioWideWidth
	}
	if width < studioWideWidth {
		return width, width
	}
	left := clampInt(width/2, 40, 70)
	return left, width - left - 1
}

func (m studioModel) previewWidth() int {
	left, _ := m.columns()
	return max(left-6, 10)
}

func (m studioModel) panelStyle(focused bool, width int) lipgloss.Style {
	if focused {
		return studioFocusStyle.Width(width)
	}
	return studioPanelStyle.Width(width)
}

func (m studioModel) renderFilesPanel(width int) string {
	focused := m.pane == studioPaneFiles
	lines := []string{studioTitleStyle.Render("Files")}
	for i, f := range m.form.Fields {
		prefix := "  "
		if focused && i == m.form.Index {
			prefix = "> "
		}
		value := f.Value
		if i == m.form.Index {
			value = strings.TrimSpace(m.form.Input.Value())
		}
		display := value
		if display == "" {
			display = "(empty)"
			if f.Required {
				display = "(required)"
			}
			display = studioMutedStyle.Render(display)
		}
		lines = append(lines, wrapOrTrim(prefix+f.Label+": "+display, max(width-4, 12)))
	}
	if focused {
		curr := m.form.currentField()
		lines = append(lines, "", curr.Label)
		if curr.Help != "" {
			lines = append(lines, studioMutedStyle.Render(wrapOrTrim(curr.Help, max(width-4, 12))))
		}
		lines = append(lines, m.form.Input.View())
	}
	lines = append(lines, "")
	switch {
	case m.ctrl.Busy():
		lines = append(lines, studioMutedStyle.Render("[ Submitting... ]"))
	case m.ctrl.CanSubmit():
		lines = append(lines, studioOKStyle.Render("[ Submit: ctrl+s ]"))
	}
	return m.panelStyle(focused, width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderTreePanel(width int) string {
	focused := m.pane == studioPaneTree
	f := m.tree.Filter()
	title := studioTitleStyle.Render("Models")
	if m.tree.Status() == layout.StatusReady {
		title += studioMutedStyle.Render(fmt.Sprintf("  %d models", m.tree.ModelCount()))
	}
	lines := []string{
		title,
		studioMutedStyle.Render(fmt.Sprintf("groups: %s | models: %s", onOff(f.ShowGroups), onOff(f.ShowModels))),
	}
	if m.searching || f.SearchText != "" {
		lines = append(lines, m.search.View())
	}

	switch m.tree.Status() {
	case layout.StatusEmpty:
		lines = append(lines, studioMutedStyle.Render("Enter a layout path and press enter."))
	case layout.StatusLoading:
		lines = append(lines, studioMutedStyle.Render("Inspecting layout..."))
	case layout.StatusFailed:
		lines = append(lines, studioErrorStyle.Render(wrapOrTrim(m.tree.Err().Error(), max(width-4, 12))))
	case layout.StatusReady:
		rows := m.tree.Rows()
		if len(rows) == 0 {
			lines = append(lines, studioMutedStyle.Render("Nothing matches the filter."))
		}
		maxRows := clampInt(m.height-18, 4, 24)
		start, end := listWindow(len(rows), m.treeCursor, maxRows)
		if start > 0 {
			lines = append(lines, studioMutedStyle.Render("..."))
		}
		for i := start; i < end; i++ {
			line := truncateRunes(layout.FormatRow(rows[i]), max(width-6, 10))
			if focused && i == m.treeCursor {
				line = studioSelStyle.Width(max(width-4, 6)).Render(line)
			}
			lines = append(lines, line)
		}
		if end < len(rows) {
			lines = append(lines, studioMutedStyle.Render("..."))
		}
		if m.traces > 0 {
			lines = append(lines, studioMutedStyle.Render(fmt.Sprintf("chart: %d traces", m.traces)))
		}
	}
	if m.layoutNote != "" {
		lines = append(lines, studioMutedStyle.Render(wrapOrTrim(m.layoutNote, max(width-4, 12))))
	}
	return m.panelStyle(focused, width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderRecsPanel(width int) string {
	focused := m.pane == studioPaneRecs
	lines := []string{studioTitleStyle.Render("Suggested groups")}
	switch m.recs.State() {
	case recommend.StateNotFetched:
		lines = append(lines, studioMutedStyle.Render("Load a layout to see suggestions."))
	case recommend.StateLoading:
		lines = append(lines, studioMutedStyle.Render("Loading suggestions..."))
	case recommend.StateEmpty:
		lines = append(lines, studioMutedStyle.Render("No suggestions for this layout."))
	case recommend.StateFailed:
		lines = append(lines, studioMutedStyle.Render(wrapOrTrim(m.recs.Err().Error(), max(width-4, 12))))
	case recommend.StateLoaded:
		items := m.recs.Items()
		start, end := listWindow(len(items), m.recCursor, clampInt(m.height-20, 3, 12))
		for i := start; i < end; i++ {
			it := items[i]
			line := fmt.Sprintf("[%s] %s (%d)  %s", checkMark(it.Checked), it.Name, len(it.Members), it.Reason)
			line = truncateRunes(line, max(width-6, 10))
			if focused && i == m.recCursor {
				line = studioSelStyle.Width(max(width-4, 6)).Render(line)
			}
			lines = append(lines, line)
		}
		lines = append(lines, studioMutedStyle.Render(fmt.Sprintf("%d of %d selected", len(m.recs.CurrentSelection()), len(items))))
	}
	return m.panelStyle(focused, width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderResultPanel(width int) string {
	lines := []string{studioTitleStyle.Render("Result")}
	res := m.ctrl.Result()
	if res == nil {
		lines = append(lines, studioMutedStyle.Render("No sequence yet."))
		return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
	}
	for _, f := range submit.Summary(res, m.client.ResolveURL) {
		lines = append(lines, wrapOrTrim(kv(f.Label, f.Value), max(width-4, 12)))
	}
	lines = append(lines, "")
	switch {
	case m.strip != "" && m.panel.Visible():
		beats, sections := m.panel.Counts()
		lines = append(lines, studioMutedStyle.Render(fmt.Sprintf("preview: %d beats, %d sections", beats, sections)), m.strip)
	case m.previewErr != "":
		lines = append(lines, studioMutedStyle.Render(wrapOrTrim(m.previewErr, max(width-4, 12))))
	case m.previewJob == res.JobID:
		lines = append(lines, studioMutedStyle.Render("Loading preview..."))
	}
	return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderStatusLine(width int) string {
	banner := m.ctrl.Banner()
	msg := strings.TrimSpace(m.statusMessage)
	style := studioMutedStyle
	switch {
	case m.ctrl.Busy():
		msg = m.spinner.View() + " " + defaultIfEmpty(banner.Text, "Generating sequence...")
	case msg != "":
		if strings.HasPrefix(strings.ToLower(msg), "error:") {
			style = studioErrorStyle
		} else if strings.HasPrefix(msg, "saved") {
			style = studioOKStyle
		}
	case banner.IsError():
		msg = "error: " + banner.Text
		style = studioErrorStyle
	case banner.Kind == submit.BannerInfo:
		msg = banner.Text
		style = studioOKStyle
	default:
		msg = "Tip: pick a layout, check the groups you want, then ctrl+s."
	}
	return style.Width(width).Render(truncateRunes(msg, max(width-2, 10)))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
