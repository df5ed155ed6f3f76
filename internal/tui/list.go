package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/util"
)

// listModel is a filterable, scrollable list of stored records.
type listModel struct {
	records []media.Record
	filter  textinput.Model
	cursor  int
	offset  int // viewport scroll offset
	height  int // visible area height
	loading bool
	err     error
}

func newListModel() listModel {
	ti := textinput.New()
	ti.Placeholder = "title, region, genre or id"
	ti.CharLimit = 128
	ti.Width = 40
	ti.Prompt = "Filter: "
	ti.PromptStyle = filterPromptStyle
	return listModel{filter: ti, height: 20, loading: true}
}

func (l *listModel) setRecords(records []media.Record) {
	l.records = records
	l.cursor = 0
	l.offset = 0
	l.loading = false
	l.err = nil
}

func (l *listModel) setError(err error) {
	l.err = err
	l.loading = false
}

func matches(r media.Record, q string) bool {
	if q == "" {
		return true
	}
	for _, field := range []string{r.Title, r.Region, r.Genres, strconv.FormatInt(r.ID, 10)} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (l *listModel) visibleIndices() []int {
	indices := make([]int, 0, len(l.records))
	q := strings.ToLower(strings.TrimSpace(l.filter.Value()))
	for i, r := range l.records {
		if matches(r, q) {
			indices = append(indices, i)
		}
	}
	return indices
}

func (l *listModel) normalizeViewport(total int) {
	if total <= 0 {
		l.cursor = 0
		l.offset = 0
		return
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.cursor >= total {
		l.cursor = total - 1
	}
	if l.offset < 0 {
		l.offset = 0
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.height > 0 && l.cursor >= l.offset+l.height {
		l.offset = l.cursor - l.height + 1
	}
	maxOffset := max(total-l.height, 0)
	if l.offset > maxOffset {
		l.offset = maxOffset
	}
}

func (l *listModel) selected() *media.Record {
	visible := l.visibleIndices()
	l.normalizeViewport(len(visible))
	if l.cursor >= 0 && l.cursor < len(visible) {
		return &l.records[visible[l.cursor]]
	}
	return nil
}

func (l *listModel) moveUp() {
	if l.cursor > 0 {
		l.cursor--
	}
	l.normalizeViewport(len(l.visibleIndices()))
}

func (l *listModel) moveDown() {
	l.cursor++
	l.normalizeViewport(len(l.visibleIndices()))
}

func (l *listModel) pageUp() {
	l.cursor -= max(l.height, 1)
	l.normalizeViewport(len(l.visibleIndices()))
}

func (l *listModel) pageDown() {
	l.cursor += max(l.height, 1)
	l.normalizeViewport(len(l.visibleIndices()))
}

func (l *listModel) goHome() {
	l.cursor = 0
	l.offset = 0
}

func (l *listModel) goEnd() {
	l.cursor = len(l.visibleIndices()) - 1
	l.normalizeViewport(len(l.visibleIndices()))
}

func (l *listModel) view(width int, spin string) string {
	var sb strings.Builder

	sb.WriteString(padToWidth(l.filter.View(), width))
	sb.WriteString("\n")

	if l.loading {
		sb.WriteString(fmt.Sprintf("\n  %s Loading...\n", spin))
		return sb.String()
	}

	if l.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", l.err)))
		sb.WriteString("\n")
		return sb.String()
	}

	if len(l.records) == 0 {
		sb.WriteString("\n  (no stored records, run `tmdb-tracker run` first)\n")
		return sb.String()
	}

	visible := l.visibleIndices()
	l.normalizeViewport(len(visible))
	if len(visible) == 0 {
		sb.WriteString(helpStyle.Render("  No matches for current filter."))
		sb.WriteString("\n")
		return sb.String()
	}

	end := min(l.offset+l.height, len(visible))

	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 24)
	for i := l.offset; i < end; i++ {
		sb.WriteString(renderRow(l.records[visible[i]], rowWidth, i == l.cursor))
		sb.WriteString("\n")
	}

	if len(visible) > l.height {
		pct := float64(l.offset) / float64(len(visible)-l.height) * 100
		sb.WriteString(helpStyle.Render(
			fmt.Sprintf("  %d/%d records (%.0f%%)", l.cursor+1, len(visible), pct),
		))
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderRow(r media.Record, rowWidth int, isSelected bool) string {
	title := nameStyle.Render(util.Truncate(r.Title, max(12, rowWidth-32)))
	line := fmt.Sprintf("  %s  %s  %s",
		dateStyle.Render(util.OrDash(r.ReleaseDate)),
		regionStyle.Render(util.Truncate(util.OrDash(r.Region), 12)),
		title,
	)
	if isSelected {
		return selectedStyle.Render(padToWidth(line, rowWidth))
	}
	return normalStyle.Render(padToWidth(line, rowWidth))
}

func padToWidth(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}
