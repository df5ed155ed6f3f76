package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/store"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

// Source loads stored records. *store.DB satisfies it.
type Source interface {
	List(ctx context.Context, f store.ListFilter) ([]media.Record, error)
}

// Tab identifies the active view.
type Tab int

const (
	TabMovies Tab = iota
	TabTV
)

func (t Tab) kind() tmdb.Kind {
	if t == TabTV {
		return tmdb.TV
	}
	return tmdb.Movie
}

func tabFor(kind tmdb.Kind) Tab {
	if kind == tmdb.TV {
		return TabTV
	}
	return TabMovies
}

// Messages
type recordsMsg struct {
	tab     Tab
	records []media.Record
}

type errMsg struct {
	tab Tab
	err error
}

type statusClearMsg struct{ id int }

// loadLimit caps how many records a tab loads.
const loadLimit = 5000

// Model is the main Bubble Tea model.
type Model struct {
	src        Source
	activeTab  Tab
	lists      [2]listModel
	spinner    spinner.Model
	showDetail bool
	showHelp   bool
	width      int
	height     int
	statusMsg  string
	statusID   int
}

// NewModel creates the TUI model starting on the tab for kind.
func NewModel(src Source, kind tmdb.Kind) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		src:       src,
		activeTab: tabFor(kind),
		lists:     [2]listModel{newListModel(), newListModel()},
		spinner:   s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.load(TabMovies),
		m.load(TabTV),
	)
}

func (m *Model) list() *listModel {
	return &m.lists[m.activeTab]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case recordsMsg:
		m.lists[msg.tab].setRecords(msg.records)
		return m, nil

	case errMsg:
		m.lists[msg.tab].setError(msg.err)
		return m, nil

	case statusClearMsg:
		if msg.id == m.statusID {
			m.statusMsg = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	l := m.list()
	var cmd tea.Cmd
	l.filter, cmd = l.filter.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	viewHeight := m.height - 9 // header, tabs, filter, status bar
	if m.showDetail {
		viewHeight -= 14
	}
	viewHeight = max(viewHeight, 3)
	for i := range m.lists {
		m.lists[i].height = viewHeight
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	l := m.list()

	if l.filter.Focused() {
		switch key {
		case "ctrl+c":
			return m, tea.Quit
		case "enter", "esc", "tab":
			l.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		l.filter, cmd = l.filter.Update(msg)
		l.cursor = 0
		l.offset = 0
		return m, cmd
	}

	if m.showHelp {
		switch key {
		case "?", "esc", "q":
			m.showHelp = false
		}
		return m, nil
	}

	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "1":
		m.activeTab = TabMovies
	case "2":
		m.activeTab = TabTV
	case "tab", "shift+tab":
		m.activeTab = 1 - m.activeTab
	case "/", "i":
		l.filter.Focus()
		return m, nil
	case "esc":
		if l.filter.Value() != "" {
			l.filter.SetValue("")
			return m, m.setStatus("Filter cleared")
		}
		if m.showDetail {
			m.showDetail = false
			m.resize()
		}
	case "enter", " ":
		m.showDetail = !m.showDetail
		m.resize()
	case "up", "k":
		l.moveUp()
	case "down", "j":
		l.moveDown()
	case "pgup", "ctrl+u":
		l.pageUp()
	case "pgdown", "ctrl+d":
		l.pageDown()
	case "home", "g":
		l.goHome()
	case "end", "G":
		l.goEnd()
	case "r":
		l.loading = true
		return m, tea.Batch(m.load(m.activeTab), m.setStatus("Reloading "+m.activeTab.kind().String()))
	}
	return m, nil
}

func (m Model) load(tab Tab) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		records, err := src.List(context.Background(), store.ListFilter{Kind: tab.kind(), Limit: loadLimit})
		if err != nil {
			return errMsg{tab: tab, err: err}
		}
		return recordsMsg{tab: tab, records: records}
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("  TMDB New Releases  "))
	sb.WriteString("\n")

	tabs := []struct {
		name string
		tab  Tab
		key  string
	}{
		{"Movies", TabMovies, "1"},
		{"TV", TabTV, "2"},
	}
	for _, t := range tabs {
		label := fmt.Sprintf(" %s %s ", t.key, t.name)
		if m.activeTab == t.tab {
			sb.WriteString(tabActiveStyle.Render(label))
		} else {
			sb.WriteString(tabInactiveStyle.Render(label))
		}
		sb.WriteString(" ")
	}
	if n := len(m.lists[m.activeTab].records); n > 0 {
		sb.WriteString(countBadge.Render(fmt.Sprintf(" [%d stored]", n)))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	if m.showHelp {
		sb.WriteString(helpView())
	} else {
		l := m.lists[m.activeTab]
		sb.WriteString(l.view(m.width, m.spinner.View()))
		if m.showDetail {
			sb.WriteString(detailView(l.selected(), m.width))
			sb.WriteString("\n")
		}
	}

	statusLine := m.statusMsg
	if statusLine == "" {
		statusLine = "j/k:navigate  /:filter  Enter:details  1/2:movies/tv  r:reload  ?:help  q:quit"
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(statusBarStyle.Width(m.width).Render(statusLine))
	return sb.String()
}

func helpView() string {
	lines := []string{
		"  Keyboard Shortcuts",
		"  ──────────────────",
		"",
		"    Tab / 1-2     Switch between movies and TV",
		"    j/k / Up/Down Navigate",
		"    g / G         Go to top/bottom",
		"    PgUp / PgDn   Page up/down",
		"    / or i        Focus filter (Enter/Esc to leave)",
		"    Esc           Clear filter / close details",
		"    Enter / Space Toggle detail pane",
		"    r             Reload from the store",
		"    ?             Toggle help",
		"    q / Ctrl+C    Quit",
	}
	return helpStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusID++
	id := m.statusID
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}

// Run starts the TUI.
func Run(src Source, kind tmdb.Kind) error {
	p := tea.NewProgram(NewModel(src, kind), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
