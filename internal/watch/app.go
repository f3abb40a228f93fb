// Package watch drives a simulation batch by batch and shows the sampler,
// profiles and specializations live.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/paramspec/internal/simulation"
	"github.com/mabhi256/paramspec/utils"
)

// The main TUI model
type Model struct {
	pipeline  *simulation.Pipeline
	batchSize int
	ctx       context.Context
	cancel    context.CancelFunc
	help      help.Model

	width  int
	height int

	activeTab       TabType
	scrollPositions map[TabType]int

	snapshot  simulation.Snapshot
	taken     []float64
	lastTaken int64
	running   bool
	paused    bool

	err        error
	lastUpdate time.Time
}

func NewModel(p *simulation.Pipeline) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	return &Model{
		pipeline:        p,
		batchSize:       max(1, p.Config().Invocations/simulation.Batches),
		ctx:             ctx,
		cancel:          cancel,
		help:            help.New(),
		activeTab:       TabSampler,
		scrollPositions: make(map[TabType]int),
		snapshot:        p.Snapshot(),
	}
}

type TickMsg time.Time

// batchDoneMsg carries the state after one RunBatch.
type batchDoneMsg struct {
	snap simulation.Snapshot
	err  error
}

func (m *Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.pipeline.Config().GetInterval(), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *Model) runBatch() tea.Cmd {
	m.running = true
	p, ctx, n := m.pipeline, m.ctx, m.batchSize
	return func() tea.Msg {
		err := p.RunBatch(ctx, n)
		return batchDoneMsg{snap: p.Snapshot(), err: err}
	}
}

func (m *Model) Init() tea.Cmd {
	return m.runBatch()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		if m.paused || m.running || m.err != nil {
			return m, nil
		}
		return m, m.runBatch()

	case batchDoneMsg:
		return m.handleBatchDone(msg)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m, nil
}

func (m *Model) handleBatchDone(msg batchDoneMsg) (tea.Model, tea.Cmd) {
	m.running = false
	m.snapshot = msg.snap
	m.lastUpdate = time.Now()
	m.taken = append(m.taken, float64(msg.snap.Counters.Taken-m.lastTaken))
	if limit := chartWidth(m.width); len(m.taken) > limit {
		m.taken = m.taken[len(m.taken)-limit:]
	}
	m.lastTaken = msg.snap.Counters.Taken

	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}
	if m.paused {
		return m, nil
	}
	return m, m.scheduleTick()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, keys.Tab), key.Matches(msg, keys.Right):
		utils.CycleEnumPtr(&m.activeTab, 1, TabSpecializations)

	case key.Matches(msg, keys.Left):
		utils.CycleEnumPtr(&m.activeTab, -1, TabSpecializations)

	case key.Matches(msg, keys.Up):
		m.scrollUp(1)

	case key.Matches(msg, keys.Down):
		m.scrollDown(1)

	case key.Matches(msg, keys.PageUp):
		m.scrollUp(10)

	case key.Matches(msg, keys.PageDown):
		m.scrollDown(10)

	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		if !m.paused && !m.running {
			return m, m.scheduleTick()
		}

	case key.Matches(msg, keys.Step):
		if !m.running && m.err == nil {
			return m, m.runBatch()
		}
	}

	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}

	header := m.renderHeader()
	tabBar := m.renderTabBar()
	helpView := m.help.View(keys)

	usedHeight := lipgloss.Height(header) + lipgloss.Height(tabBar) + lipgloss.Height(helpView) + 2
	contentHeight := m.height - usedHeight
	content := m.applyScrolling(m.renderActiveTab(), contentHeight)
	if contentHeight > 0 {
		content = lipgloss.NewStyle().Height(contentHeight).Render(content)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, tabBar, content, helpView)
}

func (m *Model) renderActiveTab() string {
	switch m.activeTab {
	case TabSampler:
		return renderSamplerTab(m.snapshot, m.taken, m.width)
	case TabProfiles:
		return renderProfilesTab(m.snapshot)
	case TabSpecializations:
		return renderSpecializationsTab(m.snapshot)
	default:
		return utils.CriticalStyle.Render("Unknown tab")
	}
}

func (m *Model) renderHeader() string {
	title := fmt.Sprintf("🔍 Paramspec Watch - %s", m.snapshot.Config)

	var status string
	var statusStyle lipgloss.Style
	switch {
	case m.err != nil:
		status = fmt.Sprintf("🔴 Error: %v", m.err)
		statusStyle = utils.CriticalStyle
	case m.paused:
		status = fmt.Sprintf("⏸ Paused • Batches: %d", m.snapshot.Batches)
		statusStyle = utils.WarningStyle
	default:
		status = fmt.Sprintf("🟢 Running • Batches: %d • Elapsed: %s",
			m.snapshot.Batches, utils.FormatDuration(m.snapshot.Elapsed))
		statusStyle = utils.GoodStyle
	}

	timestamp := m.lastUpdate.Format("15:04:05")

	titleStyle := utils.TitleStyle.Width(m.width / 3)
	statusStyled := statusStyle.Width(m.width / 3).Align(lipgloss.Center)
	timestampStyle := utils.MutedStyle.Width(m.width / 3).Align(lipgloss.Right)

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(title),
		statusStyled.Render(status),
		timestampStyle.Render(timestamp),
	)

	return utils.BoxStyle.Width(m.width).Render(headerRow)
}

func (m *Model) renderTabBar() string {
	var tabs []string
	for _, tab := range GetAllTabs() {
		if tab == m.activeTab {
			tabs = append(tabs, utils.TabActiveStyle.Render(tab.String()))
		} else {
			tabs = append(tabs, utils.TabInactiveStyle.Render(tab.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// Err reports the error that stopped the simulation, if any.
func (m *Model) Err() error { return m.err }

func StartTUI(p *simulation.Pipeline) error {
	model := NewModel(p)
	defer model.cancel()

	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return model.Err()
}
