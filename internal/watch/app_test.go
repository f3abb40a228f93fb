package watch

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/paramspec/internal/config"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/simulation"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	cfg := config.Default()
	cfg.VerifyAssertions = true
	cfg.Threads = 2
	cfg.Invocations = 2000
	cfg.SampleQuota = 100
	cfg.HotThreshold = 50
	p, err := simulation.New(cfg, nil)
	require.NoError(t, err)
	m := NewModel(p)
	t.Cleanup(m.cancel)
	return m
}

func press(m *Model, k tea.KeyMsg) tea.Cmd {
	_, cmd := m.Update(k)
	return cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// step runs one batch command to completion and feeds its result back.
func step(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(batchDoneMsg)
	require.True(t, ok, "expected batch result, got %T", msg)
	_, next := m.Update(done)
	return next
}

func TestBatchUpdatesSnapshot(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, 500, m.batchSize)

	next := step(t, m, m.Init())
	assert.NotNil(t, next, "next tick is scheduled")
	assert.False(t, m.running)
	assert.NoError(t, m.Err())
	assert.Equal(t, 1, m.snapshot.Batches)
	require.Len(t, m.taken, 1)
	assert.Equal(t, float64(m.snapshot.Counters.Taken), m.taken[0])

	step(t, m, press(m, runes("s")))
	assert.Equal(t, 2, m.snapshot.Batches)
	assert.Len(t, m.taken, 2)
}

func TestSparklineHistoryIsCapped(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.WindowSizeMsg{Width: 40, Height: 50})

	for i := 1; i <= 100; i++ {
		m.Update(batchDoneMsg{snap: simulation.Snapshot{Counters: sampler.Counters{Taken: int64(i * 3)}}})
	}
	assert.Len(t, m.taken, chartWidth(40))
	assert.Equal(t, 3.0, m.taken[len(m.taken)-1])
	assert.Equal(t, int64(300), m.lastTaken)
}

func TestTickIsIgnoredWhileBusy(t *testing.T) {
	m := newTestModel(t)
	cmd := m.Init()
	require.True(t, m.running)

	_, tick := m.Update(TickMsg{})
	assert.Nil(t, tick)
	assert.Nil(t, press(m, runes("s")))

	step(t, m, cmd)
	_, tick = m.Update(TickMsg{})
	assert.NotNil(t, tick)
}

func TestPauseStopsScheduling(t *testing.T) {
	m := newTestModel(t)
	cmd := m.Init()

	press(m, runes("p"))
	assert.True(t, m.paused)
	assert.Nil(t, step(t, m, cmd), "no tick while paused")

	_, tick := m.Update(TickMsg{})
	assert.Nil(t, tick)

	assert.NotNil(t, press(m, runes("p")), "resuming schedules a tick")
	assert.False(t, m.paused)
}

func TestTabsCycle(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, TabSampler, m.activeTab)

	press(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabProfiles, m.activeTab)
	press(m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, TabSpecializations, m.activeTab)
	press(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabSampler, m.activeTab)
	press(m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, TabSpecializations, m.activeTab)
}

func TestScrollIsClamped(t *testing.T) {
	m := newTestModel(t)
	press(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Zero(t, m.scrollPositions[TabSampler])

	press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	assert.Equal(t, 10, m.scrollPositions[TabSampler])

	content := "a\nb\nc\nd"
	out := m.applyScrolling(content, 2)
	assert.Equal(t, 2, m.scrollPositions[TabSampler])
	assert.Contains(t, out, "c")
	assert.Contains(t, out, "Line 3-4 of 4")

	assert.Equal(t, content, m.applyScrolling(content, 10))
}

func TestView(t *testing.T) {
	m := newTestModel(t)
	assert.Empty(t, m.View(), "nothing to draw before the first resize")

	m.pipeline.Config().HotThreshold = 1 << 30
	m.Update(tea.WindowSizeMsg{Width: 160, Height: 200})
	press(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Contains(t, m.View(), "No profiles collected yet")
	press(m, tea.KeyMsg{Type: tea.KeyLeft})
	for range 2 {
		step(t, m, press(m, runes("s")))
	}

	view := m.View()
	assert.Contains(t, view, "Sampler")
	assert.Contains(t, view, "Samples taken")

	press(m, tea.KeyMsg{Type: tea.KeyTab})
	view = m.View()
	assert.Contains(t, view, "Demo.f")

	press(m, tea.KeyMsg{Type: tea.KeyTab})
	view = m.View()
	assert.Contains(t, view, "Variants:")
	assert.Contains(t, view, "No method was opt-compiled yet")
}

func TestQuitCancelsRun(t *testing.T) {
	m := newTestModel(t)
	cmd := press(m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Error(t, m.ctx.Err())
}
