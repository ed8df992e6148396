// Package progress is a terminal progress display for map generation.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"crosswarped.com/tilegen"
)

const (
	padding  = 2
	maxWidth = 80
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	statsStyle = lipgloss.NewStyle().Faint(true)
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Msg reports the progress of a whole map search.
type Msg tilegen.Progress

// ChunkMsg reports the progress of one chunk.
type ChunkMsg struct {
	Chunk    int
	Progress tilegen.Progress
}

// ChunkDoneMsg reports a finished chunk.
type ChunkDoneMsg tilegen.ChunkResult

// DoneMsg ends the display.
type DoneMsg struct {
	Err error
}

// Model renders a progress bar over the resolved cells, or over the chunks of a chunked map.
type Model struct {
	Title string

	bar    progress.Model
	chunks int

	resolved, total   int
	steps, backtracks int

	chunksDone int
	running    map[int]float64

	done        bool
	err         error
	interrupted bool
}

// New creates a model. chunks is the number of chunks of a chunked map, zero for a whole map.
func New(title string, chunks int) Model {
	return Model{
		Title:   title,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		chunks:  chunks,
		running: make(map[int]float64),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-padding*2-4, maxWidth)
	case Msg:
		m.resolved, m.total = msg.Resolved, msg.Total
		m.steps, m.backtracks = msg.Steps, msg.Backtracks
	case ChunkMsg:
		if msg.Progress.Total > 0 {
			m.running[msg.Chunk] = float64(msg.Progress.Resolved) / float64(msg.Progress.Total)
		}
	case ChunkDoneMsg:
		delete(m.running, msg.Index)
		if msg.Err == nil {
			m.chunksDone++
		}
		m.steps += msg.Stats.Steps
		m.backtracks += msg.Stats.Backtracks
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Percent is the completed fraction in [0, 1].
func (m Model) Percent() float64 {
	if m.chunks > 0 {
		f := float64(m.chunksDone)
		for _, p := range m.running {
			f += p
		}
		return min(f/float64(m.chunks), 1)
	}
	if m.total == 0 {
		return 0
	}
	return float64(m.resolved) / float64(m.total)
}

// Interrupted reports whether the user quit before the generation finished.
func (m Model) Interrupted() bool {
	return m.interrupted
}

func (m Model) View() string {
	pad := strings.Repeat(" ", padding)
	var b strings.Builder
	b.WriteString("\n" + pad + titleStyle.Render(m.Title) + "\n\n")
	b.WriteString(pad + m.bar.ViewAs(m.Percent()) + "\n\n")

	stats := fmt.Sprintf("steps %d  backtracks %d", m.steps, m.backtracks)
	if m.chunks > 0 {
		stats = fmt.Sprintf("chunks %d/%d  ", m.chunksDone, m.chunks) + stats
	} else if m.total > 0 {
		stats = fmt.Sprintf("cells %d/%d  ", m.resolved, m.total) + stats
	}
	b.WriteString(pad + statsStyle.Render(stats) + "\n")

	if m.err != nil {
		b.WriteString(pad + errStyle.Render(m.err.Error()) + "\n")
	}
	return b.String()
}
