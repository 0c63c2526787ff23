// Package tui is a terminal live view of a running engine.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/utils"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)
)

const (
	historyLen = 120
	thetaStep  = 0.1
	maxTheta   = 3.0
)

// Model ticks an engine once per frame and plots its kinetic energy.
type Model struct {
	engine *physics.Engine
	dt     float64
	frame  time.Duration

	paused  bool
	stats   physics.Stats
	history []float64
	tps     float64
	last    time.Time

	width  int
	height int
}

// New returns a model that advances engine by dt every 1/fps seconds.
func New(engine *physics.Engine, dt float64, fps int) Model {
	if fps <= 0 {
		fps = 30
	}
	return Model{
		engine:  engine,
		dt:      dt,
		frame:   time.Second / time.Duration(fps),
		stats:   engine.Stats(),
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

type tickMsg time.Time

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tickMsg:
		if !m.paused {
			now := time.Time(msg)
			if !m.last.IsZero() {
				if d := now.Sub(m.last).Seconds(); d > 0 {
					m.tps = 1 / d
				}
			}
			m.last = now
			m = m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
		m.last = time.Time{}
	case "s", "right":
		if m.paused {
			m = m.step()
		}
	case "+", "=":
		m.setTheta(m.engine.Params().Theta + thetaStep)
	case "-", "_":
		m.setTheta(m.engine.Params().Theta - thetaStep)
	}
	return m, nil
}

func (m *Model) setTheta(theta float64) {
	theta = utils.Clamp(theta, 0, maxTheta)
	p := m.engine.Params()
	p.Theta = theta
	m.engine.SetParams(p)
}

func (m Model) step() Model {
	m.engine.Tick(m.dt)
	m.stats = m.engine.Stats()
	if len(m.history) == historyLen {
		m.history = append(m.history[:0], m.history[1:]...)
	}
	m.history = append(m.history, m.stats.KineticEnergy)
	return m
}

// Paused reports whether ticking is suspended.
func (m Model) Paused() bool { return m.paused }

// Stats returns the figures of the last tick.
func (m Model) Stats() physics.Stats { return m.stats }

func (m Model) View() string {
	var b strings.Builder
	p := m.engine.Params()

	status := green.Render("running")
	if m.paused {
		status = yellow.Render("paused")
	}
	b.WriteString(cyan.Bold(true).Render("graph physics") + "  " + status + "\n\n")

	row := func(label, value string) {
		b.WriteString(dim.Render(fmt.Sprintf("%-10s", label)) + white.Render(value) + "\n")
	}
	row("tick", fmt.Sprintf("%d", m.stats.Tick))
	row("nodes", fmt.Sprintf("%d", m.stats.Nodes))
	row("edges", fmt.Sprintf("%d (%d dangling)", m.stats.Edges, m.stats.DanglingEdges))
	row("theta", fmt.Sprintf("%.2f", p.Theta))
	row("cells", fmt.Sprintf("%d (depth %d)", m.stats.Cells, m.stats.Depth))
	row("energy", fmt.Sprintf("%.6g", m.stats.KineticEnergy))
	if m.tps > 0 {
		row("tick/s", fmt.Sprintf("%.1f", m.tps))
	}

	if len(m.history) > 1 {
		width := max(m.width-16, 20)
		height := max(m.height-18, 5)
		plot := asciigraph.Plot(m.history,
			asciigraph.Width(width),
			asciigraph.Height(height),
			asciigraph.Caption("kinetic energy"))
		b.WriteString("\n" + panel.Render(plot) + "\n")
	}

	b.WriteString("\n" + dim.Render("space pause · s step · +/- theta · q quit"))
	return b.String()
}

// Run shows the live view until the user quits or ctx is done.
func Run(ctx context.Context, engine *physics.Engine, dt float64, fps int) error {
	_, err := tea.NewProgram(New(engine, dt, fps), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
