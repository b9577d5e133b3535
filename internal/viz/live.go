package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/liftsim/internal/sim"
	"github.com/san-kum/liftsim/internal/tank"
)

const (
	gaugeWidth      = 40
	historyCapacity = 300
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(1, 2)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	clampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	gaugeFillStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	graphStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// ChannelEmitter returns a sim.Emitter that forwards records into the
// returned channel without ever blocking the loop: if the dashboard
// falls behind, the oldest pending record is dropped.
func ChannelEmitter(buffer int) (sim.Emitter, chan sim.Record) {
	ch := make(chan sim.Record, buffer)
	e := sim.EmitterFunc(func(r sim.Record) error {
		for {
			select {
			case ch <- r:
				return nil
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	})
	return e, ch
}

type recordMsg sim.Record

type streamClosedMsg struct{}

// Model is the Bubble Tea model for the live dashboard.
type Model struct {
	records  <-chan sim.Record
	capacity float64

	latest  sim.Record
	got     bool
	history []float64
}

func NewModel(records <-chan sim.Record, capacity float64) Model {
	return Model{
		records:  records,
		capacity: capacity,
		history:  make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForRecord(m.records)
}

func waitForRecord(ch <-chan sim.Record) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return recordMsg(r)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case recordMsg:
		m.latest = sim.Record(msg)
		m.got = true
		m.history = append(m.history, m.latest.Volume)
		if len(m.history) > historyCapacity {
			m.history = m.history[1:]
		}
		return m, waitForRecord(m.records)
	case streamClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("LIFT STATION") + "\n")

	if !m.got {
		s.WriteString(valueStyle.Render("waiting for first tick...") + "\n")
		s.WriteString(helpStyle.Render("q: quit"))
		return panelStyle.Render(s.String())
	}

	r := m.latest

	s.WriteString(m.gauge(r.Volume) + "\n\n")

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2f min (%.0f s)", r.ElapsedMinutes, r.ElapsedMinutes*60)) + "\n")
	s.WriteString(labelStyle.Render("Volume") + valueStyle.Render(fmt.Sprintf("%.1f / %.0f L", r.Volume, m.capacity)) + "\n")
	s.WriteString(labelStyle.Render("Inflow") + valueStyle.Render(fmt.Sprintf("%.1f L/min", r.Inflow)) + "\n")
	s.WriteString(labelStyle.Render("Outflow") + valueStyle.Render(fmt.Sprintf("%.1f L/min", r.Outflow)) + "\n")
	s.WriteString(labelStyle.Render("Net") + valueStyle.Render(fmt.Sprintf("%+.1f L/min", r.Net)) + "\n")

	status := okStyle.Render(r.Status.String())
	if r.Status != tank.StatusOK {
		status = clampStyle.Render(r.Status.String())
	}
	s.WriteString(labelStyle.Render("Status") + status + "\n")
	if r.Overrun {
		s.WriteString(labelStyle.Render("") + clampStyle.Render("TICK OVERRUN") + "\n")
	}

	if len(m.history) > 1 {
		chart := asciigraph.Plot(m.history,
			asciigraph.Height(6),
			asciigraph.Width(50),
			asciigraph.Caption("volume (L)"),
		)
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString(helpStyle.Render("q: quit"))
	return panelStyle.Render(s.String())
}

func (m Model) gauge(volume float64) string {
	ratio := volume / m.capacity
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * gaugeWidth)
	bar := gaugeFillStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", gaugeWidth-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, ratio*100)
}
