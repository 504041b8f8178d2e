// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"

	"voiceviz/internal/analysis"
	"voiceviz/internal/engine"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	barWidth      = 6
	barGap        = 2
	minBarPercent = 5

	defaultHeight = 24
	defaultWidth  = 80
)

var (
	listeningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	inactiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B8B8B"))
	ballStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5F5F5"))
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5F5F5"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// StateMsg delivers a published engine state to the program.
type StateMsg engine.State

// Controller starts and stops listening on behalf of the user.
type Controller interface {
	RequestStart()
	RequestStop()
}

type keyMap struct {
	Toggle key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Toggle, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys("s", " "), key.WithHelp("s", "start/stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// VisualizerModel renders the published state as a ball while idle and as
// three bars while there is sound.
type VisualizerModel struct {
	state     engine.State
	ctrl      Controller
	threshold float64
	window    string

	width  int
	height int
	help   help.Model
}

// NewVisualizerModel creates the visualizer. threshold is the band value
// that separates bars from the ball; window is shown in the instructions.
func NewVisualizerModel(ctrl Controller, threshold float64, window string) VisualizerModel {
	return VisualizerModel{
		ctrl:      ctrl,
		threshold: threshold,
		window:    window,
		width:     defaultWidth,
		height:    defaultHeight,
		help:      help.New(),
	}
}

func (m VisualizerModel) Init() tea.Cmd {
	return nil
}

func (m VisualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case StateMsg:
		m.state = engine.State(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			if m.ctrl != nil {
				if m.state.Listening {
					m.ctrl.RequestStop()
				} else {
					m.ctrl.RequestStart()
				}
			}
		}
	}
	return m, nil
}

// ShowBall reports whether the ball is drawn instead of bars.
func (m VisualizerModel) ShowBall() bool {
	return m.state.Idle || !m.state.Bands.HasSound(m.threshold)
}

func (m VisualizerModel) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(max(m.width-24, 0)).Render(m.instructions()),
		m.status(),
	)

	area := max(m.height-6, 6)
	var body string
	if m.ShowBall() {
		body = renderBall(area, m.state.Timestamp.Second()%2 == 0)
	} else {
		body = renderBars(m.state.Bands, area)
	}
	body = lipgloss.Place(m.width, area, lipgloss.Center, lipgloss.Bottom, body)

	footer := m.help.View(keys)
	if m.state.Error != "" {
		footer = errorStyle.Render(m.state.Error) + "\n" + footer
	}

	return header + "\n\n" + body + "\n" + footer
}

func (m VisualizerModel) instructions() string {
	return mutedStyle.Render(fmt.Sprintf(
		"Speak to transform the ball into audio bars. After %s of silence, it returns to a ball.", m.window))
}

func (m VisualizerModel) status() string {
	if m.state.Listening {
		return listeningStyle.Render("●") + " Listening"
	}
	return inactiveStyle.Render("●") + mutedStyle.Render(" Microphone inactive")
}

// barHeight converts a band value to rows, never below minBarPercent of rows.
func barHeight(value float64, rows int) int {
	pct := math.Max(minBarPercent, math.Min(value, 100))
	return max(int(math.Round(pct/100*float64(rows))), 1)
}

func renderBars(s analysis.Snapshot, rows int) string {
	values := s.Values()
	heights := [3]int{}
	for i, v := range values {
		heights[i] = barHeight(v, rows)
	}

	block := strings.Repeat("█", barWidth)
	blank := strings.Repeat(" ", barWidth)
	gap := strings.Repeat(" ", barGap)

	var sb strings.Builder
	for row := rows; row >= 1; row-- {
		for i, h := range heights {
			if i > 0 {
				sb.WriteString(gap)
			}
			if h >= row {
				sb.WriteString(block)
			} else {
				sb.WriteString(blank)
			}
		}
		if row > 1 {
			sb.WriteByte('\n')
		}
	}
	return barStyle.Render(sb.String())
}

// renderBall draws a filled circle using two columns per row for the
// terminal cell aspect ratio.
func renderBall(rows int, expanded bool) string {
	r := max(min(rows/2-1, 6), 2)
	if expanded {
		r++
	}

	var sb strings.Builder
	for y := -r; y <= r; y++ {
		for x := -2 * r; x <= 2*r; x++ {
			fx := float64(x) / 2
			if fx*fx+float64(y*y) <= float64(r*r)+0.5 {
				sb.WriteString("█")
			} else {
				sb.WriteByte(' ')
			}
		}
		if y < r {
			sb.WriteByte('\n')
		}
	}
	return ballStyle.Render(sb.String())
}
