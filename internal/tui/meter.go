// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"scope/internal/scope"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	floorDB      = -60.0
	defaultWidth = 80
	labelWidth   = 8
	readoutWidth = 12
)

var sparks = []rune("▁▂▃▄▅▆▇█")

var (
	barLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	barMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	barHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
)

// LevelSource is the producer-side level meter. *scope.Tap[float32]
// satisfies it.
type LevelSource interface {
	Latest(dst []float32) (seq uint64, ok bool)
	Len() int
}

// FrameSource provides the consumer-side views. *scope.Scope satisfies it.
type FrameSource interface {
	Frame() scope.Frame
}

type tickMsg time.Time

// MeterModel draws the live level meter and the peak history.
type MeterModel struct {
	title    string
	levels   LevelSource
	frames   FrameSource
	interval time.Duration
	width    int

	meter []float32 // newest meter snapshot, oldest bucket first
	frame scope.Frame
}

// NewMeterModel creates a meter redrawing every interval. frames may be nil.
func NewMeterModel(title string, levels LevelSource, frames FrameSource, interval time.Duration) MeterModel {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return MeterModel{
		title:    title,
		levels:   levels,
		frames:   frames,
		interval: interval,
		width:    defaultWidth,
		meter:    make([]float32, levels.Len()),
	}
}

func (m MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the redraw ticker.
func (m MeterModel) Init() tea.Cmd {
	return m.tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, labelWidth+readoutWidth+10)
	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
	case tickMsg:
		m.levels.Latest(m.meter)
		if m.frames != nil {
			m.frame = m.frames.Frame()
		}
		return m, m.tick()
	}
	return m, nil
}

// View renders the meter.
func (m MeterModel) View() string {
	barWidth := m.width - labelWidth - readoutWidth
	var current, hold float32
	if n := len(m.meter); n > 0 {
		current = m.meter[n-1]
		hold = slices.Max(m.meter)
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	writeLevel(&sb, "Peak", current, barWidth)
	writeLevel(&sb, "Hold", hold, barWidth)

	if f := m.frame; len(f.Peaks) > 0 {
		if n := len(f.Levels); n > 0 {
			writeLevel(&sb, "RMS", f.Levels[n-1], barWidth)
		}
		fmt.Fprintf(&sb, "\n%-*s%s\n", labelWidth, "History", sparkline(f.Peaks, m.width-labelWidth))
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%.0f Hz • %.0fs window • frame %d • dropped %d",
			f.SampleRate, f.Window, f.Seq, f.Dropped)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

func writeLevel(sb *strings.Builder, label string, v float32, width int) {
	db := toDB(v)
	fmt.Fprintf(sb, "%-*s%s %7.1f dBFS\n", labelWidth, label, levelBar(db, width), db)
}

// toDB converts a linear amplitude to dBFS, floored at floorDB.
func toDB(v float32) float64 {
	a := math.Abs(float64(v))
	if a <= 0 {
		return floorDB
	}
	return max(20*math.Log10(a), floorDB)
}

// levelBar draws db on a floorDB..0 scale, coloured by zone.
func levelBar(db float64, width int) string {
	width = max(width, 1)
	filled := int(math.Round((db - floorDB) / -floorDB * float64(width)))
	filled = min(max(filled, 0), width)

	style := barLow
	switch {
	case db > -6:
		style = barHigh
	case db > -18:
		style = barMid
	}
	return style.Render(strings.Repeat("█", filled)) + strings.Repeat("·", width-filled)
}

// sparkline reduces values to at most width columns, keeping the maximum of
// each group, and maps the dB level of each column to a block glyph.
func sparkline(values []float32, width int) string {
	if len(values) == 0 || width < 1 {
		return ""
	}
	cols := min(width, len(values))
	out := make([]rune, cols)
	for c := range cols {
		lo, hi := c*len(values)/cols, (c+1)*len(values)/cols
		v := slices.Max(values[lo:hi])
		level := (toDB(v) - floorDB) / -floorDB
		out[c] = sparks[min(int(level*float64(len(sparks))), len(sparks)-1)]
	}
	return string(out)
}
