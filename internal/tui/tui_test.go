// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"scope/internal/audio"
	"scope/internal/scope"

	tea "github.com/charmbracelet/bubbletea"
)

var testDevices = []audio.Device{
	{ID: 0, Name: "Built-in Microphone", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{ID: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{ID: 2, Name: "USB Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 192000},
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func send(m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func loadedPicker(t *testing.T) tea.Model {
	t.Helper()
	m := NewDeviceListModel(func() ([]audio.Device, error) { return testDevices, nil })
	msg := m.Init()()
	got, _ := send(m, tea.WindowSizeMsg{Width: 80, Height: 30}, msg)
	return got
}

func TestDeviceListShowsInputsOnly(t *testing.T) {
	view := loadedPicker(t).View()
	if !strings.Contains(view, "Built-in Microphone") || !strings.Contains(view, "USB Interface") {
		t.Errorf("input devices missing from view:\n%s", view)
	}
	if strings.Contains(view, "Speakers") {
		t.Errorf("output-only device listed:\n%s", view)
	}
}

func TestDeviceListSelection(t *testing.T) {
	m, cmd := send(loadedPicker(t), keyMsg("down"), keyMsg("enter"))
	if !strings.Contains(m.View(), "Configure Device: USB Interface") {
		t.Fatalf("config screen not shown:\n%s", m.View())
	}
	if cmd != nil {
		t.Error("opening the config screen should not quit")
	}

	// 192000 is appended after the common rates and preselected.
	m, _ = send(m, keyMsg("up"))
	m, cmd = send(m, keyMsg("enter"))
	sel := m.(DeviceListModel).Selection()
	if !sel.Confirmed || sel.DeviceID != 2 || sel.SampleRate != 96000 {
		t.Errorf("Selection() = %+v, want device 2 at 96000 Hz", sel)
	}
	if cmd == nil {
		t.Fatal("confirming should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("confirm command = %T, want tea.QuitMsg", cmd())
	}
}

func TestDeviceListBackAndQuit(t *testing.T) {
	m, _ := send(loadedPicker(t), keyMsg("enter"), keyMsg("esc"))
	if !strings.Contains(m.View(), "Input Devices") {
		t.Errorf("esc did not return to the list:\n%s", m.View())
	}
	m, cmd := send(m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if sel := m.(DeviceListModel).Selection(); sel.Confirmed {
		t.Errorf("quitting confirmed a selection: %+v", sel)
	}
}

func TestDeviceListFetchError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no host") })
	got, _ := send(m, m.Init()())
	if !strings.Contains(got.View(), "no host") {
		t.Errorf("error not shown:\n%s", got.View())
	}
}

type fakeLevels struct {
	values []float32
	seq    uint64
}

func (f *fakeLevels) Latest(dst []float32) (uint64, bool) {
	f.seq++
	copy(dst, f.values)
	return f.seq, true
}

func (f *fakeLevels) Len() int { return len(f.values) }

type fakeFrames struct{ frame scope.Frame }

func (f fakeFrames) Frame() scope.Frame { return f.frame }

func TestMeterTickPollsSources(t *testing.T) {
	levels := &fakeLevels{values: []float32{0.5, 1, 0.1}}
	frames := fakeFrames{frame: scope.Frame{
		Seq:        3,
		SampleRate: 48000,
		Window:     10,
		Peaks:      []float32{0.001, 0.5, 1},
		Levels:     []float32{0.25},
		Dropped:    4,
	}}

	m := NewMeterModel("Live Meter", levels, frames, time.Millisecond)
	got, cmd := send(m, tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}

	view := got.View()
	for _, want := range []string{"Live Meter", "-20.0 dBFS", "0.0 dBFS", "-12.0 dBFS", "48000 Hz", "dropped 4"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestToDB(t *testing.T) {
	tests := []struct {
		v    float32
		want float64
	}{
		{1, 0},
		{-1, 0},
		{0.1, -20},
		{0, floorDB},
		{1e-9, floorDB},
	}
	for _, tt := range tests {
		if got := toDB(tt.v); absDiff(got, tt.want) > 1e-5 {
			t.Errorf("toDB(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline(nil, 10); got != "" {
		t.Errorf("sparkline(nil) = %q, want empty", got)
	}

	got := sparkline([]float32{0, 0, 1, 1}, 2)
	if got != "▁█" {
		t.Errorf("sparkline = %q, want ▁█", got)
	}

	long := make([]float32, 800)
	if n := utf8.RuneCountInString(sparkline(long, 72)); n != 72 {
		t.Errorf("sparkline width = %d, want 72", n)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
