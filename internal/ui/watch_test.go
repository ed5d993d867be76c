package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brodvik/cabinheat/internal/heater"
)

type stubController struct {
	mu    sync.Mutex
	snap  heater.Snapshot
	calls []string
}

func (s *stubController) LatestSnapshot() heater.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubController) Refresh(context.Context) heater.Snapshot {
	return s.record("refresh")
}

func (s *stubController) SetPower(_ context.Context, on bool) error {
	if on {
		s.record("power on")
	} else {
		s.record("power off")
	}
	return nil
}

func (s *stubController) SetTemperature(_ context.Context, c int) error {
	s.record("temp")
	return nil
}

func (s *stubController) SetLevel(_ context.Context, l int) error {
	s.record("level")
	return nil
}

func (s *stubController) record(call string) heater.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.snap
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestWatchPowerToggle(t *testing.T) {
	ctrl := &stubController{snap: heater.Snapshot{On: false}}
	m := NewWatchModel(ctrl, "Cabin", "AA:BB:CC:DD:EE:FF")

	next, cmd := m.Update(keyPress('p'))
	wm := next.(WatchModel)

	if wm.pending != "turning on" {
		t.Errorf("pending = %q, want 'turning on'", wm.pending)
	}
	if cmd == nil {
		t.Fatal("power key produced no command")
	}

	// Running the command issues exactly one controller call.
	msg := cmd()
	done, ok := msg.(cmdDoneMsg)
	if !ok {
		t.Fatalf("command returned %T, want cmdDoneMsg", msg)
	}
	if done.err != nil {
		t.Errorf("cmdDoneMsg.err = %v", done.err)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.calls) != 1 || ctrl.calls[0] != "power on" {
		t.Errorf("controller calls = %v, want [power on]", ctrl.calls)
	}
}

func TestWatchIgnoresKeysWhileBusy(t *testing.T) {
	ctrl := &stubController{}
	m := NewWatchModel(ctrl, "Cabin", "AA:BB:CC:DD:EE:FF")
	m.pending = "turning on"

	_, cmd := m.Update(keyPress('p'))
	if cmd != nil {
		t.Error("busy model should swallow command keys")
	}
}

func TestWatchTemperatureStepsStayInRange(t *testing.T) {
	ctrl := &stubController{snap: heater.Snapshot{TargetTemperature: 36}}
	m := NewWatchModel(ctrl, "Cabin", "AA:BB:CC:DD:EE:FF")

	// Already at the maximum; stepping up is a no-op, no command issued.
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if cmd != nil {
		t.Error("temp + at max should not issue a command")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if cmd == nil {
		t.Fatal("temp - should issue a command")
	}
	if wm := next.(WatchModel); !strings.Contains(wm.pending, "35") {
		t.Errorf("pending = %q, want a 35°C step", wm.pending)
	}
}

func TestWatchTickRereadsSnapshot(t *testing.T) {
	ctrl := &stubController{}
	m := NewWatchModel(ctrl, "Cabin", "AA:BB:CC:DD:EE:FF")

	ctrl.mu.Lock()
	ctrl.snap = heater.Snapshot{TargetLevel: 9}
	ctrl.mu.Unlock()

	next, cmd := m.Update(tickMsg(time.Now()))
	if wm := next.(WatchModel); wm.snap.TargetLevel != 9 {
		t.Errorf("tick did not re-read the snapshot")
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestDescribeMode(t *testing.T) {
	if got := describeMode(2); got != "thermostat" {
		t.Errorf("describeMode(2) = %q", got)
	}
	if got := describeMode(0); got != "level (0)" {
		t.Errorf("describeMode(0) = %q", got)
	}
}
