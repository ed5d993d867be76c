package transport

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{State(9), "State(9)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession("AA:BB:CC:DD:EE:FF")

	if s.Address() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address() = %q, want AA:BB:CC:DD:EE:FF", s.Address())
	}
	if s.State() != StateDisconnected {
		t.Errorf("new session state = %v, want %v", s.State(), StateDisconnected)
	}
	if s.IsConnected() {
		t.Error("new session should not report connected")
	}
	if s.DiscoveryTimeout != DefaultDiscoveryTimeout {
		t.Errorf("DiscoveryTimeout = %v, want %v", s.DiscoveryTimeout, DefaultDiscoveryTimeout)
	}
	if s.Notifications() != nil {
		t.Error("new session should have no notification channel yet")
	}
}
