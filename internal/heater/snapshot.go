package heater

import (
	"fmt"
	"time"

	"github.com/brodvik/cabinheat/internal/protocol"
)

// ConnectionState communicates session health alongside the decoded
// device fields. It is always present in a snapshot, so observers keep a
// visible last-known state even when the link is unusable.
type ConnectionState int

const (
	// ConnectionInitializing tags the seed snapshot before the first poll
	ConnectionInitializing ConnectionState = iota
	// ConnectionConnecting tags interim snapshots while a connect is in progress
	ConnectionConnecting
	// ConnectionConnected tags snapshots backed by a fresh status fetch
	ConnectionConnected
	// ConnectionDisconnected tags snapshots after an explicit user disconnect
	ConnectionDisconnected
	// ConnectionError tags snapshots republished after a recovered failure
	ConnectionError
)

// String returns a human-readable name for the connection state
func (c ConnectionState) String() string {
	switch c {
	case ConnectionInitializing:
		return "initializing"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionError:
		return "error"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(c))
	}
}

// MarshalText serializes the state as its name for JSON consumers
func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Snapshot is the coordinator's published view of the heater: the last
// decoded device status plus connection health. Field ranges are
// guaranteed by the codec; a published snapshot never carries an
// out-of-range level or temperature.
type Snapshot struct {
	On                 bool              `json:"on"`
	RunState           protocol.RunState `json:"run_state"`
	RunStateName       string            `json:"run_state_name"`
	ErrorCode          byte              `json:"error_code"`
	RunMode            byte              `json:"run_mode"`
	TargetTemperature  int               `json:"target_temperature"`
	TargetLevel        int               `json:"target_level"`
	FanSpeed           int               `json:"fan_speed,omitempty"`
	RoomTemperature    float64           `json:"room_temperature"`
	ChamberTemperature float64           `json:"chamber_temperature"`
	Voltage            float64           `json:"voltage,omitempty"`
	Connection         ConnectionState   `json:"connection"`
	ConnectionError    string            `json:"connection_error,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// defaultSnapshot is the offline placeholder published before any status
// has been fetched: heater off at the minimum temperature and level.
func defaultSnapshot(conn ConnectionState) Snapshot {
	return Snapshot{
		RunState:          protocol.RunStateOff,
		RunStateName:      protocol.RunStateOff.String(),
		TargetTemperature: protocol.MinTemperature,
		TargetLevel:       protocol.MinLevel,
		Connection:        conn,
		UpdatedAt:         time.Now(),
	}
}

// snapshotFromStatus converts a decoded status frame into a published
// snapshot tagged Connected.
func snapshotFromStatus(st *protocol.Status) Snapshot {
	return Snapshot{
		On:                 st.On(),
		RunState:           st.RunState,
		RunStateName:       st.RunState.String(),
		ErrorCode:          st.ErrorCode,
		RunMode:            st.RunMode,
		TargetTemperature:  int(st.TargetTemperature),
		TargetLevel:        int(st.TargetLevel),
		FanSpeed:           int(st.FanSpeed),
		RoomTemperature:    st.RoomTemperature,
		ChamberTemperature: st.ChamberTemperature,
		Voltage:            st.Voltage,
		Connection:         ConnectionConnected,
		UpdatedAt:          time.Now(),
	}
}

// withConnection returns a copy of the snapshot retagged with the given
// connection state, clearing any stale error annotation.
func (s Snapshot) withConnection(conn ConnectionState) Snapshot {
	s.Connection = conn
	s.ConnectionError = ""
	s.UpdatedAt = time.Now()
	return s
}

// withError returns a copy of the snapshot retagged as Error with a
// truncated message, preserving the last-known device fields.
func (s Snapshot) withError(err error) Snapshot {
	s.Connection = ConnectionError
	s.ConnectionError = ShortMessage(err, 120)
	s.UpdatedAt = time.Now()
	return s
}
