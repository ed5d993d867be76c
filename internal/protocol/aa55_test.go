package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// staticLevels is a LevelSource returning a fixed value.
type staticLevels struct {
	level byte
	ok    bool
}

func (s staticLevels) LastCommandedLevel() (byte, bool) { return s.level, s.ok }

// longFrame builds a minimal valid long status frame. Callers mutate the
// returned slice for specific cases.
func longFrame(state RunState, errCode, mode, temp, level byte) []byte {
	f := make([]byte, LongStatusSize)
	f[0] = FrameMagic1
	f[1] = FrameMagic2
	f[3] = byte(state)
	f[4] = errCode
	f[8] = mode
	f[9] = temp
	f[10] = level
	return f
}

// shortFrame builds a valid short status frame with a correct checksum.
func shortFrame(state RunState, errCode, mode, level, temp byte) []byte {
	f := make([]byte, ShortStatusSize)
	f[0] = FrameMagic1
	f[1] = FrameMagic2
	f[3] = byte(state)
	f[4] = errCode
	f[5] = mode
	f[6] = level
	f[7] = temp
	f[12] = sumChecksum(f[2:12])
	return f
}

// mask applies the notification obfuscation the way the device does.
func mask(clear []byte) []byte {
	out := make([]byte, len(clear)+1)
	out[0] = ObfuscationMarker
	for i, b := range clear {
		out[i+1] = b ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}

func TestAA55EncodeCommand(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tests := []struct {
		name     string
		password uint16
		id       CommandID
		dataLo   byte
		dataHi   byte
		want     []byte
		wantErr  bool
	}{
		{
			name:     "power on with default PIN",
			password: 1234,
			id:       CmdPower,
			dataLo:   1,
			want:     []byte{0xAA, 0x55, 0x0C, 0x22, 0x03, 0x01, 0x00, 0x32},
		},
		{
			name:     "power off with default PIN",
			password: 1234,
			id:       CmdPower,
			want:     []byte{0xAA, 0x55, 0x0C, 0x22, 0x03, 0x00, 0x00, 0x31},
		},
		{
			name:     "get status",
			password: 1234,
			id:       CmdGetStatus,
			want:     []byte{0xAA, 0x55, 0x0C, 0x22, 0x01, 0x00, 0x00, 0x2F},
		},
		{
			name:     "set value level 7",
			password: 1234,
			id:       CmdSetValue,
			dataLo:   7,
			want:     []byte{0xAA, 0x55, 0x0C, 0x22, 0x04, 0x07, 0x00, 0x39},
		},
		{
			name:     "set mode thermostat",
			password: 1234,
			id:       CmdSetMode,
			dataLo:   2,
			want:     []byte{0xAA, 0x55, 0x0C, 0x22, 0x02, 0x02, 0x00, 0x32},
		},
		{
			name:     "zero PIN",
			password: 0,
			id:       CmdPower,
			dataLo:   1,
			want:     []byte{0xAA, 0x55, 0x00, 0x00, 0x03, 0x01, 0x00, 0x04},
		},
		{
			name:     "maximum PIN splits into decimal halves",
			password: 9999,
			id:       CmdGetStatus,
			want:     []byte{0xAA, 0x55, 0x63, 0x63, 0x01, 0x00, 0x00, 0xC7},
		},
		{
			name:     "legacy temperature command rejected",
			password: 1234,
			id:       CmdSetTemp,
			dataLo:   20,
			wantErr:  true,
		},
		{
			name:     "legacy fan command rejected",
			password: 1234,
			id:       CmdSetFan,
			dataLo:   3,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.EncodeCommand(AuthState{Password: tt.password}, tt.id, tt.dataLo, tt.dataHi)

			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeCommand() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if !bytes.Equal(got, tt.want) {
				t.Errorf("frame = % 02X, want % 02X", got, tt.want)
			}

			// Checksum must always be the sum of bytes 2-6 mod 256
			if got[7] != sumChecksum(got[2:7]) {
				t.Errorf("checksum = 0x%02x, want 0x%02x", got[7], sumChecksum(got[2:7]))
			}
		})
	}
}

func TestAA55DecodeLongStatus(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tests := []struct {
		name   string
		frame  []byte
		verify func(t *testing.T, st *Status)
	}{
		{
			name:  "thermostat mode carries temperature and one-based level",
			frame: longFrame(RunStateHeating, 0, 2, 22, 4),
			verify: func(t *testing.T, st *Status) {
				if st.TargetTemperature != 22 {
					t.Errorf("target temperature = %d, want 22", st.TargetTemperature)
				}
				if st.TargetLevel != 5 {
					t.Errorf("target level = %d, want 5", st.TargetLevel)
				}
				if st.RunState != RunStateHeating {
					t.Errorf("run state = %v, want heating", st.RunState)
				}
				if !st.On() {
					t.Error("heating device should report on")
				}
			},
		},
		{
			name:  "mode 0 shifts the level register",
			frame: longFrame(RunStateOff, 0, 0, 0, 2),
			verify: func(t *testing.T, st *Status) {
				if st.TargetLevel != 3 {
					t.Errorf("target level = %d, want 3", st.TargetLevel)
				}
				if st.On() {
					t.Error("off device should not report on")
				}
			},
		},
		{
			name:  "mode 1 uses the level register directly",
			frame: longFrame(RunStateStandby, 0, 1, 0, 7),
			verify: func(t *testing.T, st *Status) {
				if st.TargetLevel != 7 {
					t.Errorf("target level = %d, want 7", st.TargetLevel)
				}
				// No temperature in this mode; clamped to the range floor
				if st.TargetTemperature != MinTemperature {
					t.Errorf("target temperature = %d, want %d", st.TargetTemperature, MinTemperature)
				}
				if st.On() {
					t.Error("standby should not report on")
				}
			},
		},
		{
			name:  "unknown mode falls back to the raw register",
			frame: longFrame(RunStateHeating, 0, 9, 0, 4),
			verify: func(t *testing.T, st *Status) {
				if st.TargetLevel != 4 {
					t.Errorf("target level = %d, want 4", st.TargetLevel)
				}
			},
		},
		{
			name:  "level clamped to upper bound",
			frame: longFrame(RunStateHeating, 0, 0, 0, 200),
			verify: func(t *testing.T, st *Status) {
				if st.TargetLevel != MaxLevel {
					t.Errorf("target level = %d, want %d", st.TargetLevel, MaxLevel)
				}
			},
		},
		{
			name:  "temperature clamped to device range",
			frame: longFrame(RunStateHeating, 0, 2, 99, 4),
			verify: func(t *testing.T, st *Status) {
				if st.TargetTemperature != MaxTemperature {
					t.Errorf("target temperature = %d, want %d", st.TargetTemperature, MaxTemperature)
				}
			},
		},
		{
			name: "voltage and temperatures",
			frame: func() []byte {
				f := longFrame(RunStateHeating, 0, 2, 20, 4)
				f[11] = 0x7B // 123 -> 12.3 V
				f[13] = 0x2C // 300 -> chamber 300 °C
				f[14] = 0x01
				f[15] = 0x15 // room 21 °C
				return f
			}(),
			verify: func(t *testing.T, st *Status) {
				if st.Voltage != 12.3 {
					t.Errorf("voltage = %v, want 12.3", st.Voltage)
				}
				if st.ChamberTemperature != 300 {
					t.Errorf("chamber = %v, want 300", st.ChamberTemperature)
				}
				if st.RoomTemperature != 21 {
					t.Errorf("room = %v, want 21", st.RoomTemperature)
				}
			},
		},
		{
			name: "negative room temperature",
			frame: func() []byte {
				f := longFrame(RunStateHeating, 0, 2, 20, 4)
				f[15] = 0xFB // -5 signed little-endian
				f[16] = 0xFF
				return f
			}(),
			verify: func(t *testing.T, st *Status) {
				if st.RoomTemperature != -5 {
					t.Errorf("room = %v, want -5", st.RoomTemperature)
				}
			},
		},
		{
			name: "extended frame prefers the tenths chamber field",
			frame: func() []byte {
				f := make([]byte, ExtStatusSize)
				copy(f, longFrame(RunStateHeating, 0, 2, 20, 4))
				f[13] = 0x2C // coarse field says 300
				f[14] = 0x01
				f[17] = 0xAE // fine field says 430 tenths = 43.0
				f[18] = 0x01
				return f
			}(),
			verify: func(t *testing.T, st *Status) {
				if st.ChamberTemperature != 43.0 {
					t.Errorf("chamber = %v, want 43.0", st.ChamberTemperature)
				}
			},
		},
		{
			name: "error code surfaces",
			frame: func() []byte {
				return longFrame(RunStateOff, 0x0B, 0, 0, 0)
			}(),
			verify: func(t *testing.T, st *Status) {
				if st.ErrorCode != 0x0B {
					t.Errorf("error code = 0x%02x, want 0x0B", st.ErrorCode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := codec.Decode(tt.frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			st, ok := msg.(*Status)
			if !ok {
				t.Fatalf("Decode() = %T, want *Status", msg)
			}

			// Published values are never out of range
			if st.TargetLevel < MinLevel || st.TargetLevel > MaxLevel {
				t.Errorf("target level %d out of [%d,%d]", st.TargetLevel, MinLevel, MaxLevel)
			}
			if st.TargetTemperature < MinTemperature || st.TargetTemperature > MaxTemperature {
				t.Errorf("target temperature %d out of [%d,%d]", st.TargetTemperature, MinTemperature, MaxTemperature)
			}

			tt.verify(t, st)
		})
	}
}

func TestAA55DecodeShortStatus(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	t.Run("valid frame", func(t *testing.T) {
		f := shortFrame(RunStateHeating, 0, 1, 6, 20)
		f[8] = 0x7B // 12.3 V
		f[10] = 0x16
		f[12] = sumChecksum(f[2:12])

		msg, err := codec.Decode(f)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		st, ok := msg.(*Status)
		if !ok {
			t.Fatalf("Decode() = %T, want *Status", msg)
		}
		if st.RunState != RunStateHeating {
			t.Errorf("run state = %v, want heating", st.RunState)
		}
		if st.TargetLevel != 6 {
			t.Errorf("target level = %d, want 6", st.TargetLevel)
		}
		if st.TargetTemperature != 20 {
			t.Errorf("target temperature = %d, want 20", st.TargetTemperature)
		}
		if st.Voltage != 12.3 {
			t.Errorf("voltage = %v, want 12.3", st.Voltage)
		}
		if st.RoomTemperature != 22 {
			t.Errorf("room = %v, want 22", st.RoomTemperature)
		}
	})

	t.Run("corrupted checksum rejected", func(t *testing.T) {
		f := shortFrame(RunStateHeating, 0, 1, 6, 20)
		f[12] ^= 0xFF

		_, err := codec.Decode(f)
		if err == nil {
			t.Fatal("Decode() expected checksum error")
		}
		if !IsBadChecksum(err) {
			t.Errorf("IsBadChecksum() = false for %v", err)
		}
	})
}

func TestAA55DecodeEcho(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	frame, err := codec.EncodeCommand(AuthState{Password: 1234}, CmdPower, 1, 0)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	msg, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	echo, ok := msg.(*CommandEcho)
	if !ok {
		t.Fatalf("Decode() = %T, want *CommandEcho", msg)
	}
	if echo.CommandID != CmdPower {
		t.Errorf("command = %v, want power", echo.CommandID)
	}
	if echo.DataLo != 1 || echo.DataHi != 0 {
		t.Errorf("data = 0x%02x 0x%02x, want 0x01 0x00", echo.DataLo, echo.DataHi)
	}
	if echo.Kind() != KindCommandEcho {
		t.Errorf("kind = %v, want command_echo", echo.Kind())
	}
}

func TestAA55DecodeObfuscated(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	clear := longFrame(RunStateHeating, 0, 2, 22, 4)
	clear[11] = 0x7B

	want, err := codec.Decode(clear)
	if err != nil {
		t.Fatalf("Decode(clear) error = %v", err)
	}

	got, err := codec.Decode(mask(clear))
	if err != nil {
		t.Fatalf("Decode(masked) error = %v", err)
	}

	ws, gs := want.(*Status), got.(*Status)
	if ws.TargetTemperature != gs.TargetTemperature ||
		ws.TargetLevel != gs.TargetLevel ||
		ws.Voltage != gs.Voltage ||
		ws.RunState != gs.RunState {
		t.Errorf("masked decode = %s, want %s", gs, ws)
	}
}

func TestAA55DecodeRejects(t *testing.T) {
	codec, err := NewCodec(VersionAA55)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tests := []struct {
		name     string
		frame    []byte
		wantKind FrameErrorKind
	}{
		{
			name:     "nil frame",
			frame:    nil,
			wantKind: TooShort,
		},
		{
			name:     "single byte",
			frame:    []byte{0xAA},
			wantKind: TooShort,
		},
		{
			name:     "bare obfuscation marker",
			frame:    []byte{0xDA},
			wantKind: TooShort,
		},
		{
			name: "wrong first magic byte",
			frame: func() []byte {
				f := longFrame(RunStateHeating, 0, 2, 22, 4)
				f[0] = 0x00
				return f
			}(),
			wantKind: BadMagic,
		},
		{
			name: "swapped magic bytes",
			frame: func() []byte {
				f := longFrame(RunStateHeating, 0, 2, 22, 4)
				f[0], f[1] = f[1], f[0]
				return f
			}(),
			wantKind: BadMagic,
		},
		{
			name:     "masked garbage unmasks to wrong magic",
			frame:    append([]byte{ObfuscationMarker}, make([]byte, 16)...),
			wantKind: BadMagic,
		},
		{
			name:     "length between echo and short status",
			frame:    append([]byte{0xAA, 0x55}, make([]byte, 8)...),
			wantKind: TooShort,
		},
		{
			name:     "length between short and long status",
			frame:    append([]byte{0xAA, 0x55}, make([]byte, 13)...),
			wantKind: TooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.frame)
			if err == nil {
				t.Fatal("Decode() expected error")
			}

			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Fatalf("error %v is not a *FrameError", err)
			}
			if fe.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", fe.Kind, tt.wantKind)
			}
		})
	}
}

func TestAA55LevelCorrection(t *testing.T) {
	tests := []struct {
		name      string
		source    LevelSource
		reported  byte
		mode      byte
		wantLevel byte
	}{
		{
			name:      "reported default corrected from memory",
			source:    staticLevels{level: 7, ok: true},
			reported:  1,
			mode:      1,
			wantLevel: 7,
		},
		{
			name:      "non-default report trusted",
			source:    staticLevels{level: 7, ok: true},
			reported:  3,
			mode:      1,
			wantLevel: 3,
		},
		{
			name:      "memory agreeing with report leaves it alone",
			source:    staticLevels{level: 1, ok: true},
			reported:  1,
			mode:      1,
			wantLevel: 1,
		},
		{
			name:      "no recorded write yet",
			source:    staticLevels{ok: false},
			reported:  1,
			mode:      1,
			wantLevel: 1,
		},
		{
			name:      "no source installed",
			source:    nil,
			reported:  1,
			mode:      1,
			wantLevel: 1,
		},
		{
			name:      "correction applies after the mode shift",
			source:    staticLevels{level: 5, ok: true},
			reported:  0, // mode 0 shifts to 1, then memory wins
			mode:      0,
			wantLevel: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.source != nil {
				opts = append(opts, WithLevelMemory(tt.source))
			}
			codec, err := NewCodec(VersionAA55, opts...)
			if err != nil {
				t.Fatalf("NewCodec() error = %v", err)
			}

			msg, err := codec.Decode(longFrame(RunStateHeating, 0, tt.mode, 0, tt.reported))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			st := msg.(*Status)
			if st.TargetLevel != tt.wantLevel {
				t.Errorf("target level = %d, want %d", st.TargetLevel, tt.wantLevel)
			}
		})
	}

	t.Run("short frames corrected too", func(t *testing.T) {
		codec, err := NewCodec(VersionAA55, WithLevelMemory(staticLevels{level: 8, ok: true}))
		if err != nil {
			t.Fatalf("NewCodec() error = %v", err)
		}

		msg, err := codec.Decode(shortFrame(RunStateHeating, 0, 1, 1, 20))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if st := msg.(*Status); st.TargetLevel != 8 {
			t.Errorf("target level = %d, want 8", st.TargetLevel)
		}
	})
}

// Benchmark tests
func BenchmarkAA55EncodeCommand(b *testing.B) {
	codec, _ := NewCodec(VersionAA55)
	auth := AuthState{Password: 1234}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.EncodeCommand(auth, CmdGetStatus, 0, 0)
	}
}

func BenchmarkAA55DecodeLongStatus(b *testing.B) {
	codec, _ := NewCodec(VersionAA55)
	frame := longFrame(RunStateHeating, 0, 2, 22, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.Decode(frame)
	}
}

func BenchmarkAA55DecodeObfuscated(b *testing.B) {
	codec, _ := NewCodec(VersionAA55)
	frame := mask(longFrame(RunStateHeating, 0, 2, 22, 4))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.Decode(frame)
	}
}
