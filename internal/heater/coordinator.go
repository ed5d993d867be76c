package heater

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/brodvik/cabinheat/internal/logging"
	"github.com/brodvik/cabinheat/internal/protocol"
)

// Coordinator timing defaults
const (
	// DefaultPollInterval is the periodic status refresh cadence.
	DefaultPollInterval = 5 * time.Second

	// DefaultSettleDelay is the pause between a command write and the
	// forced refresh that follows it; the box needs a moment before its
	// status reflects the write.
	DefaultSettleDelay = 1 * time.Second

	// DefaultStatusRetries is how many times a status fetch is reissued
	// when the answer turns out to be a command echo or a corrupt frame.
	DefaultStatusRetries = 3

	// DefaultRetryPause separates those reissues.
	DefaultRetryPause = 500 * time.Millisecond
)

// Options tune the coordinator. The zero value selects all defaults.
type Options struct {
	PollInterval    time.Duration
	ResponseTimeout time.Duration
	SettleDelay     time.Duration
	StatusRetries   int
	RetryPause      time.Duration
	Pacing          time.Duration

	// DisableLevelCorrection turns off the prefer-last-commanded-level
	// decode policy for firmware that does echo its level register.
	DisableLevelCorrection bool
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.StatusRetries <= 0 {
		o.StatusRetries = DefaultStatusRetries
	}
	if o.RetryPause <= 0 {
		o.RetryPause = DefaultRetryPause
	}
}

// levelMemory remembers the most recent level successfully written to
// the device. It feeds the codec's level correction policy and is only
// updated on a verified successful level-set.
type levelMemory struct {
	mu    sync.Mutex
	level byte
	ok    bool
}

// LastCommandedLevel implements protocol.LevelSource
func (m *levelMemory) LastCommandedLevel() (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level, m.ok
}

func (m *levelMemory) record(level byte) {
	m.mu.Lock()
	m.level = level
	m.ok = true
	m.mu.Unlock()
}

// Coordinator reconciles what the user wants (connected, on, a target
// temperature or level) against what the device last reported. It owns
// one Link and one Queue, publishes snapshots for observers, and
// serializes its background poll against user commands with a single
// mutex: the wireless stack is not re-entrant per connection, so the
// queue's single-flight worker alone is not enough once connects and
// disconnects enter the picture.
type Coordinator struct {
	// mu is the mutual-exclusion token shared by the poll tick and every
	// user command. Nothing touches the link outside it.
	mu sync.Mutex

	link    Link
	queue   *Queue
	codec   protocol.Codec
	auth    protocol.AuthState
	address string
	opts    Options

	// desired is the user's connection intent, independent of the actual
	// transport state. Mutated only by Connect and Disconnect.
	desired atomic.Bool

	levels levelMemory

	snapMu   sync.RWMutex
	snapshot Snapshot

	subMu sync.Mutex
	subs  map[int]chan Snapshot
	subID int

	closeOnce sync.Once
}

// New creates a coordinator over the link, speaking the given protocol
// version. The desired connection intent starts as connected; the first
// Run tick or user command establishes the session.
func New(link Link, address string, version protocol.Version, auth protocol.AuthState, opts Options) (*Coordinator, error) {
	opts.applyDefaults()

	c := &Coordinator{
		link:     link,
		address:  address,
		auth:     auth,
		opts:     opts,
		snapshot: defaultSnapshot(ConnectionInitializing),
		subs:     make(map[int]chan Snapshot),
	}

	codecOpts := []protocol.Option{}
	if !opts.DisableLevelCorrection {
		codecOpts = append(codecOpts, protocol.WithLevelMemory(&c.levels))
	}
	codec, err := protocol.NewCodec(version, codecOpts...)
	if err != nil {
		return nil, err
	}
	c.codec = codec

	c.queue = NewQueue(link, opts.Pacing)
	c.desired.Store(true)
	return c, nil
}

// Run drives the periodic poll until ctx is cancelled. The first tick
// fires immediately so observers do not wait a full interval for the
// initial state.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Close stops the queue, failing all pending commands with Cancelled,
// and tears down the session. Safe to call twice.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.queue.Stop()
		if c.link.IsConnected() {
			c.link.Disconnect()
		}
		c.subMu.Lock()
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = make(map[int]chan Snapshot)
		c.subMu.Unlock()
	})
}

// LatestSnapshot returns the most recently published snapshot. Never
// blocks and never fails; before the first poll it is the offline seed
// tagged Initializing.
func (c *Coordinator) LatestSnapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Subscribe registers a snapshot observer. Every published snapshot is
// delivered on the returned channel; slow consumers lose intermediate
// snapshots rather than blocking the coordinator. The cancel function
// unregisters and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.subID
	c.subID++
	ch := make(chan Snapshot, 4)
	c.subs[id] = ch

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Coordinator) publish(snap Snapshot) {
	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()

	c.subMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest buffered snapshot to make room; the
			// subscriber only ever needs the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	c.subMu.Unlock()
}

// Connect records the intent to be connected and attempts to establish
// the session immediately. A failure leaves the intent in place; the
// next poll tick retries.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.desired.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(ctx); err != nil {
		c.publish(c.LatestSnapshot().withError(err))
		return err
	}
	return nil
}

// Disconnect records the intent to stay disconnected and tears the
// session down. Best-effort: it never fails visibly.
func (c *Coordinator) Disconnect() {
	c.desired.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link.IsConnected() {
		c.link.Disconnect()
	}
	c.publish(defaultSnapshot(ConnectionDisconnected))
}

// Refresh performs one poll tick: reconcile the desired connection state
// against the actual one, fetch status, publish. Failures are recovered
// locally; the returned snapshot is what observers now see and the
// polling path never raises.
func (c *Coordinator) Refresh(ctx context.Context) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Coordinator) refreshLocked(ctx context.Context) Snapshot {
	if !c.desired.Load() {
		// User wants us offline. No network I/O beyond tearing down a
		// session that should not exist.
		if c.link.IsConnected() {
			c.link.Disconnect()
		}
		snap := defaultSnapshot(ConnectionDisconnected)
		c.publish(snap)
		return snap
	}

	if err := c.ensureConnectedLocked(ctx); err != nil {
		return c.recoverLocked(err)
	}

	st, err := c.fetchStatusLocked(ctx)
	if err != nil {
		return c.recoverLocked(err)
	}

	snap := snapshotFromStatus(st)
	c.publish(snap)
	return snap
}

// recoverLocked handles a polling failure: disconnect to clear
// desynchronized session state, then republish the previous snapshot
// annotated with a truncated error so observers keep a last-known view.
func (c *Coordinator) recoverLocked(err error) Snapshot {
	logging.Warn("Poll failed",
		zap.String("address", c.address),
		zap.Error(err),
	)
	if c.link.IsConnected() {
		c.link.Disconnect()
	}
	snap := c.LatestSnapshot().withError(err)
	c.publish(snap)
	return snap
}

// ensureConnectedLocked connects if the session is down, publishing an
// interim Connecting snapshot first so observers see progress.
func (c *Coordinator) ensureConnectedLocked(ctx context.Context) error {
	if c.link.IsConnected() {
		return nil
	}

	c.publish(c.LatestSnapshot().withConnection(ConnectionConnecting))
	if err := c.link.Connect(ctx); err != nil {
		return ClassifyError(err, c.address)
	}
	return nil
}

// fetchStatusLocked requests a status frame through the queue. The
// response wait has no correlation token, so the next notification may
// be the echo of a just-issued command or a frame mangled by the link;
// both are retried a bounded number of times.
func (c *Coordinator) fetchStatusLocked(ctx context.Context) (*protocol.Status, error) {
	frame, err := c.codec.EncodeCommand(c.auth, protocol.CmdGetStatus, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.StatusRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.opts.RetryPause):
			case <-ctx.Done():
				return nil, ClassifyError(ctx.Err(), c.address)
			}
		}

		payload, err := c.queue.Submit(ctx, frame, true, c.opts.ResponseTimeout)
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			lastErr = NewResponseTimeoutError()
			continue
		}

		msg, err := c.codec.Decode(payload)
		if err != nil {
			logging.Debug("Undecodable status response",
				zap.String("address", c.address),
				zap.Error(err),
			)
			lastErr = NewInvalidFrameError(err)
			continue
		}

		switch m := msg.(type) {
		case *protocol.Status:
			return m, nil
		case *protocol.CommandEcho:
			// Collision with a just-issued command's echo; ask again.
			logging.Debug("Status fetch answered by command echo",
				zap.String("echo", m.String()),
			)
			lastErr = NewInvalidFrameError(fmt.Errorf("expected status, got %s", m))
		}
	}
	return nil, lastErr
}

// SetPower switches the heater on or off
func (c *Coordinator) SetPower(ctx context.Context, on bool) error {
	var data byte
	if on {
		data = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandLocked(ctx, protocol.CmdPower, data, 0)
}

// SetTemperature sets the thermostat target in °C. Range [8,36];
// out-of-range values are rejected locally without any I/O.
func (c *Coordinator) SetTemperature(ctx context.Context, celsius int) error {
	if celsius < protocol.MinTemperature || celsius > protocol.MaxTemperature {
		return NewInvalidArgumentError(fmt.Sprintf(
			"temperature %d°C out of range [%d,%d]",
			celsius, protocol.MinTemperature, protocol.MaxTemperature))
	}

	id, ok := c.pickCommand(protocol.CmdSetValue, protocol.CmdSetTemp)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandLocked(ctx, id, byte(celsius), 0)
}

// SetLevel sets the power level. Range [1,10]; out-of-range values are
// rejected locally without any I/O. On protocol variants without a level
// register this is a documented no-op.
func (c *Coordinator) SetLevel(ctx context.Context, level int) error {
	if level < protocol.MinLevel || level > protocol.MaxLevel {
		return NewInvalidArgumentError(fmt.Sprintf(
			"level %d out of range [%d,%d]",
			level, protocol.MinLevel, protocol.MaxLevel))
	}

	if !c.codec.Supports(protocol.CmdSetValue) {
		logging.Debug("Level not supported by protocol version",
			zap.String("version", c.codec.Version().String()))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The level register is zero-based on the wire; decode adds the one
	// back (run modes 0 and 2).
	if err := c.commandLocked(ctx, protocol.CmdSetValue, byte(level-1), 0); err != nil {
		return err
	}

	// Only a verified successful write updates the correction memory.
	c.levels.record(byte(level))
	return nil
}

// SetFanSpeed sets the fan speed. Range [1,5]; a documented no-op on
// protocol variants without a fan command.
func (c *Coordinator) SetFanSpeed(ctx context.Context, speed int) error {
	if speed < protocol.MinFanSpeed || speed > protocol.MaxFanSpeed {
		return NewInvalidArgumentError(fmt.Sprintf(
			"fan speed %d out of range [%d,%d]",
			speed, protocol.MinFanSpeed, protocol.MaxFanSpeed))
	}

	if !c.codec.Supports(protocol.CmdSetFan) {
		logging.Debug("Fan speed not supported by protocol version",
			zap.String("version", c.codec.Version().String()))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandLocked(ctx, protocol.CmdSetFan, byte(speed), 0)
}

// SetMode selects the run mode: 0 and 1 are level modes, 2 is the
// thermostat mode. A documented no-op on protocol variants without a
// mode register.
func (c *Coordinator) SetMode(ctx context.Context, mode int) error {
	if mode < protocol.MinRunMode || mode > protocol.MaxRunMode {
		return NewInvalidArgumentError(fmt.Sprintf(
			"run mode %d out of range [%d,%d]",
			mode, protocol.MinRunMode, protocol.MaxRunMode))
	}

	if !c.codec.Supports(protocol.CmdSetMode) {
		logging.Debug("Run mode not supported by protocol version",
			zap.String("version", c.codec.Version().String()))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandLocked(ctx, protocol.CmdSetMode, byte(mode), 0)
}

// pickCommand returns the first command id the codec can encode
func (c *Coordinator) pickCommand(candidates ...protocol.CommandID) (protocol.CommandID, bool) {
	for _, id := range candidates {
		if c.codec.Supports(id) {
			return id, true
		}
	}
	return 0, false
}

// commandLocked executes one user command: ensure connected, write
// through the queue, settle, then force an out-of-cycle refresh so
// observers see the new state before the next poll tick. Unlike polls,
// failures surface to the caller after the disconnect-to-reset cleanup.
func (c *Coordinator) commandLocked(ctx context.Context, id protocol.CommandID, dataLo, dataHi byte) error {
	if err := c.ensureConnectedLocked(ctx); err != nil {
		c.publish(c.LatestSnapshot().withError(err))
		return err
	}

	frame, err := c.codec.EncodeCommand(c.auth, id, dataLo, dataHi)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	logging.Info("Issuing command",
		zap.String("address", c.address),
		zap.String("command", id.String()),
		zap.Uint8("data_lo", dataLo),
		zap.Uint8("data_hi", dataHi),
	)

	if _, err := c.queue.Submit(ctx, frame, false, 0); err != nil {
		// The session may be desynchronized after a failed write; drop
		// it so the next operation starts clean.
		if c.link.IsConnected() {
			c.link.Disconnect()
		}
		devErr := ClassifyError(err, c.address)
		c.publish(c.LatestSnapshot().withError(devErr))
		return devErr
	}

	select {
	case <-time.After(c.opts.SettleDelay):
	case <-ctx.Done():
		return ClassifyError(ctx.Err(), c.address)
	}

	// Forced refresh; its own failures are recovered into the snapshot
	// and do not fail the command, which has already been written.
	c.refreshLocked(ctx)
	return nil
}
