package bestin

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bestin-bridge/internal/device"
)

// Logger is the minimal logging interface the protocol engine depends on.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine timing defaults, tuned for the half-duplex RS-485 bus.
const (
	defaultRetryLimit   = 10
	defaultReadSize     = 1024
	defaultPollInterval = 20 * time.Millisecond
	defaultIdleInterval = 100 * time.Millisecond
	defaultTxGap        = 20 * time.Millisecond
	defaultMinSendWait  = 10 * time.Millisecond
	defaultEventBuffer  = 64

	// maxCarry bounds the partial-frame carry buffer between reads.
	maxCarry = 4096

	// backoffFactor grows the retransmit delay geometrically per attempt.
	backoffFactor = 1.1
)

// Retransmit delay tables by bus bit rate. Dialect-3 installations run the
// bus at 38400 baud; everything else at 9600.
var (
	sendDelays9600 = [...]time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}
	sendDelays38400 = [...]time.Duration{
		2 * time.Millisecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}
)

// EventKind discriminates engine events.
type EventKind uint8

const (
	// EventStateChanged reports a device whose state differs from the
	// registry's previous value.
	EventStateChanged EventKind = iota

	// EventDialectDetected reports the EC dialect implied by observed
	// traffic, emitted when it differs from the engine's current dialect.
	EventDialectDetected

	// EventCommandAcked reports a command confirmed by a matching prompt
	// or response frame.
	EventCommandAcked

	// EventCommandFailed reports a command dropped after encode failure,
	// send failure, or retry exhaustion.
	EventCommandFailed
)

// Event is one engine occurrence delivered on the Events channel.
type Event struct {
	Kind EventKind

	// Device is a snapshot of the affected registry record for
	// EventStateChanged.
	Device device.Record

	// Dialect is set for EventDialectDetected.
	Dialect Dialect

	// Command is set for EventCommandAcked and EventCommandFailed.
	Command Command

	// Attempts is the number of transmissions made for the command events.
	Attempts int

	// Err describes the failure for EventCommandFailed.
	Err error
}

// Stats is a snapshot of engine counters.
type Stats struct {
	FramesReceived  uint64
	FramesDiscarded uint64
	ReadingsDecoded uint64
	CommandsSent    uint64
	CommandsAcked   uint64
	CommandsFailed  uint64
	EventsDropped   uint64
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Transport is the bus connection. Required.
	Transport Transport

	// Registry receives decoded readings. Required.
	Registry *device.Registry

	// Dialect is the persisted EC dialect, if known from a prior run.
	Dialect Dialect

	// RetryLimit is the transmission ceiling per command. Default 10.
	RetryLimit int

	// ReadSize is the per-poll read buffer size. Default 1024.
	ReadSize int

	// PollInterval spaces receive polls while traffic flows. Default 20ms.
	PollInterval time.Duration

	// IdleInterval spaces polls while disconnected or erroring. Default 100ms.
	IdleInterval time.Duration

	// TxGap is the quiet period before each transmission. Default 20ms.
	TxGap time.Duration

	// MinSendWait floors the retransmit delay. Default 10ms.
	MinSendWait time.Duration

	// EventBuffer is the Events channel capacity. Default 64. Events are
	// dropped (and counted) when the consumer falls behind.
	EventBuffer int

	// Logger for engine diagnostics. Optional.
	Logger Logger
}

// queuedCommand is a Command waiting in the FIFO with its retry state.
type queuedCommand struct {
	cmd      Command
	seq      byte
	attempts int
}

// Engine runs the half-duplex send/receive machinery of the bus.
//
// One goroutine polls the transport, splits the stream into frames, drops
// checksum failures, decodes response and prompt frames into readings, and
// upserts them into the device registry. A second goroutine services the
// command queue: exactly one command is in flight at a time, retransmitted
// with geometric backoff until a matching prompt or response confirms it
// or the retry ceiling removes it.
//
// No fault in either loop escapes: decode and send errors are logged (or
// surfaced as events) and the loops keep running.
type Engine struct {
	transport Transport
	registry  *device.Registry
	decoder   *Decoder
	logger    Logger

	retryLimit   int
	readSize     int
	pollInterval time.Duration
	idleInterval time.Duration
	txGap        time.Duration
	minSendWait  time.Duration

	dialect atomic.Value // Dialect
	lastSeq atomic.Uint32

	queueMu sync.Mutex
	queue   []*queuedCommand

	events chan Event

	framesReceived  atomic.Uint64
	framesDiscarded atomic.Uint64
	readingsDecoded atomic.Uint64
	commandsSent    atomic.Uint64
	commandsAcked   atomic.Uint64
	commandsFailed  atomic.Uint64
	eventsDropped   atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an Engine from opts. Zero-valued timing fields take
// their defaults.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = defaultRetryLimit
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.TxGap <= 0 {
		opts.TxGap = defaultTxGap
	}
	if opts.MinSendWait <= 0 {
		opts.MinSendWait = defaultMinSendWait
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	e := &Engine{
		transport:    opts.Transport,
		registry:     opts.Registry,
		decoder:      NewDecoder(logger),
		logger:       logger,
		retryLimit:   opts.RetryLimit,
		readSize:     opts.ReadSize,
		pollInterval: opts.PollInterval,
		idleInterval: opts.IdleInterval,
		txGap:        opts.TxGap,
		minSendWait:  opts.MinSendWait,
		events:       make(chan Event, opts.EventBuffer),
		done:         make(chan struct{}),
	}
	e.dialect.Store(opts.Dialect)
	return e
}

// Start launches the receive and send loops. The loops run until Stop is
// called; ctx only bounds the initial connection attempt.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.transport.Connect(ctx); err != nil {
		// The transport reconnects lazily; a cold bus at startup is not
		// fatal.
		e.logger.Warn("initial bus connection failed, will retry", "error", err)
	}

	e.wg.Add(2)
	go e.receiveLoop()
	go e.sendLoop()
	return nil
}

// Stop terminates both loops, waits for them, and closes the transport
// and the Events channel.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		if err := e.transport.Close(); err != nil {
			e.logger.Warn("closing bus transport", "error", err)
		}
		close(e.events)
	})
}

// Events returns the engine event stream. The channel closes on Stop.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Dialect returns the engine's current EC dialect.
func (e *Engine) Dialect() Dialect {
	return e.dialect.Load().(Dialect)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		FramesReceived:  e.framesReceived.Load(),
		FramesDiscarded: e.framesDiscarded.Load(),
		ReadingsDecoded: e.readingsDecoded.Load(),
		CommandsSent:    e.commandsSent.Load(),
		CommandsAcked:   e.commandsAcked.Load(),
		CommandsFailed:  e.commandsFailed.Load(),
		EventsDropped:   e.eventsDropped.Load(),
	}
}

// QueueDepth returns the number of commands waiting or in flight.
func (e *Engine) QueueDepth() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}

// EnqueueCommand appends a command to the FIFO. The command's sequence
// number is seeded from the last frame observed on the bus, keeping the
// wallpad's sequence expectations intact.
//
// Returns:
//   - error: ErrEngineStopped after Stop
func (e *Engine) EnqueueCommand(cmd Command) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}

	qc := &queuedCommand{
		cmd: cmd,
		seq: byte(e.lastSeq.Load()) + 1,
	}
	e.queueMu.Lock()
	e.queue = append(e.queue, qc)
	depth := len(e.queue)
	e.queueMu.Unlock()

	e.logger.Debug("command enqueued",
		"device_type", cmd.DeviceType,
		"sub_type", cmd.SubType,
		"room", cmd.Room,
		"sub", cmd.Sub,
		"queue_depth", depth)
	return nil
}

// receiveLoop polls the transport, frames the stream, and processes every
// checksum-valid frame. Trailing partial frames carry over to the next
// read so frames split across reads reassemble.
func (e *Engine) receiveLoop() {
	defer e.wg.Done()

	var carry []byte
	for {
		select {
		case <-e.done:
			return
		default:
		}

		if !e.transport.IsConnected() {
			carry = nil
			if !e.sleep(e.idleInterval) {
				return
			}
		}

		data, err := e.transport.Receive(e.readSize)
		if err != nil {
			if !e.sleep(e.idleInterval) {
				return
			}
			continue
		}
		if len(data) == 0 {
			if !e.sleep(e.pollInterval) {
				return
			}
			continue
		}

		buf := append(carry, data...)
		frames, rest := ParseFrames(buf)
		if len(rest) > maxCarry {
			e.logger.Warn("discarding oversized partial frame", "size", len(rest))
			rest = nil
		}
		carry = rest

		for _, frame := range frames {
			e.handleFrame(frame)
		}
	}
}

// handleFrame verifies, decodes, and applies a single frame.
func (e *Engine) handleFrame(frame Frame) {
	if !VerifyChecksum(frame.Data) {
		e.framesDiscarded.Add(1)
		return
	}
	e.framesReceived.Add(1)
	e.lastSeq.Store(uint32(frame.Seq))

	// Queries are wallpad polls; only answers and announcements carry
	// device state.
	if frame.Kind == KindQuery {
		return
	}

	readings, dialect := e.decoder.Decode(frame)
	if dialect != DialectUnknown && dialect != e.Dialect() {
		e.dialect.Store(dialect)
		e.logger.Info("EC dialect detected", "dialect", string(dialect))
		e.emit(Event{Kind: EventDialectDetected, Dialect: dialect})
	}

	for _, reading := range readings {
		e.readingsDecoded.Add(1)
		e.applyReading(reading)
		e.confirmCommand(frame.Kind, reading)
	}
}

// applyReading upserts a reading into the registry and emits a state
// change event when the stored state differs.
func (e *Engine) applyReading(reading Reading) {
	record, changed := e.registry.Upsert(device.Key{
		DeviceType: reading.DeviceType,
		Room:       reading.Room,
		Sub:        reading.Sub,
	}, reading.State)
	if changed {
		e.emit(Event{Kind: EventStateChanged, Device: record})
	}
}

// confirmCommand dequeues the in-flight command when a prompt or response
// reading matches its device type, room, and sub-address.
func (e *Engine) confirmCommand(kind FrameKind, reading Reading) {
	if kind != KindPrompt && kind != KindResponse {
		return
	}

	// Capture the attempt count while still holding the lock: the send
	// loop may bump it for a retry the moment the head is released.
	e.queueMu.Lock()
	var acked *queuedCommand
	var attempts int
	if len(e.queue) > 0 {
		head := e.queue[0]
		if head.attempts > 0 && commandMatches(head.cmd, reading) {
			acked = head
			attempts = head.attempts
			e.queue = e.queue[1:]
		}
	}
	e.queueMu.Unlock()

	if acked != nil {
		e.commandsAcked.Add(1)
		e.logger.Debug("command confirmed",
			"device_type", acked.cmd.DeviceType,
			"room", acked.cmd.Room,
			"sub", acked.cmd.Sub,
			"attempts", attempts)
		e.emit(Event{Kind: EventCommandAcked, Command: acked.cmd, Attempts: attempts})
	}
}

// commandMatches reports whether a reading confirms cmd. The reading's
// base device type (facet suffix stripped) must equal the command's, along
// with room and sub-address.
func commandMatches(cmd Command, reading Reading) bool {
	base := reading.DeviceType
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}
	return base == cmd.DeviceType && reading.Room == cmd.Room && reading.Sub == cmd.Sub
}

// sendLoop services the command queue head: encode, checksum, transmit,
// then back off for the acknowledgement window. Commands leave the queue
// through confirmCommand, a permanent failure, or the retry ceiling.
func (e *Engine) sendLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		default:
		}

		head := e.peekHead()
		if head == nil {
			if !e.sleep(e.idleInterval) {
				return
			}
			continue
		}

		frame, err := EncodeCommand(head.cmd, e.Dialect(), head.seq)
		if err != nil {
			e.failCommand(head, err)
			continue
		}
		frame[len(frame)-1] = Checksum(frame)
		if !VerifyChecksum(frame) {
			e.failCommand(head, ErrEncodingFailed)
			continue
		}

		attempts := e.recordAttempt(head)

		// Quiet gap so the transmission does not collide with the frame
		// that was just on the wire.
		if !e.sleep(e.txGap) {
			return
		}
		if err := e.transport.Send(frame); err != nil {
			e.failCommand(head, err)
			continue
		}
		e.commandsSent.Add(1)
		e.logger.Debug("command transmitted",
			"device_type", head.cmd.DeviceType,
			"room", head.cmd.Room,
			"attempt", attempts,
			"frame_len", len(frame))

		if attempts >= e.retryLimit {
			e.failCommand(head, ErrRetriesExhausted)
			continue
		}

		if !e.sleep(e.sendDelay(attempts)) {
			return
		}
	}
}

// peekHead returns the queue head without removing it.
func (e *Engine) peekHead() *queuedCommand {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	return e.queue[0]
}

// recordAttempt bumps the head command's attempt and sequence counters.
// The receive loop reads attempts under the queue lock when matching an
// acknowledgement, so the writes must hold it too.
func (e *Engine) recordAttempt(qc *queuedCommand) int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	qc.attempts++
	qc.seq++
	return qc.attempts
}

// failCommand removes qc from the queue (if the receive loop has not
// already confirmed it) and emits a failure event.
func (e *Engine) failCommand(qc *queuedCommand, err error) {
	e.queueMu.Lock()
	removed := false
	if len(e.queue) > 0 && e.queue[0] == qc {
		e.queue = e.queue[1:]
		removed = true
	}
	e.queueMu.Unlock()

	if !removed {
		return
	}
	e.commandsFailed.Add(1)
	e.logger.Warn("command dropped",
		"device_type", qc.cmd.DeviceType,
		"room", qc.cmd.Room,
		"sub", qc.cmd.Sub,
		"attempts", qc.attempts,
		"error", err)
	e.emit(Event{Kind: EventCommandFailed, Command: qc.cmd, Attempts: qc.attempts, Err: err})
}

// sendDelay computes the backoff before the next retransmission of the
// in-flight command: a per-bit-rate base delay grown geometrically with
// the attempt count, floored at MinSendWait.
func (e *Engine) sendDelay(attempt int) time.Duration {
	table := sendDelays9600[:]
	if e.Dialect() == Dialect3 {
		table = sendDelays38400[:]
	}
	idx := min(attempt-1, len(table)-1)
	if idx < 0 {
		idx = 0
	}
	delay := time.Duration(float64(table[idx]) * math.Pow(backoffFactor, float64(attempt)))
	return max(delay, e.minSendWait)
}

// sleep waits for d or until the engine stops; it reports false on stop.
func (e *Engine) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-e.done:
		return false
	case <-timer.C:
		return true
	}
}

// emit delivers an event without blocking; events are dropped and counted
// when the consumer lags.
func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		e.eventsDropped.Add(1)
	}
}
