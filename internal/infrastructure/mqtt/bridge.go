package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/deckscan-core/internal/experiment"
)

// commandTimeout bounds the Start call made for a "start" command.
const commandTimeout = 10 * time.Second

// Command actions accepted on the command topic.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionReset = "reset"
)

// Publisher is the part of *Client the bridge uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Controller is the experiment lifecycle the bridge drives.
// *experiment.Orchestrator satisfies it.
type Controller interface {
	Start(ctx context.Context) (string, error)
	RequestStop() error
	Reset() error
	State() experiment.State
}

// Command is the payload of the command topic.
type Command struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandReply is published on the reply topic for every command.
type CommandReply struct {
	RequestID string           `json:"request_id,omitempty"`
	Action    string           `json:"action"`
	OK        bool             `json:"ok"`
	RunID     string           `json:"run_id,omitempty"`
	State     experiment.State `json:"state"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// StateMessage is the retained payload of the experiment state topic.
type StateMessage struct {
	Experiment string           `json:"experiment"`
	State      experiment.State `json:"state"`
	Timestamp  time.Time        `json:"timestamp"`
}

// PointMessage is the payload of the point event topic.
type PointMessage struct {
	RunID      string   `json:"run_id"`
	Experiment string   `json:"experiment"`
	Scan       int      `json:"scan"`
	Slot       int      `json:"slot"`
	Well       string   `json:"well"`
	PointIndex int      `json:"point_index"`
	Frames     []string `json:"frames"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

// ScanMessage is the payload of the scan event topic.
type ScanMessage struct {
	RunID      string `json:"run_id"`
	Experiment string `json:"experiment"`
	Scan       int    `json:"scan"`
	Points     int    `json:"points"`
	Frames     int    `json:"frames"`
	DurationMS int64  `json:"duration_ms"`
	Aborted    bool   `json:"aborted"`
}

// Bridge connects the experiment orchestrator to the broker: it publishes
// progress, state and per-point events, and turns messages on the command
// topic into Start/RequestStop/Reset calls.
//
// Bridge implements experiment.Recorder; PublishProgress matches
// experiment.ProgressFunc.
type Bridge struct {
	pub    Publisher
	topics Topics
	ctl    Controller
	qos    byte

	mu     sync.RWMutex
	logger Logger
}

// NewBridge creates a bridge for one instrument. qos is used for events and
// replies; progress is always published at QoS 0.
func NewBridge(pub Publisher, topics Topics, ctl Controller, qos byte) *Bridge {
	return &Bridge{pub: pub, topics: topics, ctl: ctl, qos: qos}
}

// SetLogger sets the logger for publish failures.
func (b *Bridge) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Start subscribes to the command topic.
func (b *Bridge) Start() error {
	if err := b.pub.Subscribe(b.topics.Command(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Stop unsubscribes from the command topic.
func (b *Bridge) Stop() error {
	return b.pub.Unsubscribe(b.topics.Command())
}

// ─── Outbound ──────────────────────────────────────────────────────

// PublishProgress publishes the progress snapshot, retained.
func (b *Bridge) PublishProgress(p experiment.Progress) {
	b.publishJSON(b.topics.Progress(), p, 0, true)
}

// StateChanged publishes the lifecycle state, retained.
func (b *Bridge) StateChanged(name string, s experiment.State) {
	b.publishJSON(b.topics.ExperimentState(), StateMessage{
		Experiment: name,
		State:      s,
		Timestamp:  time.Now().UTC(),
	}, b.qos, true)
}

// PointDone publishes a point event with the storage locations of its frames.
func (b *Bridge) PointDone(ev experiment.PointEvent) {
	msg := PointMessage{
		RunID:      ev.RunID,
		Experiment: ev.Experiment,
		Scan:       ev.Scan,
		Slot:       ev.Slot,
		Well:       ev.Well,
		PointIndex: ev.PointIndex,
		Frames:     make([]string, 0, len(ev.Frames)),
		DurationMS: ev.Duration.Milliseconds(),
	}
	for _, f := range ev.Frames {
		msg.Frames = append(msg.Frames, f.Location)
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	b.publishJSON(b.topics.PointEvents(), msg, b.qos, false)
}

// ScanDone publishes a scan event.
func (b *Bridge) ScanDone(ev experiment.ScanEvent) {
	b.publishJSON(b.topics.ScanEvents(), ScanMessage{
		RunID:      ev.RunID,
		Experiment: ev.Experiment,
		Scan:       ev.Scan,
		Points:     ev.Points,
		Frames:     ev.Frames,
		DurationMS: ev.Duration.Milliseconds(),
		Aborted:    ev.Aborted,
	}, b.qos, false)
}

func (b *Bridge) publishJSON(topic string, v any, qos byte, retained bool) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = b.pub.Publish(topic, payload, qos, retained)
	}
	if err != nil {
		b.mu.RLock()
		logger := b.logger
		b.mu.RUnlock()
		if logger != nil {
			logger.Warn("MQTT publish failed", "topic", topic, "error", err)
		}
	}
}

// ─── Inbound ───────────────────────────────────────────────────────

// handleCommand executes one command and publishes its reply. A malformed
// payload still gets a reply so the sender is not left waiting.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.reply(CommandReply{Error: "malformed command: " + err.Error()})
		return fmt.Errorf("decoding command: %w", err)
	}

	reply := CommandReply{RequestID: cmd.RequestID, Action: cmd.Action}
	var err error
	switch cmd.Action {
	case ActionStart:
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		reply.RunID, err = b.ctl.Start(ctx)
		cancel()
	case ActionStop:
		err = b.ctl.RequestStop()
	case ActionReset:
		err = b.ctl.Reset()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}

	reply.OK = err == nil
	if err != nil {
		reply.Error = err.Error()
	}
	b.reply(reply)
	return err
}

func (b *Bridge) reply(r CommandReply) {
	r.State = b.ctl.State()
	r.Timestamp = time.Now().UTC()
	b.publishJSON(b.topics.CommandReply(), r, b.qos, false)
}
