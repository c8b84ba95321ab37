package heartbeat

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/taskrunner/bus"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/registry"
	"github.com/vinayprograms/taskrunner/store"
)

var (
	ErrAlreadyStarted = rerrors.InvalidInput("heartbeat: sender already started")
	ErrNotStarted     = rerrors.InvalidInput("heartbeat: sender not started")
	ErrInvalidConfig  = rerrors.InvalidInput("heartbeat: bus and runner id are required")
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultCheckInterval = time.Second
)

// Heartbeat is one liveness message. Status mirrors the runner's membership
// in the available set; Labels is its affinity cache, least recent first.
type Heartbeat struct {
	RunnerID  string          `json:"runner_id"`
	Timestamp time.Time       `json:"timestamp"`
	Status    registry.Status `json:"status"`
	Labels    []string        `json:"labels,omitempty"`
}

// Marshal encodes h as JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, rerrors.Wrap(err, "heartbeat: encode", rerrors.WithRunnerID(h.RunnerID))
	}
	return data, nil
}

// Unmarshal decodes a heartbeat. Messages without a runner id or with an
// unknown status are rejected.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeInvalidInput, "heartbeat: decode")
	}
	if h.RunnerID == "" {
		return nil, rerrors.InvalidInput("heartbeat: runner_id is required")
	}
	switch h.Status {
	case registry.StatusIdle, registry.StatusBusy:
	default:
		return nil, rerrors.InvalidInput("heartbeat: unknown status "+string(h.Status),
			rerrors.WithRunnerID(h.RunnerID))
	}
	return &h, nil
}

// Subject is the channel h is published on.
func (h *Heartbeat) Subject() string {
	return store.HeartbeatChannel(h.RunnerID)
}

// Age is how long ago h was sent, as of now.
func (h *Heartbeat) Age(now time.Time) time.Duration {
	return now.Sub(h.Timestamp)
}

// SenderConfig configures a BusSender.
type SenderConfig struct {
	Bus      bus.MessageBus
	RunnerID string

	// Interval between heartbeats. Default: DefaultInterval
	Interval time.Duration

	// Labels reports the labels currently held. Optional.
	Labels func() []string

	Logger *logging.Logger
}

// Validate checks that the bus and runner id are set.
func (c *SenderConfig) Validate() error {
	if c.Bus == nil || c.RunnerID == "" {
		return ErrInvalidConfig
	}
	return nil
}

// MonitorConfig configures a BusMonitor.
type MonitorConfig struct {
	Bus bus.MessageBus

	// Timeout of silence after which a runner is reported. Default: DefaultTimeout
	Timeout time.Duration

	// CheckInterval of the silence checker. Default: DefaultCheckInterval
	CheckInterval time.Duration
}

// Validate checks that the bus is set.
func (c *MonitorConfig) Validate() error {
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	return nil
}
