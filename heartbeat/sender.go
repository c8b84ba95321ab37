package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/taskrunner/bus"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/registry"
)

// BusSender publishes a runner's heartbeat every interval, and immediately
// whenever its status changes.
type BusSender struct {
	bus      bus.MessageBus
	runnerID string
	interval time.Duration
	labels   func() []string
	logger   *logging.Logger

	mu     sync.Mutex
	status registry.Status
	stop   context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// NewBusSender creates a sender. The initial status is idle.
func NewBusSender(cfg SenderConfig) (*BusSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &BusSender{
		bus:      cfg.Bus,
		runnerID: cfg.RunnerID,
		interval: interval,
		labels:   cfg.Labels,
		logger:   logger.WithComponent("heartbeat").With(logging.Fields{"runner_id": cfg.RunnerID}),
		status:   registry.StatusIdle,
		kick:     make(chan struct{}, 1),
	}, nil
}

// Start sends a first heartbeat and keeps sending until Stop or ctx ends.
func (s *BusSender) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyStarted
	}
	ctx, s.stop = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

func (s *BusSender) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.send(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
			ticker.Reset(s.interval)
		}
	}
}

func (s *BusSender) send(ctx context.Context) {
	hb := s.snapshot()
	data, err := hb.Marshal()
	if err == nil {
		err = s.bus.Publish(ctx, hb.Subject(), data)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("heartbeat_failed", logging.Fields{"error": err.Error()})
	}
}

func (s *BusSender) snapshot() *Heartbeat {
	hb := &Heartbeat{
		RunnerID:  s.runnerID,
		Timestamp: time.Now(),
		Status:    s.Status(),
	}
	if s.labels != nil {
		hb.Labels = s.labels()
	}
	return hb
}

// SetStatus changes the advertised status. A change is published without
// waiting for the next tick.
func (s *BusSender) SetStatus(status registry.Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if changed {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Status returns the advertised status.
func (s *BusSender) Status() registry.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stop ends the loop and waits for it to exit. The sender can be started again.
func (s *BusSender) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return ErrNotStarted
	}
	stop()
	<-done
	return nil
}

// RunnerID returns the runner the sender speaks for.
func (s *BusSender) RunnerID() string {
	return s.runnerID
}
