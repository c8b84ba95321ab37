package bus

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
)

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	Config

	// URL of the server, e.g. nats://localhost:4222.
	URL string

	// Name identifies the connection in server monitoring.
	Name string

	// CredentialsFile is a .creds file for decentralized auth. Optional.
	CredentialsFile string

	// ReconnectWait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects before giving up; -1 retries forever.
	MaxReconnects int

	ConnectTimeout time.Duration

	// Logger receives disconnect and reconnect events. Optional.
	Logger *logging.Logger
}

// DefaultNATSConfig returns the default NATS settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NATSBus implements MessageBus on NATS core subjects.
type NATSBus struct {
	conn   *nats.Conn
	config Config

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// NewNATSBus connects to the configured server.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	conn, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: nats connect",
			rerrors.WithMetadata("url", cfg.URL))
	}
	return NewNATSBusFromConn(conn, cfg.Config), nil
}

// NewNATSBusFromConn wraps an existing connection. Close closes conn.
func NewNATSBusFromConn(conn *nats.Conn, cfg Config) *NATSBus {
	return &NATSBus{
		conn:   conn,
		config: cfg.withDefaults(),
		subs:   make(map[*subscription]struct{}),
	}
}

func natsOptions(cfg NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
	}
	if l := cfg.Logger; l != nil {
		l = l.WithComponent("bus")
		opts = append(opts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				fields := logging.Fields{"url": cfg.URL}
				if err != nil {
					fields["error"] = err.Error()
				}
				l.Warn("nats_disconnected", fields)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				l.Info("nats_reconnected", logging.Fields{"url": c.ConnectedUrl()})
			}),
		)
	}
	return opts
}

// Publish sends data to subject.
func (b *NATSBus) Publish(_ context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: nats publish",
			rerrors.WithMetadata("subject", subject))
	}
	return nil
}

// Subscribe registers interest in subject and flushes it to the server
// before returning.
func (b *NATSBus) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub := newSubscription(subject, b.config.BufferSize, nil)
	ns, err := b.conn.Subscribe(subject, func(m *nats.Msg) { sub.deliver(m.Data) })
	if err != nil {
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: nats subscribe",
			rerrors.WithMetadata("subject", subject))
	}
	sub.stop = func() error {
		b.forget(sub)
		return ns.Unsubscribe()
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: nats flush",
			rerrors.WithMetadata("subject", subject))
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (b *NATSBus) forget(sub *subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Close closes the connection and ends every subscription.
func (b *NATSBus) Close() error {
	b.conn.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.close()
	}
	b.subs = make(map[*subscription]struct{})
	return nil
}
