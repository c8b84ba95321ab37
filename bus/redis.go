package bus

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// RedisBus implements MessageBus with Redis PUBLISH/SUBSCRIBE.
// It shares the client with the store and never closes it.
type RedisBus struct {
	client goredis.UniversalClient
	config Config
}

// NewRedisBus creates a bus on an existing client.
func NewRedisBus(client goredis.UniversalClient, cfg Config) *RedisBus {
	return &RedisBus{client: client, config: cfg.withDefaults()}
}

// Publish sends data to a channel.
func (b *RedisBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if err := b.client.Publish(ctx, subject, data).Err(); err != nil {
		return rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: redis publish",
			rerrors.WithMetadata("subject", subject))
	}
	return nil
}

// Subscribe subscribes to a channel and waits for the server's confirmation.
func (b *RedisBus) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	ps := b.client.Subscribe(ctx, subject)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "bus: redis subscribe",
			rerrors.WithMetadata("subject", subject))
	}

	sub := newSubscription(subject, b.config.BufferSize, ps.Close)
	in := ps.Channel(goredis.WithChannelSize(b.config.BufferSize))
	go func() {
		defer sub.close()
		for m := range in {
			sub.deliver([]byte(m.Payload))
		}
	}()
	return sub, nil
}

// Close is a no-op; the store owns the client.
func (b *RedisBus) Close() error {
	return nil
}
