package main

import (
	"context"
	"time"

	"github.com/vinayprograms/taskrunner/bus"
	"github.com/vinayprograms/taskrunner/config"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/store"
)

const pingTimeout = 5 * time.Second

type backend struct {
	store *store.Redis
	bus   bus.MessageBus
}

// connect opens the coordination store and the configured message bus.
func connect(cfg config.Settings, logger *logging.Logger) (*backend, error) {
	st := store.NewRedis(store.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, err
	}

	mb, err := newBus(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Debug("backend_connected", logging.Fields{"redis": cfg.RedisAddr(), "bus": cfg.Bus})
	return &backend{store: st, bus: mb}, nil
}

func newBus(cfg config.Settings, st *store.Redis, logger *logging.Logger) (bus.MessageBus, error) {
	switch cfg.Bus {
	case "redis":
		return bus.NewRedisBus(st.Client(), bus.DefaultConfig()), nil
	case "nats":
		nc := bus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.Name = "task-runner"
		nc.Logger = logger
		mb, err := bus.NewNATSBus(nc)
		if err != nil {
			return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "connect nats")
		}
		return mb, nil
	case "memory":
		return bus.NewMemoryBus(bus.DefaultConfig()), nil
	}
	return nil, rerrors.InvalidInput("unknown bus " + cfg.Bus)
}
