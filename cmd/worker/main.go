// Command worker runs one affinity-aware task runner.
//
// Usage:
//
//	worker [--config worker.toml] [--log-level debug]
//	worker status [label]
//	worker monitor
//	worker wait <task-id>
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/taskrunner/config"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/runner"
	"github.com/vinayprograms/taskrunner/shutdown"
	"github.com/vinayprograms/taskrunner/telemetry"
)

var version = "dev"

type flags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consume tasks from the shared and private queues",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := f.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to a TOML settings file")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides settings)")

	cmd.AddCommand(newStatusCmd(f), newMonitorCmd(f), newWaitCmd(f))
	return cmd
}

func (f *flags) load() (config.Settings, *logging.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	logger := logging.New()
	logger.SetLevel(level)
	return cfg, logger, nil
}

func serve(ctx context.Context, cfg config.Settings, logger *logging.Logger) error {
	coord := shutdown.NewCoordinator(shutdown.Config{
		DefaultTimeout: cfg.ShutdownTimeoutDuration(),
		Logger:         logger,
	})

	id := uuid.NewString()
	tracer, err := setupTelemetry(ctx, cfg, id, coord)
	if err != nil {
		return err
	}

	b, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	defer b.bus.Close()

	r, err := runner.New(cfg, b.store, b.bus,
		runner.WithID(id),
		runner.WithLogger(logger),
		runner.WithTracer(tracer))
	if err != nil {
		b.store.Close()
		return err
	}
	if err := registerSamples(r, sampleWork); err != nil {
		b.store.Close()
		return err
	}
	logger.Info("worker_starting", logging.Fields{
		"runner_id": r.ID(),
		"handlers":  fmt.Sprint(r.Handlers()),
		"bus":       cfg.Bus,
	})

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	coord.RegisterFuncWithPhase("listener", func(context.Context) error {
		stopListening()
		return nil
	}, shutdown.PhaseListener)
	coord.HandleSignals()

	g, gctx := errgroup.WithContext(listenCtx)
	g.Go(func() error {
		return r.Run(gctx, func(ctx context.Context) error {
			return consume(ctx, r, logger)
		})
	})
	g.Go(func() error {
		select {
		case <-coord.Done():
		case <-gctx.Done():
			_ = coord.ShutdownWithTimeout(0)
		}
		return nil
	})

	err = g.Wait()
	if serr := coord.Err(); serr != nil {
		fields := logging.Fields{"error": serr.Error()}
		if res := coord.Result(); res != nil {
			fields["failed"] = strings.Join(res.FailedHandlers(), ",")
			fields["took"] = res.TotalDuration.String()
		}
		logger.Warn("shutdown_incomplete", fields)
	}
	return err
}

// consume drains the listener, pausing between tasks.
func consume(ctx context.Context, r *runner.Runner, logger *logging.Logger) error {
	l := r.Listen(ctx)
	for o := range l.Outcomes() {
		if !o.Failed() {
			logger.Debug("task_outcome", logging.Fields{"task_id": o.TaskID, "result": o.Result})
		}
		select {
		case <-time.After(taskPause):
		case <-ctx.Done():
		}
	}
	return l.Err()
}

// taskPause is the delay between consecutive tasks.
var taskPause = 2 * time.Second

func setupTelemetry(ctx context.Context, cfg config.Settings, runnerID string, coord *shutdown.Coordinator) (*telemetry.Tracer, error) {
	if cfg.OTelEndpoint == "" {
		return telemetry.GetTracer(), nil
	}
	provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    telemetry.DefaultServiceName,
		ServiceVersion: version,
		InstanceID:     runnerID,
		Endpoint:       cfg.OTelEndpoint,
		Protocol:       cfg.OTelProtocol,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return nil, err
	}
	coord.RegisterFuncWithPhase("telemetry", provider.Shutdown, shutdown.PhaseTelemetry)
	return provider.Tracer(), nil
}
