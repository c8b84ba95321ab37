package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/taskrunner/heartbeat"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/registry"
	"github.com/vinayprograms/taskrunner/results"
	"github.com/vinayprograms/taskrunner/shutdown"
)

func newStatusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [label]",
		Short: "Show registered and available runners, or the candidates for a label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := f.load()
			if err != nil {
				return err
			}
			b, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer b.store.Close()
			defer b.bus.Close()

			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), registry.New(b.store), label)
		},
	}
}

func printStatus(ctx context.Context, w io.Writer, reg *registry.Registry, label string) error {
	running, err := reg.Running(ctx)
	if err != nil {
		return err
	}
	available, err := reg.Available(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "running:   %s\n", strings.Join(running, " "))
	fmt.Fprintf(w, "available: %s\n", strings.Join(available, " "))
	if label == "" {
		return nil
	}

	holders, err := reg.WithLabel(ctx, label)
	if err != nil {
		return err
	}
	candidates, err := reg.Candidates(ctx, label)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "holding %s: %s\n", label, strings.Join(holders, " "))
	fmt.Fprintf(w, "candidates: %s\n", strings.Join(candidates, " "))
	return nil
}

func newMonitorCmd(f *flags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch heartbeats of registered runners and report silent ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := f.load()
			if err != nil {
				return err
			}
			b, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer b.store.Close()
			defer b.bus.Close()

			mon, err := heartbeat.NewBusMonitor(heartbeat.MonitorConfig{Bus: b.bus, Timeout: timeout})
			if err != nil {
				return err
			}
			mon.OnDead(func(id string) {
				fields := logging.Fields{"runner_id": id}
				if hb := mon.LastHeartbeat(id); hb != nil {
					fields["last_status"] = string(hb.Status)
					fields["labels"] = strings.Join(hb.Labels, ",")
					fields["silent_for"] = hb.Age(time.Now()).Round(time.Second).String()
				}
				logger.Warn("runner_silent", fields)
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			coord := shutdown.NewCoordinator(shutdown.Config{Logger: logger})
			coord.RegisterFuncWithPhase("monitor", func(context.Context) error {
				cancel()
				return mon.Stop()
			}, shutdown.PhaseHeartbeat)
			coord.HandleSignals()

			ids, err := registry.New(b.store).Running(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := mon.Watch(ctx, id); err != nil {
					return err
				}
			}
			logger.Info("monitor_started", logging.Fields{"runners": len(ids)})

			select {
			case <-coord.Done():
			case <-ctx.Done():
				_ = coord.ShutdownWithTimeout(0)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "silence after which a runner is reported")
	return cmd
}

func newWaitCmd(f *flags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Print the result of a task submitted with return_result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := f.load()
			if err != nil {
				return err
			}
			b, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer b.store.Close()
			defer b.bus.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return printResult(ctx, cmd.OutOrStdout(), results.NewWaiter(b.bus, b.store), args[0])
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the result")
	return cmd
}

func printResult(ctx context.Context, w io.Writer, waiter *results.Waiter, taskID string) error {
	out, err := waiter.Wait(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}
