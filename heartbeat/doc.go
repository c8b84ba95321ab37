// Package heartbeat provides runner liveness signals.
//
// A runner publishes a heartbeat on task-runners:heartbeat:<runner-id> every
// interval. The heartbeat carries its availability ("idle" or "busy") and the
// labels its affinity cache holds, so a dispatcher can tell a live runner
// from a stale entry left in the registry sets by a crashed process.
//
//	┌─────────────┐  task-runners:heartbeat:<id>  ┌─────────────┐
//	│ BusSender   │ ────────────────────────────> │ BusMonitor  │
//	│ (runner)    │                               │ (dispatcher)│
//	└─────────────┘                               └─────────────┘
//
// Sending:
//
//	sender, _ := heartbeat.NewBusSender(heartbeat.SenderConfig{
//	    Bus:      b,
//	    RunnerID: id,
//	    Interval: 10 * time.Second,
//	    Labels:   cache.Labels,
//	})
//	sender.Start(ctx)
//	sender.SetStatus(registry.StatusBusy)
//
// Monitoring:
//
//	mon, _ := heartbeat.NewBusMonitor(heartbeat.MonitorConfig{Bus: b, Timeout: 30 * time.Second})
//	mon.OnDead(func(id string) { log.Printf("runner %s presumed dead", id) })
//	mon.Watch(ctx, id)
//
// Set the monitor timeout to 2-3x the heartbeat interval.
package heartbeat
