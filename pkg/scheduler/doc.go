// Package scheduler runs scheduled commands for the HTTP server.
//
// A scheduled command is a unit of periodic work (pruning stored client
// logs, expiring idle proxies) that runs on a fixed cadence independent of
// request traffic. Commands are executed by a robfig/cron scheduler with
// constant-delay schedules. A command still running when its next tick
// arrives is skipped rather than stacked, and a panicking command is
// recovered and logged without affecting other commands.
//
// # Usage
//
//	sched := scheduler.New()
//	err := sched.Add(scheduler.NewPeriodicCommand("client-log-prune", time.Hour,
//	    func(ctx context.Context) error {
//	        _, err := pruner.Prune(ctx)
//	        return err
//	    }))
//	sched.Start()
//	defer sched.Stop()
//
// Commands may be added before or after Start. Stop cancels the context
// passed to running commands and waits for them to return.
package scheduler
