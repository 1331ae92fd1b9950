package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"keylens/internal/config"
	"keylens/internal/daemon"
	"keylens/internal/health"
	"keylens/internal/hook"
	"keylens/internal/logging"
	"keylens/internal/metrics"
	"keylens/internal/notify"
	"keylens/internal/report"
	"keylens/internal/stats"
	"keylens/internal/store"
	"keylens/internal/supervisor"
)

const (
	// statePublishPeriod is how often the daemon refreshes its state file.
	statePublishPeriod = 5 * time.Second

	// minFreeDisk is the free space below which the disk check degrades.
	minFreeDisk = 10 << 20
)

var (
	runSimulate bool
	runOnce     bool
	runOverlay  bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the counting daemon in the foreground",
		Long: `Run attaches the global input hook and counts presses until stopped
with Ctrl-C or "keylens stop". With --simulate, text read from stdin is
typed into a simulated hook instead.`,
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}
	cmd.Flags().BoolVar(&runSimulate, "simulate", false, "count text from stdin instead of the system hook")
	cmd.Flags().BoolVar(&runOnce, "once", false, "with --simulate, stop when stdin is exhausted")
	cmd.Flags().BoolVar(&runOverlay, "overlay", false, "print the recent-key feed to stdout")
	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	defer loader.Close()
	if runSimulate {
		cfg.Capture.Simulate = true
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.Logger

	mgr := daemon.NewManager(cfg.DataDir())
	if err := mgr.Acquire(); err != nil {
		return err
	}
	defer mgr.Release()

	backend, err := store.Open(storeConfig(cfg))
	if err != nil {
		return err
	}
	defer backend.Close()

	startedAt := time.Now()
	dm := metrics.NewDaemonMetrics(nil, startedAt)
	saver := store.NewSaver(backend, cfg.Debounce(),
		store.WithLogger(log),
		store.WithObserver(dm.ObserveSave))
	engine := stats.New(
		store.LoadOrFresh(backend, time.Now(), log),
		saver,
		stats.WithMilestoneInterval(cfg.Stats.MilestoneInterval),
		stats.WithIntervalCap(cfg.IntervalCap()),
	)

	notifier, err := notify.New(cfg.Notify.Backend, log)
	if err != nil {
		return err
	}
	defer notifier.Close()
	milestones := notify.NewMilestoneNotifier(notifier, log)
	milestones.SetEnabled(cfg.Notify.Milestones)

	var onOverlay func([]string)
	if runOverlay {
		onOverlay = report.New(cmd.OutOrStdout()).Overlay
	}
	ring := notify.NewRing(cfg.Notify.OverlaySize, onOverlay)
	dispatcher := hook.NewDispatcher(hook.DefaultQueueSize, milestones.Milestone, ring.Show)

	var recOpts []hook.RecorderOption
	if !cfg.Capture.Mouse {
		recOpts = append(recOpts, hook.WithoutMouse())
	}
	recorder := hook.NewRecorder(engine, dispatcher, recOpts...)

	var (
		tap hook.Tap
		sim *hook.SimulatedTap
	)
	if cfg.Capture.Simulate {
		sim = hook.NewSimulatedTap(true)
		tap = sim
	} else {
		tap = hook.NewSystemTap()
	}
	monitor := hook.NewMonitor(tap, recorder, log)
	defer monitor.Stop()

	restarter := daemon.NewExecRestarter(saver.SaveNow, log)
	sup := supervisor.New(monitor, restarter, supervisor.Config{
		RetryPeriod:  cfg.Supervisor.RetryPeriod(),
		HealthPeriod: cfg.Supervisor.HealthPeriod(),
		RestartDelay: cfg.Supervisor.RestartDelay(),
		TickPeriod:   cfg.Supervisor.TickPeriod(),
	}, log)

	loader.OnChange(func(c *config.Config) {
		if err := engine.SetMilestoneInterval(c.Stats.MilestoneInterval); err != nil {
			log.Warn("ignoring milestone interval from config", "error", err)
		}
		milestones.SetEnabled(c.Notify.Milestones)
		log.Info("configuration reloaded",
			"milestone_interval", c.Stats.MilestoneInterval,
			"milestones", c.Notify.Milestones)
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	crash := logging.NewCrashHandler(filepath.Join(cfg.DataDir(), "crashes"), version, log)
	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	spawn := func(task string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := crash.Run(task, fn); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("task failed", "task", task, "error", err)
				errOnce.Do(func() { runErr = err })
				cancel()
			}
		}()
	}

	spawn("dispatcher", func() error {
		dispatcher.Run(ctx)
		return nil
	})
	spawn("supervisor", func() error {
		return sup.Run(ctx)
	})
	spawn("config-errors", func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-loader.Errors():
				log.Warn("config reload rejected", "error", err)
			}
		}
	})
	if sim != nil {
		spawn("replay", func() error {
			if err := waitAttached(ctx, monitor); err != nil {
				return nil
			}
			if err := hook.Replay(ctx, sim, cmd.InOrStdin(), time.Now); err != nil {
				return err
			}
			if runOnce {
				cancel()
			}
			return nil
		})
	}

	checker := health.NewChecker()
	checker.RegisterFunc("hook", true, health.CustomCheck(health.StatusUnhealthy, func() error {
		if !monitor.IsRunning() {
			return fmt.Errorf("input hook %s", sup.State())
		}
		return nil
	}))
	checker.RegisterFunc("storage", false, health.CustomCheck(health.StatusDegraded, saver.LastError))
	checker.RegisterFunc("disk", false, health.DiskSpaceCheck(cfg.DataDir(), minFreeDisk))

	state := &daemon.State{
		PID:        os.Getpid(),
		StartedAt:  startedAt,
		Version:    version,
		Backend:    storeConfig(cfg).Type,
		StorePath:  backend.Path(),
		ConfigPath: loader.Path(),
		Simulated:  sim != nil,
		Restarts:   daemon.RestartCount(),
	}
	if state.Backend == "" {
		state.Backend = store.TypeFile
	}
	publish := func() {
		now := time.Now()
		totals := engine.Totals()
		dm.Update(metrics.Sample{
			Lifetime:               int64(totals.Lifetime),
			Today:                  int64(totals.Today),
			NotificationsDelivered: dispatcher.Delivered(),
			NotificationsDropped:   dispatcher.Dropped(),
			MilestonesSent:         milestones.Sent(),
			HookCreates:            monitor.CreateCount(),
			HookDisables:           monitor.DisableCount(),
			SupervisorRestarts:     int64(sup.Restarts()),
		}, now)
		checker.Check(ctx)

		state.UpdatedAt = now
		state.Hook = sup.State().String()
		state.Health = string(checker.OverallStatus())
		state.Problems = checker.Problems()
		state.Metrics = dm.Snapshot()
		if err := mgr.WriteState(state); err != nil {
			log.Warn("could not write daemon state", "error", err)
		}
	}
	publish()

	log.Info("keylens started",
		"version", version,
		"pid", state.PID,
		"store", state.StorePath,
		"simulated", state.Simulated)

	commands := daemon.Listen(ctx)
	ticker := time.NewTicker(statePublishPeriod)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			publish()
		case c, ok := <-commands:
			if !ok {
				break loop
			}
			handleCommand(c, log, cancel, loader, engine, sup)
			publish()
		}
	}

	cancel()
	monitor.Stop()
	wg.Wait()

	if err := saver.SaveNow(); err != nil {
		log.Error("final save failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	log.Info("keylens stopped",
		"lifetime", engine.Totals().Lifetime,
		"notifications_dropped", dispatcher.Dropped())
	return runErr
}

func handleCommand(c daemon.Command, log *slog.Logger, stop context.CancelFunc, loader *config.Loader, engine *stats.Engine, sup *supervisor.Supervisor) {
	log.Info("control command received", "command", c)
	switch c {
	case daemon.CmdStop:
		stop()
	case daemon.CmdReload:
		if err := loader.Reload(); err != nil {
			log.Warn("config reload rejected", "error", err)
		}
	case daemon.CmdReset:
		if err := engine.Reset(); err != nil {
			log.Error("reset failed", "error", err)
		}
	case daemon.CmdRecover:
		sup.RequestActivate()
	}
}

// waitAttached blocks until the monitor has a live tap or ctx is done.
func waitAttached(ctx context.Context, m *hook.Monitor) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !m.IsRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Ask the daemon to reattach the input hook now",
		Long: `Recover asks the running daemon to retry attaching the input hook
immediately, as after granting input monitoring permission.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if err := daemon.NewManager(cfg.DataDir()).Send(daemon.CmdRecover); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Recovery requested.")
			return nil
		},
	}
}

var stopTimeout time.Duration

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := daemon.NewManager(cfg.DataDir())
			if err := mgr.Send(daemon.CmdStop); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), stopTimeout)
			defer cancel()
			if err := mgr.WaitForStop(ctx); err != nil {
				return fmt.Errorf("daemon did not stop within %s: %w", stopTimeout, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
			return nil
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "how long to wait for the daemon to exit")
	return cmd
}
