//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/cpuid"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/system/msr"
	"github.com/ja7ad/powerlimit/pkg/throttle"
)

type opts struct {
	configPath string
	debug      bool
	monitor    float64
	force      bool
	logPath    string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "powerlimit",
		Short: "Power, thermal, voltage and current limit daemon for Intel laptops",
		Long: `The powerlimit daemon keeps an Intel CPU's package power limits,
trip temperature, voltage offsets and current limits within the bounds set
in its configuration file, reapplying them continuously as the power
source changes between AC and battery.

It writes directly to model-specific registers through /dev/cpu/*/msr and
mirrors the package power limit into the MCHBAR window through /dev/mem,
so it must run as root on a supported CPU.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.configPath, "config", "/etc/powerlimit.conf", "override default config file path")
	root.Flags().BoolVar(&o.debug, "debug", false, "add some debug info and additional checks")
	root.Flags().Float64Var(&o.monitor, "monitor", 0, "realtime monitoring of throttling causes (update rate in seconds)")
	root.Flags().Lookup("monitor").NoOptDefVal = "1"
	root.Flags().BoolVar(&o.force, "force", false, "bypass compatibility checks (EXPERTS only)")
	root.Flags().StringVar(&o.logPath, "log", "", "log to file instead of stdout")
	root.MarkFlagsMutuallyExclusive("debug", "monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	log, closeLog, err := newLogger(o)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	if os.Geteuid() != 0 {
		return errors.New("no root no party, try again with sudo")
	}

	var id cpuid.ID
	if o.force {
		// identity is still useful for the MCHBAR guess
		id, _ = cpuid.Detect()
	} else {
		warning, err := cpuid.CheckKernel()
		if err != nil {
			return err
		}
		if warning != "" {
			log.Warn(warning)
		}
		if id, err = cpuid.Detect(); err != nil {
			return err
		}
		name, err := cpuid.Check(id)
		if err != nil {
			return err
		}
		log.Info("detected CPU architecture", "name", "Intel "+name)
	}

	dev := msr.New(log)
	dev.AllowWrites()

	mailbox := throttle.NewMailbox(dev)
	features := throttle.Probe(dev, mailbox, log)

	log.Info("loading config file", "path", o.configPath)
	cfg, err := config.Load(o.configPath, log)
	if err != nil {
		return err
	}
	if !cfg.General.Enabled {
		log.Info("disabled in config file, quitting")
		return nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		log.Warn("unable to connect to the system bus, running without event notifications", "err", err)
		conn = nil
	} else {
		defer conn.Close()
	}

	var query func() (bool, error)
	if conn != nil {
		query = throttle.UPowerOnBattery(conn)
	}
	detector := power.NewDetector(cfg.General.SysfsPowerPath, query, log)
	tracker := power.NewTracker(detector.Source())

	window := throttle.OpenMCHBAR(id, log)
	ctrl, err := throttle.New(dev, window, mailbox, tracker, detector,
		cfg, o.configPath, features, o.debug, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.ApplyStartupSettings(); err != nil {
		return err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- ctrl.Run(workCtx)
	}()

	if o.monitor > 0 {
		mon := throttle.NewMonitor(ctrl, time.Duration(o.monitor*float64(time.Second)), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- mon.Run(workCtx)
		}()
	}

	if conn != nil {
		bridge, err := throttle.NewBridge(conn, ctrl, cfg.HasMailboxOverrides(), log)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- bridge.Run(workCtx)
		}()
	}

	log.Info("starting main loop")

	var fatal error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		fatal = err
	}
	cancel()

	// workers are expected to join within about a second; past that the
	// process exit reclaims whatever is left
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		log.Warn("workers did not stop in time, exiting anyway")
	}
	return fatal
}

func newLogger(o opts) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	out := os.Stdout
	closeLog := func() {}
	if o.logPath != "" {
		f, err := os.Create(o.logPath)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to write to the log file: %w", err)
		}
		out = f
		closeLog = func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeLog, nil
}
