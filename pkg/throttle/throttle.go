//go:build linux

// Package throttle is the daemon core: it derives hardware unit scales,
// computes per-power-source register sets from the configuration and keeps
// them asserted through a background control loop, an event bridge and an
// optional telemetry monitor.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
	"github.com/ja7ad/powerlimit/pkg/system/mmio"
)

// regIO is the register access the core needs. *msr.Dev implements it;
// tests substitute a file-backed or in-memory fake.
type regIO interface {
	Write(reg regs.Register, val uint64) error
	Read(reg regs.Register, from, to uint) ([]uint64, error)
	ReadCore(reg regs.Register, core int, from, to uint) (uint64, error)
	ReadFlatten(reg regs.Register, from, to uint) (uint64, error)
}

// mem32 is the MCHBAR window surface. *mmio.Window implements it.
type mem32 interface {
	Read32(offset int) (uint32, error)
	Write32(offset int, val uint32) error
	Close() error
}

// hwpInterval is the minimum spacing between performance-preference
// writes. External tools periodically reset the preference register, so
// writes are rate limited to avoid fighting them.
const hwpInterval = 60 * time.Second

// Controller owns the computed register state and the control loop that
// re-asserts it.
type Controller struct {
	log      *slog.Logger
	dev      regIO
	tracker  *power.Tracker
	detector *power.Detector
	mailbox  *Mailbox
	features Features
	debug    bool
	cfgPath  string
	window   mem32

	mu       sync.Mutex // guards cfg, units, platform, regset
	cfg      *config.Config
	units    Units
	platform PlatformInfo
	regset   map[power.Source]RegisterSet

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool // false when cancelled

	nextHWP    time.Time
	lastCfgMod time.Time
}

// New derives the unit model and register sets once and returns a ready
// Controller. window may be nil when the MCHBAR mirror is unavailable.
// mailbox must be the same instance used for startup probing so that every
// mailbox sequence in the process shares one lock.
func New(dev regIO, window *mmio.Window, mailbox *Mailbox, tracker *power.Tracker,
	detector *power.Detector, cfg *config.Config, cfgPath string, features Features,
	debug bool, log *slog.Logger) (*Controller, error) {
	if log == nil {
		log = slog.Default()
	}
	if mailbox == nil {
		mailbox = NewMailbox(dev)
	}
	c := &Controller{
		log:      log,
		dev:      dev,
		tracker:  tracker,
		detector: detector,
		mailbox:  mailbox,
		features: features,
		debug:    debug,
		cfgPath:  cfgPath,
		cfg:      cfg,
		now:      time.Now,
	}
	if window != nil {
		c.window = window
	}
	if err := c.recompute(cfg); err != nil {
		return nil, err
	}
	if debug {
		c.platform.debugDump(log)
	}
	return c, nil
}

// recompute refreshes the unit model, platform capabilities and register
// sets from a (new) configuration.
func (c *Controller) recompute(cfg *config.Config) error {
	units, err := loadUnits(c.dev)
	if err != nil {
		return err
	}
	platform, err := loadPlatformInfo(c.dev)
	if err != nil {
		return err
	}
	regset, err := computeRegSet(c.dev, cfg, units, platform, c.log)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.units = units
	c.platform = platform
	c.regset = regset
	c.mu.Unlock()
	return nil
}

// Config returns the currently loaded configuration.
func (c *Controller) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Mailbox returns the shared, serialized OC mailbox.
func (c *Controller) Mailbox() *Mailbox { return c.mailbox }

// Close releases the MCHBAR window.
func (c *Controller) Close() error {
	if c.window == nil {
		return nil
	}
	return c.window.Close()
}
