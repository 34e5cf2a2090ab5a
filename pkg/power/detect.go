//go:build linux

package power

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultSysfsGlob matches the usual AC adapter online flag.
const DefaultSysfsGlob = "/sys/class/power_supply/AC*/online"

// Detector resolves the power source through a layered fallback chain:
// sysfs glob, then a bus property query, then a hard-coded BATTERY
// assumption. Each fallback step logs once.
type Detector struct {
	glob  string
	query func() (onBattery bool, err error)
	log   *slog.Logger

	mu     sync.Mutex
	logged map[string]bool
}

// NewDetector builds a Detector. glob may be empty to use the default;
// query may be nil when no bus fallback is available.
func NewDetector(glob string, query func() (bool, error), log *slog.Logger) *Detector {
	if glob == "" {
		glob = DefaultSysfsGlob
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{glob: glob, query: query, log: log, logged: map[string]bool{}}
}

// OnBattery reports whether the system currently runs on battery.
func (d *Detector) OnBattery() bool {
	if on, ok := d.sysfs(); ok {
		return on
	}
	d.warnOnce("no valid sysfs power path found, trying upower method")
	if d.query != nil {
		if on, err := d.query(); err == nil {
			return on
		}
	}
	d.warnOnce("no valid power detection methods found, assuming the system is running on battery power")
	return true
}

// Source resolves OnBattery into a Source.
func (d *Detector) Source() Source {
	if d.OnBattery() {
		return Battery
	}
	return AC
}

func (d *Detector) sysfs() (onBattery, ok bool) {
	paths, err := filepath.Glob(d.glob)
	if err != nil {
		return false, false
	}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		online, err := strconv.Atoi(strings.TrimSpace(string(b)))
		if err != nil {
			continue
		}
		return online == 0, true
	}
	return false, false
}

func (d *Detector) warnOnce(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.logged[msg] {
		return
	}
	d.logged[msg] = true
	d.log.Warn(msg)
}
