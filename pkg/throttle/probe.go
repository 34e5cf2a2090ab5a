//go:build linux

package throttle

import (
	"log/slog"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

// Feature is an optional capability proven writable at startup.
type Feature uint8

const (
	FeatureUndervolt Feature = 1 << iota
	FeatureHWP
)

// Features is the immutable-after-probe capability set.
type Features uint8

func (f Features) Has(x Feature) bool { return Features(x)&f != 0 }

// Probe performs a benign round trip for each optional feature and returns
// the set that worked. Any I/O failure disables just that feature for the
// process lifetime; probing never aborts the daemon.
func Probe(dev regIO, mbox *Mailbox, log *slog.Logger) Features {
	var out Features

	log.Info("testing if undervolt is supported")
	ok := true
	for _, plane := range regs.VoltagePlanes {
		if _, err := mbox.ReadUndervolt(plane); err != nil {
			log.Warn("undervolt seems not to be supported by your system, disabling", "err", err)
			ok = false
			break
		}
	}
	if ok {
		out |= Features(FeatureUndervolt)
	}

	log.Info("testing if HWP is supported")
	cur, err := dev.ReadCore(regs.HWPRequest, 0, 0, 63)
	if err == nil {
		err = dev.Write(regs.HWPRequest, cur)
	}
	if err != nil {
		log.Warn("HWP seems not to be supported by your system, disabling", "err", err)
	} else {
		out |= Features(FeatureHWP)
	}

	return out
}
