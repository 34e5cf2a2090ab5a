//go:build linux

package throttle

import (
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ja7ad/powerlimit/pkg/cpuid"
	"github.com/ja7ad/powerlimit/pkg/system/mmio"
)

// mchbarMirrorOffset is where the package-power-limit mirror sits inside
// the MCHBAR range.
const mchbarMirrorOffset = 0x599F

// highBaseIDs are the identities whose MCHBAR sits at the newer base when
// the address has to be guessed.
var highBaseIDs = map[cpuid.ID]bool{
	{Family: 6, Model: 140, Stepping: 1}: true, // TigerLake-U
	{Family: 6, Model: 140, Stepping: 2}: true,
	{Family: 6, Model: 141, Stepping: 1}: true, // TigerLake-H
	{Family: 6, Model: 151, Stepping: 2}: true, // AlderLake-S/HX
	{Family: 6, Model: 151, Stepping: 5}: true,
	{Family: 6, Model: 154, Stepping: 3}: true, // AlderLake-P/H
	{Family: 6, Model: 154, Stepping: 4}: true,
}

// OpenMCHBAR locates the MCHBAR range and maps the 8-byte power-limit
// mirror. Returns nil when /dev/mem cannot be mapped; the daemon then
// degrades to MSR-only operation.
func OpenMCHBAR(id cpuid.ID, log *slog.Logger) *mmio.Window {
	w, err := mmio.Open(mchbarBase(id, log)+mchbarMirrorOffset, 8)
	if err != nil {
		log.Warn("unable to open /dev/mem, TDP override might not work correctly", "err", err)
		log.Warn("try to disable Secure Boot and/or enable CONFIG_DEVMEM in kernel config")
		return nil
	}
	return w
}

// mchbarBase reads the MCHBAR base from PCI config space through setpci,
// falling back to a per-identity guess.
func mchbarBase(id cpuid.ID, log *slog.Logger) uint64 {
	out, err := exec.Command("setpci", "-s", "0:0.0", "48.l").Output()
	if err == nil {
		if base, perr := strconv.ParseUint(strings.TrimSpace(string(out)), 16, 64); perr == nil {
			return base
		}
	}
	log.Warn(`please ensure that "setpci" is in path, typically provided by the pciutils package`)
	log.Warn("trying to guess the MCHBAR address from the CPU identity, this might not work")
	if highBaseIDs[id] {
		return 0xFEDC0001
	}
	return 0xFED10001
}
