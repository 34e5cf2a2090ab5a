//go:build linux

// Package cpuid identifies the CPU from /proc/cpuinfo, matches it against
// the known-good identity table and validates the kernel configuration.
package cpuid

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Detect parses /proc/cpuinfo and returns the identity of the first
// processor.
func Detect() (ID, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a /proc/cpuinfo stream up to the second processor entry and
// extracts the vendor and family/model/stepping triple.
func Parse(r io.Reader) (ID, error) {
	var (
		id     ID
		vendor string
		seen   int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "processor":
			seen++
			if seen > 1 {
				break
			}
		case "vendor_id":
			vendor = value
		case "cpu family":
			id.Family, _ = strconv.Atoi(value)
		case "model":
			id.Model, _ = strconv.Atoi(value)
		case "stepping":
			id.Stepping, _ = strconv.Atoi(value)
		}
		if seen > 1 {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if vendor == "" || id.Family == 0 {
		return ID{}, ErrNoIdentity
	}
	if vendor != "GenuineIntel" {
		return ID{}, ErrNotIntel
	}
	return id, nil
}

// Check matches the identity against the known-good table and returns the
// architecture name. An unknown identity gets a diagnostic asking the
// operator to report the raw identification fields.
func Check(id ID) (string, error) {
	name, ok := supported[id]
	if !ok {
		return "", fmt.Errorf("%w.\n\n"+
			"Please open a new issue specifying:\n"+
			" - model name\n"+
			" - cpu family (%d)\n"+
			" - model (%d)\n"+
			" - stepping (%d)\n"+
			"from /proc/cpuinfo.", ErrUnknownCPU, id.Family, id.Model, id.Stepping)
	}
	return name, nil
}

var (
	reDevmem = regexp.MustCompile(`CONFIG_DEVMEM=y`)
	reX86MSR = regexp.MustCompile(`CONFIG_X86_MSR=(y|m)`)
)

// CheckKernel validates that the running kernel exposes the register
// interfaces: CONFIG_X86_MSR is mandatory, a missing CONFIG_DEVMEM only
// degrades the MCHBAR mirror. The returned warning is non-empty when the
// config could not be read or DEVMEM is off.
func CheckKernel() (warning string, err error) {
	cfg := readKernelConfig()
	if cfg == "" {
		return "unable to obtain and validate kernel config", nil
	}
	if !reX86MSR.MatchString(cfg) {
		return "", ErrKernelConfig
	}
	if !reDevmem.MatchString(cfg) {
		return "bad kernel config: you need CONFIG_DEVMEM=y", nil
	}
	return "", nil
}

// readKernelConfig looks for the kernel build config under /boot first,
// then through /proc/config.gz (loading the configs module on demand).
func readKernelConfig() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		release := strings.TrimRight(string(uts.Release[:]), "\x00")
		if b, err := os.ReadFile("/boot/config-" + release); err == nil {
			return string(b)
		}
	}
	if _, err := os.Stat("/proc/config.gz"); err != nil {
		if err := exec.Command("modprobe", "configs").Run(); err != nil {
			return ""
		}
	}
	f, err := os.Open("/proc/config.gz")
	if err != nil {
		return ""
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return ""
	}
	defer zr.Close()
	b, err := io.ReadAll(zr)
	if err != nil {
		return ""
	}
	return string(b)
}
