//go:build linux

package throttle

import (
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// dumpThermalStatus logs the decoded thermal status of every core and
// resets the sticky log bits by writing zero back.
func (c *Controller) dumpThermalStatus() error {
	vals, err := c.dev.Read(regs.ThermStatus, 0, 63)
	if err != nil {
		return err
	}
	for core, v := range vals {
		for _, f := range regs.ThermStatusFields {
			c.log.Debug("core thermal status",
				"core", core, "field", f.Name, "value", regs.Bits(v, f.From, f.To))
		}
	}
	return c.dev.Write(regs.ThermStatus, 0)
}
