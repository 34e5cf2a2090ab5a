//go:build linux

package throttle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/ja7ad/powerlimit/pkg/power"
)

const (
	signalPrepareForSleep   = "org.freedesktop.login1.Manager.PrepareForSleep"
	signalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// Bridge reacts to the two asynchronous system-bus notifications: the
// suspend/resume signal from login1 and the UPower power-source property
// change. Malformed payloads are logged and discarded, never propagated.
type Bridge struct {
	conn    *dbus.Conn
	ctrl    *Controller
	tracker *power.Tracker
	log     *slog.Logger
}

// NewBridge subscribes on the system bus. The suspend/resume subscription
// is registered only when subscribeSleep is set (any undervolt or IccMax
// override is active), avoiding needless wakeups.
func NewBridge(conn *dbus.Conn, ctrl *Controller, subscribeSleep bool, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath("/org/freedesktop/UPower"),
	); err != nil {
		return nil, fmt.Errorf("bridge: subscribe power-source changes: %w", err)
	}
	if subscribeSleep {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember("PrepareForSleep"),
		); err != nil {
			return nil, fmt.Errorf("bridge: subscribe suspend/resume: %w", err)
		}
	}
	return &Bridge{conn: conn, ctrl: ctrl, tracker: ctrl.tracker, log: log}, nil
}

// Run dispatches bus signals until the context is cancelled. Only register
// write failures terminate it.
func (b *Bridge) Run(ctx context.Context) error {
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	defer b.conn.RemoveSignal(ch)
	return b.dispatch(ctx, ch)
}

func (b *Bridge) dispatch(ctx context.Context, ch chan *dbus.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				// the bus connection died; the control loop keeps the
				// registers asserted and the tracker keeps its last state,
				// so park instead of taking the daemon down
				b.log.Warn("lost the system bus connection, power source events disabled")
				<-ctx.Done()
				return nil
			}
			if err := b.handle(sig.Name, sig.Body); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handle(name string, body []any) error {
	switch name {
	case signalPrepareForSleep:
		sleeping, err := parseSleepSignal(body)
		if err != nil {
			b.log.Warn("discarding malformed suspend/resume signal", "err", err)
			return nil
		}
		if !sleeping {
			b.log.Info("resumed from sleep, reapplying undervolt and iccmax")
			return b.ctrl.ApplyMailboxSettings()
		}
	case signalPropertiesChanged:
		onBattery, present, err := parsePowerSignal(body)
		if err != nil {
			// leaves both source and method untouched
			b.log.Warn("discarding malformed power-source signal", "err", err)
			return nil
		}
		if present {
			src := power.AC
			if onBattery {
				src = power.Battery
			}
			b.tracker.SetFromEvent(src)
			b.log.Info("power source changed", "source", src.String())
		}
	}
	return nil
}

func parseSleepSignal(body []any) (sleeping bool, err error) {
	if len(body) != 1 {
		return false, fmt.Errorf("unexpected body length %d", len(body))
	}
	sleeping, ok := body[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected payload type %T", body[0])
	}
	return sleeping, nil
}

func parsePowerSignal(body []any) (onBattery, present bool, err error) {
	if len(body) < 2 {
		return false, false, fmt.Errorf("unexpected body length %d", len(body))
	}
	changed, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false, fmt.Errorf("unexpected payload type %T", body[1])
	}
	v, present := changed["OnBattery"]
	if !present {
		return false, false, nil
	}
	onBattery, ok = v.Value().(bool)
	if !ok {
		return false, false, fmt.Errorf("unexpected OnBattery type %T", v.Value())
	}
	return onBattery, true, nil
}

// UPowerOnBattery returns the bus property query used as the power-source
// polling fallback.
func UPowerOnBattery(conn *dbus.Conn) func() (bool, error) {
	return func() (bool, error) {
		obj := conn.Object("org.freedesktop.UPower", "/org/freedesktop/UPower")
		v, err := obj.GetProperty("org.freedesktop.UPower.OnBattery")
		if err != nil {
			return false, err
		}
		on, ok := v.Value().(bool)
		if !ok {
			return false, fmt.Errorf("bridge: unexpected OnBattery type %T", v.Value())
		}
		return on, nil
	}
}
