// Package settings exposes phone settings as remotely callable procedures.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/morezero/device-facades/pkg/events"
	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/rpc"
)

const logPrefix = "settings:facade"

// ReceiverName is the receiver type name of the settings facade.
const ReceiverName = "SettingsFacade"

// Screen timeouts are stored as 32-bit milliseconds.
const (
	maxScreenTimeoutSeconds = math.MaxInt32 / 1000
	minScreenTimeoutSeconds = math.MinInt32 / 1000
)

const (
	airplaneModeOff = 0
	airplaneModeOn  = 1
)

// Facade reads and writes device settings through the session host.
type Facade struct {
	host     platform.Host
	settings platform.SettingsStore
	audio    platform.AudioManager
	wifi     platform.WifiManager
}

// New builds the facade from the session host.
func New(host platform.Host) (rpc.Receiver, error) {
	if host == nil {
		return nil, fmt.Errorf("%s - nil host", logPrefix)
	}
	f := &Facade{
		host:     host,
		settings: host.Settings(),
		audio:    host.Audio(),
		wifi:     host.Wifi(),
	}
	if f.settings == nil || f.audio == nil || f.wifi == nil {
		return nil, fmt.Errorf("%s - host for session %s is missing a platform service", logPrefix, host.SessionID())
	}
	return f, nil
}

// Shutdown has nothing to release.
func (f *Facade) Shutdown() error {
	return nil
}

// ReceiverType declares the settings facade procedures.
var ReceiverType = rpc.NewReceiverType(ReceiverName, "Exposes phone settings functionality.", New,
	rpc.NewProcedure("setScreenTimeout", "Set the screen timeout to this number of seconds.").
		Params(rpc.Param("value", rpc.Integer, "Timeout in seconds")).
		Returns(rpc.Integer, "The original screen timeout.").
		Invoke(rpc.Method((*Facade).setScreenTimeout)),

	rpc.NewProcedure("getScreenTimeout", "Returns the current screen timeout in seconds.").
		Returns(rpc.Integer, "The screen timeout in seconds.").
		Invoke(rpc.Method((*Facade).getScreenTimeout)),

	rpc.NewProcedure("isInAirplaneMode", "Is airplane mode turned on?").
		Returns(rpc.Boolean, "True when airplane mode is on.").
		Invoke(rpc.Method((*Facade).isInAirplaneMode)),

	rpc.NewProcedure("toggleAirplaneMode", "Toggle Airplane mode. Without argument it will change the current state. Always returns the new value.").
		Params(rpc.NullableParam("new_airplane_mode", rpc.Boolean, "Desired airplane mode state")).
		Returns(rpc.Boolean, "The new airplane mode state.").
		Invoke(rpc.Method((*Facade).toggleAirplaneMode)),

	rpc.NewProcedure("getRingerVolume", "Returns the current ringer volume.").
		Returns(rpc.Integer, "The current volume as an integer.").
		Invoke(rpc.Method((*Facade).getRingerVolume)),

	rpc.NewProcedure("setRingerSilent", "Sets whether or not the ringer should be silent.").
		Params(rpc.DefaultParam("enabled", rpc.Boolean, true, "Boolean silent")).
		Invoke(rpc.VoidMethod((*Facade).setRingerSilent)),

	rpc.NewProcedure("setRingerVolume", "Sets the ringer volume.").
		Params(rpc.Param("volume", rpc.Integer, "Ringer volume")).
		Invoke(rpc.VoidMethod((*Facade).setRingerVolume)),

	rpc.NewProcedure("setWifiEnabled", "Enables or disables Wifi according to the supplied boolean.").
		Params(rpc.DefaultParam("enabled", rpc.Boolean, true, "enabled")).
		Invoke(rpc.VoidMethod((*Facade).setWifiEnabled)),
)

func (f *Facade) setScreenTimeout(ctx context.Context, args *rpc.Args) (interface{}, error) {
	value := args.Int("value")
	if value > maxScreenTimeoutSeconds || value < minScreenTimeoutSeconds {
		return nil, fmt.Errorf("%s - screen timeout %d out of range [%d,%d] seconds",
			logPrefix, value, minScreenTimeoutSeconds, maxScreenTimeoutSeconds)
	}
	old, err := f.screenTimeout(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.settings.PutInt(ctx, platform.SettingScreenOffTimeout, value*1000); err != nil {
		return nil, fmt.Errorf("%s - failed to write screen timeout: %w", logPrefix, err)
	}
	return old, nil
}

func (f *Facade) getScreenTimeout(ctx context.Context, _ *rpc.Args) (interface{}, error) {
	return f.screenTimeout(ctx)
}

// screenTimeout returns the timeout in seconds, 0 when the setting is absent.
func (f *Facade) screenTimeout(ctx context.Context) (int, error) {
	ms, err := f.settings.GetInt(ctx, platform.SettingScreenOffTimeout)
	if errors.Is(err, platform.ErrSettingNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s - failed to read screen timeout: %w", logPrefix, err)
	}
	return ms / 1000, nil
}

func (f *Facade) isInAirplaneMode(ctx context.Context, _ *rpc.Args) (interface{}, error) {
	return f.airplaneMode(ctx)
}

// airplaneMode reports the airplane mode setting, false when absent.
func (f *Facade) airplaneMode(ctx context.Context) (bool, error) {
	v, err := f.settings.GetInt(ctx, platform.SettingAirplaneModeOn)
	if errors.Is(err, platform.ErrSettingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s - failed to read airplane mode: %w", logPrefix, err)
	}
	return v == airplaneModeOn, nil
}

func (f *Facade) toggleAirplaneMode(ctx context.Context, args *rpc.Args) (interface{}, error) {
	enable, ok := args.OptBool("new_airplane_mode")
	if !ok {
		current, err := f.airplaneMode(ctx)
		if err != nil {
			return nil, err
		}
		enable = !current
	}

	value := airplaneModeOff
	if enable {
		value = airplaneModeOn
	}
	if err := f.settings.PutInt(ctx, platform.SettingAirplaneModeOn, value); err != nil {
		return nil, fmt.Errorf("%s - failed to write airplane mode: %w", logPrefix, err)
	}

	event := &events.BroadcastEvent{
		Action:    events.ActionAirplaneModeChanged,
		Extras:    map[string]interface{}{"state": enable},
		Session:   f.host.SessionID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	// The setting is already written; a lost broadcast does not undo it.
	if err := f.host.Broadcaster().Broadcast(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to broadcast %s: %v", logPrefix, event.Action, err))
	}
	return enable, nil
}

func (f *Facade) getRingerVolume(ctx context.Context, _ *rpc.Args) (interface{}, error) {
	return f.audio.StreamVolume(ctx, platform.StreamRing)
}

func (f *Facade) setRingerSilent(ctx context.Context, args *rpc.Args) error {
	mode := platform.RingerModeNormal
	if args.Bool("enabled") {
		mode = platform.RingerModeSilent
	}
	return f.audio.SetRingerMode(ctx, mode)
}

func (f *Facade) setRingerVolume(ctx context.Context, args *rpc.Args) error {
	return f.audio.SetStreamVolume(ctx, platform.StreamRing, args.Int("volume"))
}

func (f *Facade) setWifiEnabled(ctx context.Context, args *rpc.Args) error {
	return f.wifi.SetWifiEnabled(ctx, args.Bool("enabled"))
}
