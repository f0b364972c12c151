// Package memory provides an in-process emulated device implementing the platform services.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/morezero/device-facades/pkg/bootstrap"
	"github.com/morezero/device-facades/pkg/events"
	"github.com/morezero/device-facades/pkg/platform"
)

const logPrefix = "memory:device"

// Device is an emulated device. It is safe for concurrent use.
type Device struct {
	mu         sync.Mutex
	settings   map[string]int
	volumes    map[platform.Stream]int
	maxVolumes map[platform.Stream]int
	ringerMode platform.RingerMode
	wifi       bool

	calls atomic.Int64
}

// NewDevice creates a Device seeded from profile. A nil profile uses the default profile.
func NewDevice(profile *bootstrap.DeviceProfile) (*Device, error) {
	if profile == nil {
		profile = bootstrap.GetDefaultDeviceProfile()
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%s - invalid profile: %w", logPrefix, err)
	}
	mode, _ := platform.ParseRingerMode(profile.Audio.RingerMode)

	d := &Device{
		settings:   make(map[string]int, len(profile.Settings)),
		volumes:    map[platform.Stream]int{platform.StreamRing: profile.Audio.RingVolume},
		maxVolumes: map[platform.Stream]int{platform.StreamRing: profile.Audio.RingMaxVolume},
		ringerMode: mode,
		wifi:       profile.Wifi.Enabled,
	}
	for name, v := range profile.Settings {
		d.settings[name] = v
	}
	slog.Debug(fmt.Sprintf("%s - Device %s seeded with %d settings", logPrefix, profile.Name, len(d.settings)))
	return d, nil
}

// Calls returns how many platform operations have been served.
func (d *Device) Calls() int64 {
	return d.calls.Load()
}

// GetInt implements platform.SettingsStore.
func (d *Device) GetInt(_ context.Context, name string) (int, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.settings[name]
	if !ok {
		return 0, platform.ErrSettingNotFound
	}
	return v, nil
}

// PutInt implements platform.SettingsStore.
func (d *Device) PutInt(_ context.Context, name string, value int) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings[name] = value
	return nil
}

// DeleteSetting removes a setting so that reads report it as not found.
func (d *Device) DeleteSetting(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.settings, name)
}

// StreamVolume implements platform.AudioManager.
func (d *Device) StreamVolume(_ context.Context, stream platform.Stream) (int, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volumes[stream], nil
}

// SetStreamVolume implements platform.AudioManager.
func (d *Device) SetStreamVolume(_ context.Context, stream platform.Stream, volume int) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	limit, ok := d.maxVolumes[stream]
	if !ok {
		limit = d.maxVolumes[platform.StreamRing]
	}
	if volume < 0 || volume > limit {
		return fmt.Errorf("volume %d out of range [0,%d] for stream %d", volume, limit, int(stream))
	}
	d.volumes[stream] = volume
	return nil
}

// RingerMode implements platform.AudioManager.
func (d *Device) RingerMode(_ context.Context) (platform.RingerMode, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ringerMode, nil
}

// SetRingerMode implements platform.AudioManager.
func (d *Device) SetRingerMode(_ context.Context, mode platform.RingerMode) error {
	d.calls.Add(1)
	if mode < platform.RingerModeSilent || mode > platform.RingerModeNormal {
		return fmt.Errorf("invalid ringer mode %d", int(mode))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ringerMode = mode
	return nil
}

// WifiEnabled implements platform.WifiManager.
func (d *Device) WifiEnabled(_ context.Context) (bool, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wifi, nil
}

// SetWifiEnabled implements platform.WifiManager.
func (d *Device) SetWifiEnabled(_ context.Context, enabled bool) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wifi = enabled
	return nil
}

// HostFactory returns a platform.HostFactory serving every session from this device.
// settings overrides the settings store when non-nil (e.g. a database-backed store).
func (d *Device) HostFactory(settings platform.SettingsStore, pub events.Publisher) platform.HostFactory {
	if settings == nil {
		settings = d
	}
	return func(sessionID string) (platform.Host, error) {
		return platform.NewHost(platform.HostParams{
			SessionID:   sessionID,
			Settings:    settings,
			Audio:       d,
			Wifi:        d,
			Broadcaster: pub,
		}), nil
	}
}
