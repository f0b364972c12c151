package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/device-facades/pkg/platform"
)

const logPrefix = "bootstrap:loader"

// LoadDeviceProfile loads a device profile from file paths or environment.
// It tries paths in order: first any paths passed in, then FACADE_DEVICE_PROFILE env, then defaults.
// A profile file only needs the fields it overrides; the rest come from the default profile.
func LoadDeviceProfile(paths ...string) (*DeviceProfile, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("FACADE_DEVICE_PROFILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/device.json", "device.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var override ProfileOverride
		if err := json.Unmarshal(data, &override); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse device profile %s: %v", logPrefix, p, err))
			continue
		}

		merged := MergeDeviceProfiles(GetDefaultDeviceProfile(), &override)
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("%s - invalid device profile %s: %w", logPrefix, p, err)
		}
		slog.Info(fmt.Sprintf("%s - Loaded device profile from %s", logPrefix, p))
		return merged, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default device profile", logPrefix))
	return GetDefaultDeviceProfile(), nil
}

// GetDefaultDeviceProfile returns the built-in fallback profile.
func GetDefaultDeviceProfile() *DeviceProfile {
	return &DeviceProfile{
		Name:        "default-device",
		Version:     "1.0.0",
		Description: "Default emulated device profile",
		Settings: map[string]int{
			platform.SettingScreenOffTimeout: 60000,
			platform.SettingAirplaneModeOn:   0,
		},
		Audio: AudioProfile{
			RingVolume:    5,
			RingMaxVolume: 7,
			RingerMode:    "normal",
		},
		Wifi: WifiProfile{Enabled: true},
	}
}

// MergeDeviceProfiles applies the fields present in override to a copy of base.
// Settings are merged key by key.
func MergeDeviceProfiles(base *DeviceProfile, override *ProfileOverride) *DeviceProfile {
	merged := *base

	merged.Settings = make(map[string]int, len(base.Settings)+len(override.Settings))
	for name, v := range base.Settings {
		merged.Settings[name] = v
	}
	for name, v := range override.Settings {
		merged.Settings[name] = v
	}

	setString(&merged.Name, override.Name)
	setString(&merged.Version, override.Version)
	setString(&merged.Description, override.Description)
	setString(&merged.Audio.RingerMode, override.Audio.RingerMode)
	if v := override.Audio.RingVolume; v != nil {
		merged.Audio.RingVolume = *v
	}
	if v := override.Audio.RingMaxVolume; v != nil {
		merged.Audio.RingMaxVolume = *v
	}
	if v := override.Wifi.Enabled; v != nil {
		merged.Wifi.Enabled = *v
	}
	return &merged
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks that the profile describes a consistent device.
func (p *DeviceProfile) Validate() error {
	if p.Audio.RingMaxVolume <= 0 {
		return fmt.Errorf("ringMaxVolume must be positive, got %d", p.Audio.RingMaxVolume)
	}
	if p.Audio.RingVolume < 0 || p.Audio.RingVolume > p.Audio.RingMaxVolume {
		return fmt.Errorf("ringVolume %d out of range [0,%d]", p.Audio.RingVolume, p.Audio.RingMaxVolume)
	}
	if _, err := platform.ParseRingerMode(p.Audio.RingerMode); err != nil {
		return err
	}
	return nil
}
