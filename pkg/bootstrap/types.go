// Package bootstrap provides the device profile that seeds platform state at startup.
package bootstrap

// AudioProfile holds initial audio state.
type AudioProfile struct {
	RingVolume    int    `json:"ringVolume"`
	RingMaxVolume int    `json:"ringMaxVolume"`
	RingerMode    string `json:"ringerMode"`
}

// WifiProfile holds initial wifi radio state.
type WifiProfile struct {
	Enabled bool `json:"enabled"`
}

// DeviceProfile is the root device profile configuration.
type DeviceProfile struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]int `json:"settings"`
	Audio       AudioProfile   `json:"audio"`
	Wifi        WifiProfile    `json:"wifi"`
}

// Setting returns a seeded setting value and whether it is present.
func (p *DeviceProfile) Setting(name string) (int, bool) {
	if p == nil || p.Settings == nil {
		return 0, false
	}
	v, ok := p.Settings[name]
	return v, ok
}

// ProfileOverride is a device profile file as written on disk. Nil fields are
// absent from the file and keep the base value, so explicit zero values such as
// "ringVolume": 0 or "enabled": false still apply.
type ProfileOverride struct {
	Name        *string        `json:"name"`
	Version     *string        `json:"version"`
	Description *string        `json:"description"`
	Settings    map[string]int `json:"settings"`
	Audio       struct {
		RingVolume    *int    `json:"ringVolume"`
		RingMaxVolume *int    `json:"ringMaxVolume"`
		RingerMode    *string `json:"ringerMode"`
	} `json:"audio"`
	Wifi struct {
		Enabled *bool `json:"enabled"`
	} `json:"wifi"`
}
