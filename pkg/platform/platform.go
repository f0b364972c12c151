// Package platform declares the device services that facades call into.
// Receivers reach them only through the Host handed to them at construction.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/device-facades/pkg/events"
)

// ErrSettingNotFound is returned by a SettingsStore for a setting that was never written.
var ErrSettingNotFound = errors.New("platform: setting not found")

// System setting names.
const (
	SettingScreenOffTimeout = "screen_off_timeout"
	SettingAirplaneModeOn   = "airplane_mode_on"
)

// SettingsStore reads and writes integer system settings.
type SettingsStore interface {
	GetInt(ctx context.Context, name string) (int, error)
	PutInt(ctx context.Context, name string, value int) error
}

// Stream identifies an audio stream.
type Stream int

// Audio streams.
const (
	StreamVoiceCall Stream = 0
	StreamSystem    Stream = 1
	StreamRing      Stream = 2
	StreamMusic     Stream = 3
	StreamAlarm     Stream = 4
)

// RingerMode is the device ringer mode.
type RingerMode int

// Ringer modes.
const (
	RingerModeSilent  RingerMode = 0
	RingerModeVibrate RingerMode = 1
	RingerModeNormal  RingerMode = 2
)

func (m RingerMode) String() string {
	switch m {
	case RingerModeSilent:
		return "silent"
	case RingerModeVibrate:
		return "vibrate"
	case RingerModeNormal:
		return "normal"
	default:
		return fmt.Sprintf("RingerMode(%d)", int(m))
	}
}

// ParseRingerMode parses "silent", "vibrate" or "normal" (case-insensitive).
func ParseRingerMode(s string) (RingerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent":
		return RingerModeSilent, nil
	case "vibrate":
		return RingerModeVibrate, nil
	case "normal", "":
		return RingerModeNormal, nil
	}
	return 0, fmt.Errorf("platform: unknown ringer mode %q", s)
}

// AudioManager controls stream volumes and the ringer mode.
type AudioManager interface {
	StreamVolume(ctx context.Context, stream Stream) (int, error)
	SetStreamVolume(ctx context.Context, stream Stream, volume int) error
	RingerMode(ctx context.Context) (RingerMode, error)
	SetRingerMode(ctx context.Context, mode RingerMode) error
}

// WifiManager toggles the wifi radio.
type WifiManager interface {
	WifiEnabled(ctx context.Context) (bool, error)
	SetWifiEnabled(ctx context.Context, enabled bool) error
}

// Host is the service-access point a session hands to every receiver it constructs.
type Host interface {
	SessionID() string
	Settings() SettingsStore
	Audio() AudioManager
	Wifi() WifiManager
	Broadcaster() events.Publisher
}

// HostParams holds parameters for NewHost.
type HostParams struct {
	SessionID   string
	Settings    SettingsStore
	Audio       AudioManager
	Wifi        WifiManager
	Broadcaster events.Publisher
}

type host struct {
	sessionID   string
	settings    SettingsStore
	audio       AudioManager
	wifi        WifiManager
	broadcaster events.Publisher
}

// NewHost assembles a Host from individual services. A nil Broadcaster is replaced by a no-op.
func NewHost(params HostParams) Host {
	pub := params.Broadcaster
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &host{
		sessionID:   params.SessionID,
		settings:    params.Settings,
		audio:       params.Audio,
		wifi:        params.Wifi,
		broadcaster: pub,
	}
}

func (h *host) SessionID() string             { return h.sessionID }
func (h *host) Settings() SettingsStore       { return h.settings }
func (h *host) Audio() AudioManager           { return h.audio }
func (h *host) Wifi() WifiManager             { return h.wifi }
func (h *host) Broadcaster() events.Publisher { return h.broadcaster }

// HostFactory builds the Host for a new session.
type HostFactory func(sessionID string) (Host, error)
