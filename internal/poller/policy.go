package poller

import (
	"fmt"
	"strings"

	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/player"
)

// DevicePolicy picks the device playback should be transferred to.
type DevicePolicy interface {
	Select(devices []player.Device) (player.Device, bool)
	Name() string
}

// TypePolicy prefers devices by type, in the order of Types.
type TypePolicy struct {
	Types []string
}

func (p TypePolicy) Name() string { return config.DevicePolicyType }

func (p TypePolicy) Select(devices []player.Device) (player.Device, bool) {
	for _, want := range p.Types {
		for _, d := range devices {
			if d.ID != "" && strings.EqualFold(d.Type, want) {
				return d, true
			}
		}
	}
	return player.Device{}, false
}

// NamePolicy picks the first device whose name contains Hint, ignoring case.
type NamePolicy struct {
	Hint string
}

func (p NamePolicy) Name() string { return config.DevicePolicyName }

func (p NamePolicy) Select(devices []player.Device) (player.Device, bool) {
	hint := strings.ToLower(strings.TrimSpace(p.Hint))
	if hint == "" {
		return player.Device{}, false
	}
	for _, d := range devices {
		if d.ID != "" && strings.Contains(strings.ToLower(d.Name), hint) {
			return d, true
		}
	}
	return player.Device{}, false
}

// FirstPolicy picks the first device.
type FirstPolicy struct{}

func (FirstPolicy) Name() string { return config.DevicePolicyFirst }

func (FirstPolicy) Select(devices []player.Device) (player.Device, bool) {
	for _, d := range devices {
		if d.ID != "" {
			return d, true
		}
	}
	return player.Device{}, false
}

// NewDevicePolicy builds the policy named by cfg.Policy.
func NewDevicePolicy(cfg config.DeviceConfig) (DevicePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", config.DevicePolicyType:
		types := cfg.Types
		if len(types) == 0 {
			types = config.DefaultDeviceTypes
		}
		return TypePolicy{Types: append([]string(nil), types...)}, nil
	case config.DevicePolicyName:
		if strings.TrimSpace(cfg.NameHint) == "" {
			return nil, fmt.Errorf("device policy %q requires a name hint", cfg.Policy)
		}
		return NamePolicy{Hint: cfg.NameHint}, nil
	case config.DevicePolicyFirst:
		return FirstPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown device policy %q", cfg.Policy)
	}
}
