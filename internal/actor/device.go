package actor

import (
	"fmt"
	"sort"
)

// Device is a browser viewport and identity profile.
type Device struct {
	Name      string
	Width     int
	Height    int
	UserAgent string
	Mobile    bool
	Touch     bool
	Scale     float64
}

const (
	DevicePC       = "pc"
	DeviceIPhone   = "sp-iphone"
	DeviceGalaxy   = "sp-galaxy"
	iphoneAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	galaxyAgent    = "Mozilla/5.0 (Linux; Android 13; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	defaultPCScale = 1
)

var devices = map[string]Device{
	DevicePC:     {Name: DevicePC, Width: 1280, Height: 720, Scale: defaultPCScale},
	DeviceIPhone: {Name: DeviceIPhone, Width: 375, Height: 812, UserAgent: iphoneAgent, Mobile: true, Touch: true, Scale: 3},
	DeviceGalaxy: {Name: DeviceGalaxy, Width: 360, Height: 740, UserAgent: galaxyAgent, Mobile: true, Touch: true, Scale: 3},
}

// LookupDevice returns the named profile. An empty name means pc.
func LookupDevice(name string) (Device, error) {
	if name == "" {
		name = DevicePC
	}
	d, ok := devices[name]
	if !ok {
		return Device{}, fmt.Errorf("unknown device %q (known: %v)", name, DeviceNames())
	}
	return d, nil
}

// DeviceNames lists the known profiles in sorted order.
func DeviceNames() []string {
	names := make([]string, 0, len(devices))
	for n := range devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
