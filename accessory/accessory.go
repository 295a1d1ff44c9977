package accessory

import (
	"fmt"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Accessory is a device as described in the accessories directory
type Accessory struct {
	Platform string       // Shelly, Kasa, Konnected, Tradfri, OWM, LinuxSensors, Ping -- empty for virtual devices
	Name     string       // the ID rules refer to; defaults to the config file name
	Title    string       // display name
	Type     devices.Type // switchMultilevel, toggleButton, ...
	// the accessory's address on its platform
	IP       string // the IP address or host name of the device (shelly, ping) or the gateway device ID (tradfri)
	Username string // for Shelly; city name for OWM; board key for Konnected
	Password string // for Shelly; token for Konnected
	Pin      uint8  // Konnected zone
	// optional starting level, set before any rule is installed
	Level value.Value
}

// Validate checks the fields every platform needs
func (a *Accessory) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("accessory name unset: %+v", a)
	}
	if a.Type == "" {
		return fmt.Errorf("accessory type unset: %s", a.Name)
	}
	return nil
}

// Device builds the registry entry for the accessory
func (a *Accessory) Device() *registry.Device {
	d := registry.NewDevice(a.Name, a.Type)
	if a.Title != "" {
		d.Title = a.Title
	}
	d.Platform = a.Platform
	d.Address = a.IP
	return d
}
