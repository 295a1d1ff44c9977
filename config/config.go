package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/brutella/hc"
)

// Config is the primary daemon configuration...
type Config struct {
	ConfigDir   string    // passed in from CLI
	ConfigFile  string    // server.json
	HTTPAddress string    // net.Dial address format, :port is good enough
	Name        string    // what this bridge shows as
	ID          string    // displayed serial number -- if you run multiple instances, make sure each has a distinct ID
	HomeKit     bool      // expose the devices as a HomeKit bridge
	HCConfig    hc.Config // base HomeControl configuration
	Debug       bool

	ShellyPullRate int // (seconds) 0 to disable pulling
	ShellyTimeout  int // how long to wait for direct pulls

	KasaPullRate int // (seconds) 0 to disable pulling
	KasaTimeout  int // (seconds) per request, defaults to 10

	KonnectedPullRate int // (seconds) 0 to disable pulling
	KonnectedTimeout  int // (seconds) per request, defaults to 5

	TradfriGateway  string // IP of the gateway, empty to look for one
	TradfriIdentity string
	TradfriPSK      string

	OWMKey      string // OpenWeatherMap API key, empty to disable
	OWMUnits    string // C, F or K -- defaults to C
	OWMPullRate int    // (seconds) defaults to 300

	SensorPullRate int // (seconds) host sensors, defaults to 300
	PingPullRate   int // (seconds) presence pings, defaults to 60
	PingTimeout    int // (seconds) per host, defaults to 5
}

// Load reads server.json from dir
func Load(dir, file string) (*Config, error) {
	fulldir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to get config directory %s: %w", dir, err)
	}
	cfd := filepath.Join(fulldir, file)
	raw, err := ioutil.ReadFile(cfd)
	if err != nil {
		return nil, fmt.Errorf("unable to open config %s: %w", cfd, err)
	}

	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", cfd, err)
	}
	c.ConfigDir = fulldir
	c.ConfigFile = cfd
	c.defaults()
	return &c, nil
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "IfThen"
	}
	if c.HTTPAddress == "" {
		c.HTTPAddress = ":8080"
	}
	if c.OWMUnits == "" {
		c.OWMUnits = "C"
	}
	if c.OWMPullRate == 0 {
		c.OWMPullRate = 300
	}
	if c.SensorPullRate == 0 {
		c.SensorPullRate = 300
	}
	if c.PingPullRate == 0 {
		c.PingPullRate = 60
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5
	}
	if c.KonnectedTimeout == 0 {
		c.KonnectedTimeout = 5
	}
	if c.ShellyTimeout == 0 {
		c.ShellyTimeout = 5
	}
}
