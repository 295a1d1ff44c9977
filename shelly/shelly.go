package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	"github.com/gorilla/mux"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// /relay/0
type shellyRelay struct {
	IsOn bool `json:"ison"`
}

type creds struct {
	username, password string
}

// Platform is the handle to the shelly devices
type Platform struct {
	reg    *registry.Registry
	client *http.Client
	pull   time.Duration

	mu       sync.RWMutex
	shellies map[string]*registry.Device // indexed by IP address
	creds    map[string]creds
}

// New returns the platform; devices report into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:      reg,
		client:   &http.Client{Timeout: 5 * time.Second},
		shellies: make(map[string]*registry.Device),
		creds:    make(map[string]creds),
	}
}

// Startup is called by the platform management to get things going
func (s *Platform) Startup(c *config.Config) error {
	s.client.Timeout = time.Duration(c.ShellyTimeout) * time.Second
	s.pull = time.Duration(c.ShellyPullRate) * time.Second
	return nil
}

// Shutdown is called by the platform management to shut things down
func (s *Platform) Shutdown() {}

// AddAccessory adds a Shelly relay and reads its current state
func (s *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.IP == "" {
		return fmt.Errorf("shelly %s has no IP address", a.Name)
	}
	s.mu.Lock()
	if _, ok := s.shellies[a.IP]; ok {
		s.mu.Unlock()
		return fmt.Errorf("already have a device with this IP address: %s", a.IP)
	}
	s.shellies[a.IP] = d
	s.creds[a.IP] = creds{a.Username, a.Password}
	s.mu.Unlock()

	r, err := s.getState(a.IP)
	if err != nil {
		log.Info.Printf("unable to read shelly [%s]: %s", a.Name, err.Error())
		return nil
	}
	s.reg.Set(d.ID(), devices.MetricLevel, onOff(r.IsOn))
	return nil
}

// Command switches the relay
func (s *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	if name != "on" && name != "off" {
		return fmt.Errorf("shelly relays only take on/off, not %s", name)
	}
	newstate := name == "on"
	log.Info.Printf("setting Shelly hardware [%s] to: %s", d.ID(), name)
	state, err := s.setState(d.Address, newstate)
	if err != nil {
		return err
	}
	if state.IsOn != newstate {
		return fmt.Errorf("unable to update shelly state to %t", newstate)
	}
	return nil
}

// Handler is registered with the HTTP platform; shelly action URLs call it
// when the switch is flipped by hand
func (s *Platform) Handler(w http.ResponseWriter, r *http.Request) {
	cmd := mux.Vars(r)["cmd"]

	// use LastIndex since ipv6...
	remoteAddr := r.RemoteAddr[:strings.LastIndex(r.RemoteAddr, ":")]
	remoteAddr = strings.Trim(remoteAddr, "[]")

	s.mu.RLock()
	d, ok := s.shellies[remoteAddr]
	s.mu.RUnlock()
	if !ok {
		log.Info.Printf("shelly state from unknown device (%s), ignoring", remoteAddr)
		http.Error(w, `{ "status": "bad" }`, http.StatusNotAcceptable)
		return
	}

	log.Info.Printf("from shelly [%s] to me: [%s]", r.RemoteAddr, cmd)
	switch cmd {
	case "on", "outon":
		s.reg.Set(d.ID(), devices.MetricLevel, value.On)
	case "off", "outoff":
		s.reg.Set(d.ID(), devices.MetricLevel, value.Off)
	default:
		log.Info.Printf("unknown shelly command: %s from %s", cmd, r.RemoteAddr)
		http.Error(w, `{ "status": "bad" }`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	fmt.Fprint(w, `{ "status": "OK" }`)
}

// Background starts up the go process to periodically verify the shelly's state
func (s *Platform) Background(ctx context.Context) {
	if s.pull == 0 {
		return
	}
	go func() {
		t := time.NewTicker(s.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.backgroundPuller()
			}
		}
	}()
}

func (s *Platform) backgroundPuller() {
	s.mu.RLock()
	ips := make(map[string]*registry.Device, len(s.shellies))
	for ip, d := range s.shellies {
		ips[ip] = d
	}
	s.mu.RUnlock()

	for ip, d := range ips {
		r, err := s.getState(ip)
		if err != nil {
			log.Info.Println(err.Error())
			continue
		}
		s.reg.Set(d.ID(), devices.MetricLevel, onOff(r.IsOn))
	}
}

func (s *Platform) setState(ip string, newstate bool) (*shellyRelay, error) {
	grr := "off"
	if newstate {
		grr = "on"
	}
	return s.relay(ip, fmt.Sprintf("http://%s/relay/0?turn=%s", ip, grr))
}

func (s *Platform) getState(ip string) (*shellyRelay, error) {
	return s.relay(ip, fmt.Sprintf("http://%s/relay/0", ip))
}

func (s *Platform) relay(ip, url string) (*shellyRelay, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	c := s.creds[ip]
	s.mu.RUnlock()
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shelly %s: %s", ip, resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var r shellyRelay
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func onOff(b bool) value.Value {
	if b {
		return value.On
	}
	return value.Off
}
