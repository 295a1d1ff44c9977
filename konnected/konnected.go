package konnected

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

// sent by the board on every zone change, and listed by /device
type sensor struct {
	Pin   uint8 `json:"pin"`
	State uint8 `json:"state"`
}

type board struct {
	ip    string
	token string
	pins  map[uint8]string // pin -> device ID
}

// Platform is the handle to the Konnected alarm panels. Each zone is its own
// sensorBinary device: "on" while the zone is open or tripped.
type Platform struct {
	reg    *registry.Registry
	client *http.Client
	pull   time.Duration

	mu     sync.RWMutex
	boards map[string]*board // indexed by the board key in the callback URL
}

// New returns the platform; zones report into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:    reg,
		client: &http.Client{Timeout: 5 * time.Second},
		boards: make(map[string]*board),
	}
}

// Startup is called by the platform management to get things going
func (k *Platform) Startup(c *config.Config) error {
	k.client.Timeout = time.Duration(c.KonnectedTimeout) * time.Second
	k.pull = time.Duration(c.KonnectedPullRate) * time.Second
	return nil
}

// Shutdown is called by the platform management to shut things down
func (k *Platform) Shutdown() {}

// AddAccessory adds one zone of a board; the board key goes in Username, the token in Password
func (k *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.Username == "" || a.IP == "" {
		return fmt.Errorf("konnected zone %s needs the board key and IP address", a.Name)
	}
	if d.Type() != devices.SensorBinary {
		return fmt.Errorf("konnected zone %s must be a %s", a.Name, devices.SensorBinary)
	}

	k.mu.Lock()
	b, ok := k.boards[a.Username]
	if !ok {
		b = &board{ip: a.IP, token: a.Password, pins: make(map[uint8]string)}
		k.boards[a.Username] = b
	}
	if other, ok := b.pins[a.Pin]; ok {
		k.mu.Unlock()
		return fmt.Errorf("pin %d of %s is already %s", a.Pin, a.Username, other)
	}
	b.pins[a.Pin] = d.ID()
	k.mu.Unlock()

	if err := k.getStatusAndUpdate(a.Username); err != nil {
		log.Info.Printf("unable to read konnected [%s]: %s", a.Username, err.Error())
	}
	return nil
}

// Command: zones take no commands
func (k *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	return fmt.Errorf("konnected zone %s takes no commands", d.ID())
}

// Handler is registered with the HTTP server at /konnected/{device}.
// If the board doesn't get a 200 in response, it retries, and failing several retries, it reboots,
// so we say OK no matter what.
func (k *Platform) Handler(w http.ResponseWriter, r *http.Request) {
	defer fmt.Fprint(w, `{ "status": "OK" }`)

	key := mux.Vars(r)["device"]
	k.mu.RLock()
	b, ok := k.boards[key]
	k.mu.RUnlock()
	if !ok {
		log.Info.Printf("konnected state from unknown device (%s / %s), ignoring", r.RemoteAddr, key)
		return
	}

	// verify token, if set in local config
	if b.token != "" && strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != b.token {
		log.Info.Printf("konnected [%s]: authorization token invalid", key)
		return
	}

	jBlob, err := ioutil.ReadAll(r.Body)
	if err != nil {
		log.Info.Printf("konnected: unable to read update")
		return
	}
	// if konnected provisioned with a trailing / on the url..
	if len(jBlob) == 0 {
		log.Info.Printf("konnected: sent empty message")
		if err := k.getStatusAndUpdate(key); err != nil {
			log.Info.Println(err.Error())
		}
		return
	}

	var p sensor
	if err := json.Unmarshal(jBlob, &p); err != nil {
		log.Info.Printf("konnected: unable to understand update")
		return
	}
	k.update(b, p)
}

// Background pulls every board's zones
func (k *Platform) Background(ctx context.Context) {
	if k.pull == 0 {
		log.Info.Println("pull rate set to 0, disabling konnected puller")
		return
	}
	go func() {
		t := time.NewTicker(k.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				k.backgroundPuller()
			}
		}
	}()
}

func (k *Platform) backgroundPuller() {
	k.mu.RLock()
	keys := make([]string, 0, len(k.boards))
	for key := range k.boards {
		keys = append(keys, key)
	}
	k.mu.RUnlock()

	for _, key := range keys {
		if err := k.getStatusAndUpdate(key); err != nil {
			log.Info.Println(err.Error())
		}
	}
}

func (k *Platform) getStatusAndUpdate(key string) error {
	k.mu.RLock()
	b, ok := k.boards[key]
	k.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown konnected board %s", key)
	}

	resp, err := k.client.Get(fmt.Sprintf("http://%s/device", b.ip))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var status []sensor
	if err := json.Unmarshal(body, &status); err != nil {
		return err
	}
	for _, s := range status {
		k.update(b, s)
	}
	return nil
}

func (k *Platform) update(b *board, s sensor) {
	k.mu.RLock()
	id, ok := b.pins[s.Pin]
	k.mu.RUnlock()
	if !ok {
		log.Debug.Printf("konnected pin %d not configured", s.Pin)
		return
	}
	state := value.Off
	if s.State == 1 {
		state = value.On
	}
	k.reg.Set(id, devices.MetricLevel, state)
}
