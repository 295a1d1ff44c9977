package tradfri

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dustin/go-coap"
	"github.com/eriklupander/tradfri-go/dtlscoap"
	"github.com/eriklupander/tradfri-go/model"
)

// most of this is stolen shamelessly from eriklupander/tradfri-go/tradfri and adjusted for my needs

// Client provides a declarative API for sending CoAP messages to the gateway over DTLS.
type Client struct {
	dtlsclient *dtlscoap.DtlsClient
}

// NewTradfriClient creates a new instance of Client, including initiating the DTLS client.
func NewTradfriClient(gatewayAddress, clientID, psk string) *Client {
	client := &Client{}
	client.dtlsclient = dtlscoap.NewDtlsClient(gatewayAddress, clientID, psk)
	return client
}

// PutDeviceDimming sets the dimming property (0-254) of the specified device.
// The device must be a bulb supporting dimming, otherwise the call if ineffectual.
func (tc *Client) PutDeviceDimming(deviceID string, dimming int) (model.Result, error) {
	payload := fmt.Sprintf(`{ "3311": [{ "5851": %d }] }`, dimming)
	return tc.put(deviceID, payload)
}

// PutDevicePower switches the power state of the specified device
func (tc *Client) PutDevicePower(deviceID string, power bool) (model.Result, error) {
	p := 0
	if power {
		p = 1
	}
	payload := fmt.Sprintf(`{ "3311": [{ "5850": %d }] }`, p)
	return tc.put(deviceID, payload)
}

// PutDeviceColorHSL sets the color of the bulb using the HSL color notation
// This is more effictive than RGB because RGB is always at full brightness, ("000000" is the same as "ffffff")
func (tc *Client) PutDeviceColorHSL(deviceID string, hue float64, saturation float64, lightness float64) (model.Result, error) {
	return tc.PutDeviceColorHSLTimed(deviceID, hue, saturation, lightness, 500)
}

// PutDeviceColorHSLTimed does the same as PutDeviceColorHSL but it gives you the ability to change the speed at which the color changes
func (tc *Client) PutDeviceColorHSLTimed(deviceID string, hue float64, saturation float64, lightness float64, transitionTimeMS int) (model.Result, error) {
	payload := hslPayload(hue, saturation, lightness, transitionTimeMS)
	return tc.put(deviceID, payload)
}

// GetDevice reads one device's state from the gateway
func (tc *Client) GetDevice(deviceID string) (model.Device, error) {
	device := &model.Device{}

	resp, err := tc.Call(tc.dtlsclient.BuildGETMessage(toDeviceUri(deviceID)))
	if err != nil {
		return *device, err
	}

	err = json.Unmarshal(resp.Payload, &device)
	if err != nil {
		return *device, err
	}
	return *device, nil
}

// Call is just a proxy to the underlying DtlsClient Call
func (tc *Client) Call(msg coap.Message) (coap.Message, error) {
	return tc.dtlsclient.Call(msg)
}

func (tc *Client) put(deviceID, payload string) (model.Result, error) {
	resp, err := tc.Call(tc.dtlsclient.BuildPUTMessage(toDeviceUri(deviceID), payload))
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{Msg: resp.Code.String()}, nil
}

func hslPayload(hue, saturation, lightness float64, transitionTimeMS int) string {
	hueInt := int(mapRange(hue, 0, 360, 0, 65279))
	saturationInt := int(mapRange(saturation, 0, 100, 0, 65279))
	lightnessInt := int(mapRange(lightness, 0, 100, 0, 254))

	return fmt.Sprintf(`{ "3311": [ {"5707": %d, "5708": %d, "5851": %d, "5712": %d}] }`, hueInt, saturationInt, lightnessInt, transitionTimeMS/100)
}

func mapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

func rgbToHsl(rInt int, gInt int, bInt int) (float64, float64, float64) {
	var r float64 = float64(rInt) / 255
	var g float64 = float64(gInt) / 255
	var b float64 = float64(bInt) / 255

	var maximum float64 = math.Max(r, math.Max(g, b))
	var minimum float64 = math.Min(r, math.Min(g, b))

	var h, s, l float64
	h = (maximum + minimum) / 2
	l = h

	if maximum == minimum {
		h = 0
		s = 0
	} else {
		d := maximum - minimum

		if l > 0.5 {
			s = d / (2 - maximum - minimum)
		} else {
			s = d / (maximum + minimum)
		}

		switch maximum {
		case r:
			if g < b {
				h = (g-b)/d + 6
			} else {
				h = (g-b)/d + 0
			}
		case g:
			h = (b-r)/d + 2
		case b:
			h = (r-g)/d + 4
		}
		h /= 6
	}

	h *= 360
	s *= 100
	l *= 100

	return h, s, l
}

func toDeviceUri(deviceID string) string {
	return fmt.Sprintf("/15001/%s", deviceID)
}
