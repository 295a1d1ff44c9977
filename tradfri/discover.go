package tradfri

import (
	"context"
	"strings"
	"time"

	"github.com/brutella/dnssd"
	"github.com/brutella/hc/log"
)

// discover finds a gateway on the local network via mDNS; empty if none answered
func discover() (string, error) {
	discovered := ""
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	found := func(e dnssd.BrowseEntry) {
		if !strings.HasPrefix(e.Name, "gw-") {
			return
		}
		// IPv6 gateways do not answer DTLS
		for _, ip := range e.IPs {
			if ip.To4() != nil {
				discovered = ip.String()
				cancel()
				return
			}
		}
	}
	gone := func(e dnssd.BrowseEntry) {
		log.Debug.Printf("tradfri gateway left: %s", e.Name)
	}

	if err := dnssd.LookupType(ctx, "_coap._udp.local.", found, gone); err != nil && ctx.Err() == nil {
		return "", err
	}
	return discovered, nil
}
