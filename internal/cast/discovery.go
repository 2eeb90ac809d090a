package cast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const castService = "_googlecast._tcp"

// Cast devices advertise the cast protocol port over mDNS; the DIAL control
// surface we drive lives on the fixed HTTP port instead.
const dialPort = 8008

// mdnsDiscoverer browses the local network for cast devices, bounded by
// timeout. No devices answering within the window is an explicit error, not
// a hang.
type mdnsDiscoverer struct {
	timeout time.Duration

	// browse is swappable in tests; nil means a real zeroconf resolver. The
	// implementation must close entries once the context ends.
	browse func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

func (d *mdnsDiscoverer) Discover(ctx context.Context) ([]Device, error) {
	browse := d.browse
	if browse == nil {
		res, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("mdns resolver: %w", err)
		}
		browse = res.Browse
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var devices []Device
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			host := entry.HostName
			if len(entry.AddrIPv4) > 0 {
				host = entry.AddrIPv4[0].String()
			}
			if host == "" {
				continue
			}
			devices = append(devices, Device{
				Name: friendlyName(entry),
				Host: strings.TrimSuffix(host, "."),
				Port: dialPort,
			})
		}
	}()

	if err := browse(ctx, castService, "local.", entries); err != nil {
		// Browsing never started, so nothing will ever write to entries;
		// release the collector before returning.
		close(entries)
		<-done
		return nil, fmt.Errorf("browse %s: %w", castService, err)
	}

	<-ctx.Done()
	<-done

	if len(devices) == 0 {
		return nil, fmt.Errorf("cast discovery timed out after %s with no devices found", d.timeout)
	}
	return devices, nil
}

// friendlyName prefers the human-readable name from the TXT record over the
// raw mDNS instance name.
func friendlyName(entry *zeroconf.ServiceEntry) string {
	for _, txt := range entry.Text {
		if name, ok := strings.CutPrefix(txt, "fn="); ok && name != "" {
			return name
		}
	}
	return entry.Instance
}
