// Package cast drives networked playback devices: mDNS discovery of cast
// endpoints on the local network and play/stop control over their DIAL HTTP
// interface. Failures here are reported to the caller and never touch
// session state.
package cast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"karaoke-service/internal/resolver"
)

// DefaultDiscoveryTimeout bounds how long a discovery sweep may take.
const DefaultDiscoveryTimeout = 10 * time.Second

// Device is one discovered cast endpoint.
type Device struct {
	Name string
	Host string
	Port int
}

type discoverer interface {
	Discover(ctx context.Context) ([]Device, error)
}

// controller is a point-to-point handle on a single device.
type controller interface {
	Play(ctx context.Context, v resolver.Video) error
	Stop(ctx context.Context) error
}

type controllerFactory func(d Device) controller

// Caster discovers devices and issues play/stop against them. Connections are
// cached by device name for the life of the process, lazily created, with no
// eviction beyond dropping an entry whose call failed so the next use
// reconnects.
type Caster struct {
	discovery  discoverer
	newControl controllerFactory

	mu       sync.Mutex
	conns    map[string]controller
	lastUsed string // device name of the most recent controller use
}

func NewCaster(discoveryTimeout time.Duration) *Caster {
	if discoveryTimeout <= 0 {
		discoveryTimeout = DefaultDiscoveryTimeout
	}
	return &Caster{
		discovery:  &mdnsDiscoverer{timeout: discoveryTimeout},
		newControl: newDialController,
		conns:      make(map[string]controller),
	}
}

// ListDevices returns the names of devices currently answering on the local
// network.
func (c *Caster) ListDevices(ctx context.Context) ([]string, error) {
	devices, err := c.discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}

// Play asks the named device to play the video. An empty device name picks
// the first device found on the network.
func (c *Caster) Play(ctx context.Context, v resolver.Video, device string) error {
	ctrl, name, err := c.controllerFor(ctx, device)
	if err != nil {
		return err
	}
	if err := ctrl.Play(ctx, v); err != nil {
		c.dropConn(name)
		return fmt.Errorf("play on %s: %w", name, err)
	}
	return nil
}

// Stop asks the named device to stop playback. An empty device name targets
// the most recently used device.
func (c *Caster) Stop(ctx context.Context, device string) error {
	if device == "" {
		c.mu.Lock()
		device = c.lastUsed
		c.mu.Unlock()
		if device == "" {
			return fmt.Errorf("no connected cast devices")
		}
	}

	ctrl, name, err := c.controllerFor(ctx, device)
	if err != nil {
		return err
	}
	if err := ctrl.Stop(ctx); err != nil {
		c.dropConn(name)
		return fmt.Errorf("stop on %s: %w", name, err)
	}
	return nil
}

// controllerFor returns a cached or freshly connected controller. Discovery
// runs only when the name is unknown or unset.
func (c *Caster) controllerFor(ctx context.Context, device string) (controller, string, error) {
	if device != "" {
		c.mu.Lock()
		ctrl, ok := c.conns[device]
		if ok {
			c.lastUsed = device
		}
		c.mu.Unlock()
		if ok {
			return ctrl, device, nil
		}
	}

	devices, err := c.discovery.Discover(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("discover cast devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, "", fmt.Errorf("no cast devices available")
	}

	var found *Device
	if device == "" {
		found = &devices[0]
	} else {
		for i := range devices {
			if devices[i].Name == device {
				found = &devices[i]
				break
			}
		}
	}
	if found == nil {
		return nil, "", fmt.Errorf("cast device not found: %s", device)
	}

	ctrl := c.newControl(*found)
	c.mu.Lock()
	c.conns[found.Name] = ctrl
	c.lastUsed = found.Name
	c.mu.Unlock()
	return ctrl, found.Name, nil
}

func (c *Caster) dropConn(name string) {
	c.mu.Lock()
	delete(c.conns, name)
	if c.lastUsed == name {
		c.lastUsed = ""
	}
	c.mu.Unlock()
}
