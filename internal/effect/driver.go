package effect

import (
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/monitor"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
)

// Driver turns universe state into colors for one effect, gated by the
// effect's own timeout monitor.
type Driver struct {
	cfg Config
	mon *monitor.Monitor
}

// NewDriver creates a driver watching the configured universe.
func NewDriver(cfg Config) *Driver {
	m := monitor.New(cfg.Timeout(), cfg.BlankOnStart())
	m.Watch(cfg.Universe())
	return &Driver{cfg: cfg, mon: m}
}

func (d *Driver) Config() Config            { return d.cfg }
func (d *Driver) Monitor() *monitor.Monitor { return d.mon }

// MarkReceived records fresh data for the effect's universe.
func (d *Driver) MarkReceived(now time.Time) { d.mon.MarkReceived(d.cfg.Universe(), now) }

// Terminate blanks the effect until the next packet.
func (d *Driver) Terminate() { d.mon.Terminate(d.cfg.Universe()) }

// Blanked reports whether output is currently forced off.
func (d *Driver) Blanked(now time.Time) bool { return d.mon.IsBlanked(d.cfg.Universe(), now) }

// Tick maps one fixture. It returns false when there is nothing to show: the
// universe is not subscribed (nil state) or the monitor has it blanked.
func (d *Driver) Tick(state *receiver.UniverseState, now time.Time) (channel.Color, bool) {
	if !d.live(state, now) {
		return channel.Color{}, false
	}
	return channel.Map(&state.Channels, d.cfg.StartChannel(), d.cfg.ChannelType()), true
}

// TickPixels maps FitPixels consecutive fixtures under the same gating as Tick.
func (d *Driver) TickPixels(state *receiver.UniverseState, now time.Time) ([]channel.Color, bool) {
	if !d.live(state, now) {
		return nil, false
	}
	return channel.MapPixels(&state.Channels, d.cfg.StartChannel(), d.cfg.ChannelType(), d.cfg.FitPixels()), true
}

func (d *Driver) live(state *receiver.UniverseState, now time.Time) bool {
	if state == nil || state.Universe != d.cfg.Universe() {
		return false
	}
	return !d.mon.IsBlanked(d.cfg.Universe(), now)
}
