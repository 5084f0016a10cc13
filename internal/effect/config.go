package effect

import (
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/monitor"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Params is the mutable input to NewConfig. Start from DefaultParams.
type Params struct {
	Name          string
	Universe      int
	StartChannel  int
	ChannelType   channel.Type
	TransportMode sacn.TransportMode
	Port          int
	Timeout       time.Duration
	BlankOnStart  bool
	Pixels        int
}

// DefaultParams returns the documented defaults: universe 1, channel 1, RGB,
// unicast on 5568, 2500ms timeout, blanked on start, one pixel.
func DefaultParams() Params {
	return Params{
		Universe:      1,
		StartChannel:  1,
		ChannelType:   channel.RGB,
		TransportMode: sacn.Unicast,
		Port:          sacn.DefaultPort,
		Timeout:       monitor.DefaultTimeout,
		BlankOnStart:  true,
		Pixels:        1,
	}
}

// Config is a validated, immutable effect configuration.
type Config struct {
	name         string
	universe     uint16
	startChannel int
	channelType  channel.Type
	mode         sacn.TransportMode
	port         int
	timeout      time.Duration
	blankOnStart bool
	pixels       int
}

// NewConfig validates p. Every failure is a *sacn.ConfigurationError.
func NewConfig(p Params) (Config, error) {
	if err := sacn.ValidateUniverse(p.Universe); err != nil {
		return Config{}, err
	}
	if err := sacn.ValidatePort(p.Port); err != nil {
		return Config{}, err
	}
	if p.TransportMode != sacn.Unicast && p.TransportMode != sacn.Multicast {
		return Config{}, sacn.Configf("transport_mode", p.TransportMode, "unknown transport mode")
	}
	if p.Timeout < 0 {
		return Config{}, sacn.Configf("timeout", p.Timeout, "must not be negative")
	}
	if p.Pixels < 1 {
		return Config{}, sacn.Configf("pixels", p.Pixels, "must be at least 1")
	}
	if err := channel.ValidateSlice(p.StartChannel, p.ChannelType, 1); err != nil {
		return Config{}, err
	}
	return Config{
		name:         p.Name,
		universe:     uint16(p.Universe),
		startChannel: p.StartChannel,
		channelType:  p.ChannelType,
		mode:         p.TransportMode,
		port:         p.Port,
		timeout:      p.Timeout,
		blankOnStart: p.BlankOnStart,
		pixels:       p.Pixels,
	}, nil
}

func (c Config) Name() string                      { return c.name }
func (c Config) Universe() uint16                  { return c.universe }
func (c Config) StartChannel() int                 { return c.startChannel }
func (c Config) ChannelType() channel.Type         { return c.channelType }
func (c Config) TransportMode() sacn.TransportMode { return c.mode }
func (c Config) Port() int                         { return c.port }
func (c Config) Timeout() time.Duration            { return c.timeout }
func (c Config) BlankOnStart() bool                { return c.blankOnStart }
func (c Config) Pixels() int                       { return c.pixels }

// FitPixels is the pixel count actually driven: Pixels clamped to what fits
// between StartChannel and the end of the universe.
func (c Config) FitPixels() int {
	w := c.channelType.Width()
	if w == 0 {
		return 0
	}
	return min(c.pixels, (sacn.Slots-(c.startChannel-1))/w)
}
