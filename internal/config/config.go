package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/effect"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

type HTTP struct {
	Addr string `yaml:"addr"` // e.g. :8080; "-" disables
}

type Receiver struct {
	Interface     string   `yaml:"interface"`
	PollBudget    int      `yaml:"poll_budget"`
	ReadDeadline  Duration `yaml:"read_deadline"`
	RetryAttempts int      `yaml:"retry_attempts"`
	IgnorePreview *bool    `yaml:"ignore_preview,omitempty"`
	SourceTimeout Duration `yaml:"source_timeout"`
}

type Capture struct {
	Path string `yaml:"path"` // CBOR capture file, empty disables
}

type Announce struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

type PowerCfg struct {
	BudgetMA float64 `yaml:"budget_ma"`
	ChanMA   float64 `yaml:"chan_ma"`
	WhiteCap float64 `yaml:"white_cap"`
}

type Layout struct {
	Width      int  `yaml:"width"`
	Serpentine bool `yaml:"serpentine"`
}

type Output struct {
	Driver     string `yaml:"driver"` // "sim" | "console" | "spi"
	Dev        string `yaml:"dev"`    // SPI port, e.g. /dev/spidev0.0
	ColorOrder string `yaml:"color_order"`
	SpeedHz    int64  `yaml:"speed_hz,omitempty"`
	Pixels     int    `yaml:"pixels,omitempty"` // physical LEDs, defaults to the effect's pixels
	Layout     Layout `yaml:"layout"`
}

type Light struct {
	Name          string             `yaml:"name"`
	Effect        string             `yaml:"effect"`
	Universe      int                `yaml:"universe"`
	StartChannel  int                `yaml:"start_channel"`
	ChannelType   channel.Type       `yaml:"channel_type"`
	TransportMode sacn.TransportMode `yaml:"transport_mode"`
	Port          int                `yaml:"port"`
	Timeout       *Duration          `yaml:"timeout,omitempty"`
	BlankOnStart  *bool              `yaml:"blank_on_start,omitempty"`
	Pixels        int                `yaml:"pixels"`
	Output        Output             `yaml:"output"`
}

type Config struct {
	FPS        int      `yaml:"fps"`
	Brightness float64  `yaml:"brightness"`
	HTTP       HTTP     `yaml:"http"`
	Receiver   Receiver `yaml:"receiver"`
	Capture    Capture  `yaml:"capture"`
	Announce   Announce `yaml:"announce"`
	Power      PowerCfg `yaml:"power"`
	Lights     []Light  `yaml:"lights"`
}

// Default returns a config with one RGB light on universe 1.
func Default() *Config {
	c := &Config{Lights: []Light{{Name: "light-1"}}}
	_ = c.Validate()
	return c
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown keys. It does not apply defaults.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate fills defaults in place and checks every light by building its
// effect config. All problems are returned joined; each is a
// *sacn.ConfigurationError wrapped with the light's name.
func (c *Config) Validate() error {
	var errs []error
	if c.FPS == 0 {
		c.FPS = 60
	}
	if c.FPS < 1 || c.FPS > 1000 {
		errs = append(errs, sacn.Configf("fps", c.FPS, "must be in [1,1000]"))
	}
	if c.Brightness == 0 {
		c.Brightness = 1
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		errs = append(errs, sacn.Configf("brightness", c.Brightness, "must be in (0,1]"))
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}

	r := &c.Receiver
	if r.PollBudget == 0 {
		r.PollBudget = receiver.DefaultPollBudget
	}
	if r.ReadDeadline == 0 {
		r.ReadDeadline = Duration(receiver.DefaultReadDeadline)
	}
	if r.RetryAttempts == 0 {
		r.RetryAttempts = receiver.DefaultAttempts
	}
	if r.IgnorePreview == nil {
		r.IgnorePreview = ptr(true)
	}
	if r.SourceTimeout == 0 {
		r.SourceTimeout = Duration(receiver.DefaultSourceTimeout)
	}
	if r.PollBudget < 0 || r.RetryAttempts < 0 || r.ReadDeadline < 0 || r.SourceTimeout < 0 {
		errs = append(errs, sacn.Configf("receiver", *r, "values must not be negative"))
	}
	if c.Announce.Name == "" {
		c.Announce.Name = "sacnlight"
	}

	seen := map[string]bool{}
	for i := range c.Lights {
		l := &c.Lights[i]
		l.applyDefaults(i)
		if seen[l.Name] {
			errs = append(errs, fmt.Errorf("light %q: %w", l.Name, sacn.Configf("name", l.Name, "duplicate light name")))
			continue
		}
		seen[l.Name] = true
		if _, err := effect.NewConfig(l.Params()); err != nil {
			errs = append(errs, fmt.Errorf("light %q: %w", l.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Light) applyDefaults(i int) {
	d := effect.DefaultParams()
	if l.Name == "" {
		l.Name = fmt.Sprintf("light-%d", i+1)
	}
	if l.Effect == "" {
		l.Effect = effect.TypeLight
	}
	if l.Universe == 0 {
		l.Universe = d.Universe
	}
	if l.StartChannel == 0 {
		l.StartChannel = d.StartChannel
	}
	if l.ChannelType == 0 {
		l.ChannelType = d.ChannelType
	}
	if l.Port == 0 {
		l.Port = d.Port
	}
	if l.Timeout == nil {
		l.Timeout = ptr(Duration(d.Timeout))
	}
	if l.BlankOnStart == nil {
		l.BlankOnStart = ptr(d.BlankOnStart)
	}
	if l.Pixels == 0 {
		l.Pixels = d.Pixels
	}
	if l.Output.Driver == "" {
		l.Output.Driver = "sim"
	}
}

// Params converts the light to effect parameters. Call after Validate.
func (l Light) Params() effect.Params {
	p := effect.Params{
		Name:          l.Name,
		Universe:      l.Universe,
		StartChannel:  l.StartChannel,
		ChannelType:   l.ChannelType,
		TransportMode: l.TransportMode,
		Port:          l.Port,
		Pixels:        l.Pixels,
	}
	if l.Timeout != nil {
		p.Timeout = time.Duration(*l.Timeout)
	}
	if l.BlankOnStart != nil {
		p.BlankOnStart = *l.BlankOnStart
	}
	return p
}

func ptr[T any](v T) *T { return &v }
