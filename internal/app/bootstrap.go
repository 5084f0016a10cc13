package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/announce"
	"github.com/coreman2200/funtimes-sacn/internal/capture"
	"github.com/coreman2200/funtimes-sacn/internal/component"
	"github.com/coreman2200/funtimes-sacn/internal/config"
	"github.com/coreman2200/funtimes-sacn/internal/effect"
	"github.com/coreman2200/funtimes-sacn/internal/layout"
	"github.com/coreman2200/funtimes-sacn/internal/led"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/render"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
	"github.com/coreman2200/funtimes-sacn/internal/ws"
)

// Core is the assembled receiver, effects, render engine and status server
// state for one config.
type Core struct {
	Cfg   *config.Config
	Recv  *receiver.Receiver
	Comp  *component.Component
	Eng   *render.Engine
	Reg   *effect.Registry
	State *ws.State

	capture  *capture.Writer
	announce *announce.Advertiser
}

// Options override how InitCore builds its parts. Zero values use the real
// network, the built-in effects and led.Open.
type Options struct {
	Transport  receiver.Transport
	Registry   *effect.Registry
	OpenDriver func(led.Spec) (led.Driver, error)
	Now        func() time.Time
	// Announce registers the mDNS service when the config enables it.
	Announce bool
}

func applyPostDefaults(eng *render.Engine, p config.PowerCfg) {
	for k, v := range map[string]float64{
		"Budget_mA":   p.BudgetMA,
		"LEDChan_mA":  p.ChanMA,
		"LimiterKnee": 0.9,
		"WhiteCap":    p.WhiteCap,
	} {
		if v > 0 {
			eng.SetParam(k, v)
		}
	}
}

// InitCore validates cfg and wires everything. Setup has run on return, so
// bindings are already Bound, Pending or Failed.
func InitCore(cfg *config.Config, opts Options) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = effect.NewRegistry()
		effect.Builtin(opts.Registry)
	}
	if opts.OpenDriver == nil {
		opts.OpenDriver = led.Open
	}
	if opts.Transport == nil {
		opts.Transport = receiver.UDP{Interface: cfg.Receiver.Interface}
	}

	c := &Core{Cfg: cfg, Reg: opts.Registry}

	// 1) Optional capture tap in front of the sockets
	if cfg.Capture.Path != "" {
		w, err := capture.Create(cfg.Capture.Path)
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		c.capture = w
		opts.Transport = capture.Tap(opts.Transport, w, opts.Now)
	}

	// 2) Receiver
	rl := log.With().Str("component", "receiver").Logger()
	c.Recv = receiver.New(receiver.Options{
		Transport:     opts.Transport,
		PollBudget:    cfg.Receiver.PollBudget,
		ReadDeadline:  cfg.Receiver.ReadDeadline.Std(),
		MaxAttempts:   cfg.Receiver.RetryAttempts,
		IgnorePreview: *cfg.Receiver.IgnorePreview,
		SourceTimeout: cfg.Receiver.SourceTimeout.Std(),
		Logger:        &rl,
		Now:           opts.Now,
	})
	c.Comp = component.New(c.Recv)

	// 3) Engine and post pipeline
	c.State = ws.NewState(cfg.FPS, cfg.Brightness)
	c.Eng = render.NewEngine(c.Comp, &render.Uniforms{GlobalBrightness: cfg.Brightness})
	applyPostDefaults(c.Eng, cfg.Power)
	c.Eng.SetPost(render.PostPipeline{
		Brightness: c.brightness,
		Limiter:    render.DefaultLimiter,
	})
	c.Eng.OnFrame(c.publish)

	// 4) Effects and their outputs
	for _, l := range cfg.Lights {
		if err := c.addLight(l, opts); err != nil {
			c.Close()
			return nil, err
		}
	}

	// 5) Subscribe
	if err := c.Comp.Setup(); err != nil {
		c.Close()
		return nil, err
	}

	if opts.Announce && cfg.Announce.Enabled {
		c.announce = announce.New(cfg.Receiver.Interface)
		info := announce.Info{Name: cfg.Announce.Name, Port: sacn.DefaultPort}
		if cfg.HTTP.Addr != "-" {
			info.HTTP = cfg.HTTP.Addr
		}
		for i, l := range cfg.Lights {
			if i == 0 {
				info.Port = l.Port
			}
			info.Universes = append(info.Universes, uint16(l.Universe))
		}
		if err := c.announce.Advertise(info); err != nil {
			log.Warn().Err(err).Msg("mDNS announce failed; continuing without it")
		}
	}
	return c, nil
}

func (c *Core) addLight(l config.Light, opts Options) error {
	ecfg, err := effect.NewConfig(l.Params())
	if err != nil {
		return fmt.Errorf("light %q: %w", l.Name, err)
	}
	e, err := c.Reg.New(l.Effect, ecfg)
	if err != nil {
		return fmt.Errorf("light %q: %w", l.Name, err)
	}

	pixels := l.Output.Pixels
	if pixels <= 0 {
		pixels = max(1, ecfg.FitPixels())
	}
	spec := led.Spec{
		Kind:       l.Output.Driver,
		Dev:        l.Output.Dev,
		Pixels:     pixels,
		ColorOrder: l.Output.ColorOrder,
		SpeedHz:    l.Output.SpeedHz,
	}
	drv, err := opts.OpenDriver(spec)
	if err != nil {
		log.Warn().Err(err).
			Str("light", l.Name).
			Str("driver", spec.Kind).
			Str("dev", spec.Dev).
			Msg("LED init failed; falling back to SIM")
		spec.Kind = led.KindSim
		if drv, err = opts.OpenDriver(spec); err != nil {
			return fmt.Errorf("light %q: %w", l.Name, err)
		}
	}

	if err := c.Comp.Add(e); err != nil {
		drv.Close()
		return err
	}
	return c.Eng.AddLight(render.Output{
		Effect: e,
		Driver: drv,
		Layout: layout.Layout{Width: l.Output.Layout.Width, Serpentine: l.Output.Layout.Serpentine},
		Pixels: pixels,
	})
}

// Close blanks the outputs and releases sockets, drivers and the capture
// file.
func (c *Core) Close() error {
	var errs []error
	if c.announce != nil {
		c.announce.Stop()
	}
	if c.Eng != nil {
		errs = append(errs, c.Eng.Blackout(), c.Eng.Close())
	}
	if c.Comp != nil {
		errs = append(errs, c.Comp.Close())
	}
	if c.capture != nil {
		errs = append(errs, c.capture.Close())
	}
	return errors.Join(errs...)
}
