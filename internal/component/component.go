// Package component hosts the sACN receiver and its effects behind a
// setup/loop lifecycle.
package component

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/effect"
	"github.com/coreman2200/funtimes-sacn/internal/monitor"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
)

var (
	ErrDuplicate = errors.New("effect already added")
	ErrNotFound  = errors.New("effect not found")
)

// Component owns a receiver and the effects fed by it.
type Component struct {
	recv    *receiver.Receiver
	effects []effect.Effect
	started bool
	log     zerolog.Logger
}

func New(recv *receiver.Receiver) *Component {
	return &Component{
		recv: recv,
		log:  log.With().Str("component", "sacn").Logger(),
	}
}

func (c *Component) Receiver() *receiver.Receiver { return c.recv }

// Effects returns the effects in insertion order.
func (c *Component) Effects() []effect.Effect {
	return append([]effect.Effect(nil), c.effects...)
}

// Add registers an effect. After Setup it is subscribed immediately.
func (c *Component) Add(e effect.Effect) error {
	for _, x := range c.effects {
		if x.Name() != "" && x.Name() == e.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicate, e.Name())
		}
	}
	if c.started {
		if err := c.start(e); err != nil {
			return err
		}
	}
	c.effects = append(c.effects, e)
	return nil
}

// Remove stops an effect and releases its subscription.
func (c *Component) Remove(name string) error {
	for i, e := range c.effects {
		if e.Name() != name {
			continue
		}
		if c.started {
			c.stop(e)
		}
		c.effects = append(c.effects[:i], c.effects[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Setup subscribes every effect's universe. A configuration error aborts
// setup and releases what was already subscribed.
func (c *Component) Setup() error {
	if c.started {
		return nil
	}
	for i, e := range c.effects {
		if err := c.start(e); err != nil {
			for _, prev := range c.effects[:i] {
				c.stop(prev)
			}
			return err
		}
	}
	c.recv.OnFailure(func(te *receiver.TransportError) {
		c.log.Error().Err(te).Uint16("universe", te.Universe).Msg("giving up on universe; lights stay dark")
	})
	c.started = true
	c.log.Info().Int("effects", len(c.effects)).Msg("setup complete")
	return nil
}

// Loop polls the receiver once and feeds each update to the effects on that
// universe. It returns the updates for observers.
func (c *Component) Loop(now time.Time) []receiver.Update {
	if !c.started {
		return nil
	}
	ups := c.recv.Poll(now)
	for _, up := range ups {
		for _, e := range c.effects {
			if e.Config().Universe() != up.Universe {
				continue
			}
			if up.Terminated {
				e.Driver().Terminate()
			} else {
				e.Driver().MarkReceived(up.At)
			}
		}
	}
	return ups
}

// Close stops every effect and closes the receiver.
func (c *Component) Close() error {
	if c.started {
		for _, e := range c.effects {
			c.stop(e)
		}
		c.started = false
	}
	return c.recv.Close()
}

func (c *Component) start(e effect.Effect) error {
	cfg := e.Config()
	if _, err := c.recv.Subscribe(int(cfg.Universe()), cfg.TransportMode(), cfg.Port()); err != nil {
		return fmt.Errorf("effect %q: %w", e.Name(), err)
	}
	l := c.log.With().Str("effect", e.Name()).Uint16("universe", cfg.Universe()).Logger()
	e.Driver().Monitor().OnStateChange(func(_ uint16, _, st monitor.State) {
		switch st {
		case monitor.StateActive:
			l.Info().Msg("started receiving")
		case monitor.StateBlanked:
			l.Info().Msg("stopped receiving")
		}
	})
	e.Start(c.recv)
	return nil
}

func (c *Component) stop(e effect.Effect) {
	e.Stop()
	cfg := e.Config()
	if err := c.recv.Unsubscribe(cfg.Universe(), cfg.TransportMode()); err != nil {
		c.log.Debug().Err(err).Str("effect", e.Name()).Msg("unsubscribe")
	}
}
