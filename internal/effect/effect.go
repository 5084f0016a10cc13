// Package effect holds the light effects driven by sACN data and the registry
// that builds them by name.
package effect

import (
	"sort"
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Built-in effect type names.
const (
	TypeLight       = "sacn"
	TypeAddressable = "addressable_sacn"
)

// Source gives effects read access to universe state.
type Source interface {
	State(universe uint16) (*receiver.UniverseState, bool)
}

// Frame is the output of one tick. On is false when the light should be
// forced off; Colors is then empty.
type Frame struct {
	On     bool
	Colors []channel.Color
}

// Effect is one configured light effect.
type Effect interface {
	Name() string
	Type() string
	Config() Config
	Driver() *Driver
	Start(src Source)
	Stop()
	Frame(now time.Time) Frame
}

// Factory builds an effect from a validated config.
type Factory func(cfg Config) (Effect, error)

// Registry maps effect type names to factories.
type Registry struct{ m map[string]Factory }

func NewRegistry() *Registry { return &Registry{m: map[string]Factory{}} }

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	if f == nil {
		return
	}
	r.m[name] = f
}

// New builds an effect of the named type. Unknown names are configuration
// errors.
func (r *Registry) New(name string, cfg Config) (Effect, error) {
	f, ok := r.m[name]
	if !ok {
		return nil, sacn.Configf("effect", name, "unknown effect type (have %v)", r.List())
	}
	return f(cfg)
}

func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builtin registers the sacn and addressable_sacn effects.
func Builtin(r *Registry) {
	r.Register(TypeLight, func(cfg Config) (Effect, error) { return NewLight(cfg), nil })
	r.Register(TypeAddressable, func(cfg Config) (Effect, error) { return NewAddressable(cfg), nil })
}

type base struct {
	typ string
	drv *Driver
	src Source
}

func (b *base) Name() string     { return b.drv.Config().Name() }
func (b *base) Type() string     { return b.typ }
func (b *base) Config() Config   { return b.drv.Config() }
func (b *base) Driver() *Driver  { return b.drv }
func (b *base) Start(src Source) { b.src = src }
func (b *base) Stop()            { b.src = nil }

func (b *base) state() *receiver.UniverseState {
	if b.src == nil {
		return nil
	}
	st, ok := b.src.State(b.drv.Config().Universe())
	if !ok {
		return nil
	}
	return st
}

// Light shows one fixture's color per frame.
type Light struct{ base }

func NewLight(cfg Config) *Light {
	return &Light{base{typ: TypeLight, drv: NewDriver(cfg)}}
}

func (l *Light) Frame(now time.Time) Frame {
	c, ok := l.drv.Tick(l.state(), now)
	if !ok {
		return Frame{}
	}
	return Frame{On: true, Colors: []channel.Color{c}}
}

// Addressable shows consecutive fixtures, one per pixel.
type Addressable struct{ base }

func NewAddressable(cfg Config) *Addressable {
	return &Addressable{base{typ: TypeAddressable, drv: NewDriver(cfg)}}
}

func (a *Addressable) Frame(now time.Time) Frame {
	px, ok := a.drv.TickPixels(a.state(), now)
	if !ok {
		return Frame{}
	}
	return Frame{On: true, Colors: px}
}
