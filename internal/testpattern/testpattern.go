// Package testpattern generates commissioning patterns as DMX slot data.
package testpattern

import (
	"fmt"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

type Kind string

const (
	Solid      Kind = "solid"
	IndexSweep Kind = "index_sweep"
	RGBTest    Kind = "rgb_channels"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Solid, IndexSweep, RGBTest:
		return k, nil
	case "":
		return Solid, nil
	}
	return "", sacn.Configf("pattern", s, "unknown pattern")
}

// Plan places Pixels pixels of type Type from 1-based slot Start. Color is
// the per-pixel slot values used by Solid.
type Plan struct {
	Kind   Kind
	Start  int
	Type   channel.Type
	Pixels int
	Color  []byte
}

type Runner struct {
	plan Plan
	step int
}

// NewRunner validates that the plan fits in one universe.
func NewRunner(plan Plan) (*Runner, error) {
	if plan.Pixels < 1 {
		return nil, sacn.Configf("pixels", plan.Pixels, "must be at least 1")
	}
	if err := channel.ValidateSlice(plan.Start, plan.Type, plan.Pixels); err != nil {
		return nil, err
	}
	if plan.Kind == Solid && len(plan.Color) != plan.Type.Width() {
		return nil, sacn.Configf("color", fmt.Sprintf("%x", plan.Color), "needs %d slot values for %s", plan.Type.Width(), plan.Type)
	}
	return &Runner{plan: plan}, nil
}

func (r *Runner) Kind() Kind { return r.plan.Kind }

// Len is the slot count Step writes.
func (r *Runner) Len() int { return r.plan.Start - 1 + r.plan.Pixels*r.plan.Type.Width() }

// Step fills data with the next frame; returns false once a finite pattern
// is complete. data must be at least Len long.
func (r *Runner) Step(data []byte) bool {
	clear(data)
	w := r.plan.Type.Width()
	px := func(i int) []byte {
		o := r.plan.Start - 1 + i*w
		return data[o : o+w]
	}

	switch r.plan.Kind {
	case Solid:
		for i := 0; i < r.plan.Pixels; i++ {
			copy(px(i), r.plan.Color)
		}
	case IndexSweep:
		if r.step >= r.plan.Pixels {
			return false
		}
		p := px(r.step)
		for j := range p {
			p[j] = 255
		}
	case RGBTest:
		// Cycles each slot of the pixel in turn: R, G, B, then W on RGBW.
		phase := r.step % w
		for i := 0; i < r.plan.Pixels; i++ {
			px(i)[phase] = 255
		}
	default:
		return false
	}
	r.step++
	return true
}
