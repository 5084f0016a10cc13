package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/effect"
	"github.com/coreman2200/funtimes-sacn/internal/layout"
	"github.com/coreman2200/funtimes-sacn/internal/led"
)

// DefaultFPS is the frame rate used when none is configured.
const DefaultFPS = 60

// Output binds an effect to the LEDs it drives.
type Output struct {
	Effect effect.Effect
	Driver led.Driver
	Layout layout.Layout
	// Pixels is the physical LED count. A single-color effect fills all of
	// them.
	Pixels int
}

type light struct {
	Output
	buf     []Color
	logical []byte
	phys    []byte
}

// Engine runs one frame at a time: poll input, tick every light,
// post-process, then write to the drivers.
type Engine struct {
	in     Looper
	lights []*light
	U      *Uniforms

	post PostPipeline
	seq  uint64

	observers []func(FrameInfo)

	// metrics (last durations in ms)
	Last struct {
		PollMS   float64
		RenderMS float64
		PostMS   float64
		TotalMS  float64
	}
}

// PostPipeline groups post stages; all are optional.
type PostPipeline struct {
	Brightness func([]Color, *Uniforms)
	Limiter    func([]Color, *Uniforms)
}

// NewEngine returns an Engine with the default post stages.
func NewEngine(in Looper, u *Uniforms) *Engine {
	if u == nil {
		u = &Uniforms{GlobalBrightness: 1}
	}
	return &Engine{
		in: in,
		U:  u,
		post: PostPipeline{
			Brightness: ApplyBrightness,
			Limiter:    DefaultLimiter,
		},
	}
}

// AddLight attaches an output.
func (e *Engine) AddLight(o Output) error {
	if o.Effect == nil {
		return errors.New("output has no effect")
	}
	if o.Driver == nil {
		return fmt.Errorf("light %q: no driver", o.Effect.Name())
	}
	if o.Pixels <= 0 {
		o.Pixels = max(1, o.Effect.Config().FitPixels())
	}
	e.lights = append(e.lights, &light{
		Output:  o,
		buf:     make([]Color, o.Pixels),
		logical: make([]byte, o.Pixels*3),
		phys:    make([]byte, o.Pixels*3),
	})
	return nil
}

// OnFrame registers an observer called after every frame on the engine's
// goroutine. Observers must copy what they keep.
func (e *Engine) OnFrame(fn func(FrameInfo)) { e.observers = append(e.observers, fn) }

func (e *Engine) SetPost(p PostPipeline) { e.post = p }

// SetParam updates uniforms.
func (e *Engine) SetParam(name string, v float64) {
	if e.U.Params == nil {
		e.U.Params = map[string]float64{}
	}
	e.U.Params[name] = v
}

// Frame renders a single frame at now. A failing driver does not stop the
// other lights; the errors are joined.
func (e *Engine) Frame(now time.Time) error {
	start := time.Now()
	var updates int
	if e.in != nil {
		updates = len(e.in.Loop(now))
	}
	e.Last.PollMS = msSince(start)

	renderStart := time.Now()
	info := FrameInfo{Seq: e.seq, At: now, Updates: updates, Lights: make([]LightFrame, 0, len(e.lights))}
	var errs []error
	var postMS float64
	for _, l := range e.lights {
		f := l.Effect.Frame(now)
		fill(l.buf, f)

		ps := time.Now()
		if e.post.Brightness != nil {
			e.post.Brightness(l.buf, e.U)
		}
		if e.post.Limiter != nil {
			e.post.Limiter(l.buf, e.U)
		}
		postMS += msSince(ps)

		quantize(l.logical, l.buf)
		l.Layout.Apply(l.phys, l.logical)
		if err := l.Driver.Write(l.phys); err != nil {
			errs = append(errs, fmt.Errorf("light %q: %w", l.Effect.Name(), err))
		}
		cfg := l.Effect.Config()
		info.Lights = append(info.Lights, LightFrame{
			Name:     l.Effect.Name(),
			Effect:   l.Effect.Type(),
			Universe: cfg.Universe(),
			On:       f.On,
			RGB:      l.logical,
		})
	}
	e.Last.PostMS = postMS
	e.Last.RenderMS = msSince(renderStart)
	e.Last.TotalMS = msSince(start)

	for _, fn := range e.observers {
		fn(info)
	}
	e.seq++
	return errors.Join(errs...)
}

// Run drives Frame from a ticker until ctx is done. now supplies the frame
// time; nil means time.Now.
func (e *Engine) Run(ctx context.Context, fps int, now func() time.Time) error {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if now == nil {
		now = time.Now
	}
	tick := time.NewTicker(time.Second / time.Duration(fps))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := e.Frame(now()); err != nil {
				log.Warn().Err(err).Uint64("frame", e.seq).Msg("frame")
			}
		}
	}
}

// Blackout writes an all-off frame to every light, bypassing effects.
func (e *Engine) Blackout() error {
	var errs []error
	for _, l := range e.lights {
		clear(l.phys)
		if err := l.Driver.Write(l.phys); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every driver.
func (e *Engine) Close() error {
	var errs []error
	for _, l := range e.lights {
		if err := l.Driver.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fill expands an effect frame into the light's pixels. Off frames are black;
// a single color is repeated across the light.
func fill(dst []Color, f effect.Frame) {
	if !f.On || len(f.Colors) == 0 {
		clear(dst)
		return
	}
	for i := range dst {
		switch {
		case len(f.Colors) == 1:
			dst[i] = toColor(f.Colors[0])
		case i < len(f.Colors):
			dst[i] = toColor(f.Colors[i])
		default:
			dst[i] = Color{}
		}
	}
}

func toColor(c channel.Color) Color {
	r, g, b := c.RGBOut()
	return Color{float32(r) / 255, float32(g) / 255, float32(b) / 255}
}

func quantize(dst []byte, src []Color) {
	for i, c := range src {
		dst[i*3+0] = to8(c.R)
		dst[i*3+1] = to8(c.G)
		dst[i*3+2] = to8(c.B)
	}
}

func to8(x float32) byte {
	return byte(clamp01(x)*255 + 0.5)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
