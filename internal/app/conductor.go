package app

import (
	"context"
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/render"
	"github.com/coreman2200/funtimes-sacn/internal/ws"
)

// Run drives frames at cfg.FPS until ctx is done.
func (c *Core) Run(ctx context.Context, now func() time.Time) error {
	return c.Eng.Run(ctx, c.Cfg.FPS, now)
}

// brightness is the engine's brightness stage. It follows the live controls
// from the status server.
func (c *Core) brightness(buf []render.Color, u *render.Uniforms) {
	if c.State.Blackout() {
		clear(buf)
		return
	}
	u.GlobalBrightness = c.State.Brightness()
	render.ApplyBrightness(buf, u)
}

// publish runs on the engine goroutine after every frame, so it may read the
// receiver directly.
func (c *Core) publish(fi render.FrameInfo) {
	c.State.Publish(fi, ws.Status{
		Bindings:  c.Recv.Bindings(),
		Stats:     c.Recv.Stats(),
		Universes: c.Recv.Universes(),
	})
}
