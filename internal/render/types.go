package render

import (
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/receiver"
)

// Color is a linear 0..1 RGB value used between effect output and the
// driver.
type Color struct{ R, G, B float32 }

// Uniforms are the frame-wide knobs read by post stages.
type Uniforms struct {
	GlobalBrightness float64
	Params           map[string]float64
}

// Looper is the per-frame input step; component.Component satisfies it.
type Looper interface {
	Loop(now time.Time) []receiver.Update
}

// LightFrame is what one light showed in a frame, in logical pixel order.
type LightFrame struct {
	Name     string `json:"name"`
	Effect   string `json:"effect"`
	Universe uint16 `json:"universe"`
	On       bool   `json:"on"`
	RGB      []byte `json:"rgb"`
}

// FrameInfo is passed to frame observers after every frame.
type FrameInfo struct {
	Seq     uint64       `json:"seq"`
	At      time.Time    `json:"at"`
	Updates int          `json:"updates"`
	Lights  []LightFrame `json:"lights"`
}
