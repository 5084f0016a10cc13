// Package channel maps a slice of DMX slots onto light colors.
package channel

import (
	"strings"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Type is the channel layout of one light or pixel.
type Type uint8

const (
	Mono Type = iota + 1
	RGB
	RGBW
	RGBWW
)

// Width is the number of consecutive slots the type consumes.
func (t Type) Width() int {
	switch t {
	case Mono:
		return 1
	case RGB:
		return 3
	case RGBW:
		return 4
	case RGBWW:
		return 5
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case Mono:
		return "MONO"
	case RGB:
		return "RGB"
	case RGBW:
		return "RGBW"
	case RGBWW:
		return "RGBWW"
	}
	return "UNKNOWN"
}

// ParseType accepts MONO, RGB, RGBW or RGBWW in any case. Empty means RGB.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MONO":
		return Mono, nil
	case "RGB", "":
		return RGB, nil
	case "RGBW":
		return RGBW, nil
	case "RGBWW":
		return RGBWW, nil
	}
	return 0, sacn.Configf("channel_type", s, "must be one of MONO, RGB, RGBW, RGBWW")
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Color is one mapped light value. Components a type does not carry stay zero.
// For MONO, R, G and B all hold the intensity.
type Color struct {
	R, G, B   uint8
	W, WW     uint8
	Intensity uint8
}

// ValidateSlice checks that count consecutive fixtures of type t starting at
// 1-based slot start fit within the universe.
func ValidateSlice(start int, t Type, count int) error {
	if t.Width() == 0 {
		return sacn.Configf("channel_type", t, "unknown channel type")
	}
	if start < 1 || start > sacn.Slots {
		return sacn.Configf("start_channel", start, "must be in [1,%d]", sacn.Slots)
	}
	if count < 1 {
		return sacn.Configf("pixels", count, "must be at least 1")
	}
	if end := start - 1 + count*t.Width(); end > sacn.Slots {
		return sacn.Configf("start_channel", start, "%s x%d ends at slot %d, past %d", t, count, end, sacn.Slots)
	}
	return nil
}

// Map reads one fixture of type t at 1-based slot start. The slice must have
// been validated with ValidateSlice.
func Map(data *[sacn.Slots]byte, start int, t Type) Color {
	return mapAt(data[start-1:], t)
}

// MapPixels reads n consecutive fixtures starting at slot start. n is clamped
// to the number that fit.
func MapPixels(data *[sacn.Slots]byte, start int, t Type, n int) []Color {
	w := t.Width()
	if w == 0 || start < 1 || start > sacn.Slots {
		return nil
	}
	if fit := (sacn.Slots - (start - 1)) / w; n > fit {
		n = fit
	}
	out := make([]Color, n)
	for i := range out {
		out[i] = mapAt(data[start-1+i*w:], t)
	}
	return out
}

func mapAt(s []byte, t Type) Color {
	switch t {
	case Mono:
		return Color{R: s[0], G: s[0], B: s[0], Intensity: s[0]}
	case RGB:
		return Color{R: s[0], G: s[1], B: s[2]}
	case RGBW:
		return Color{R: s[0], G: s[1], B: s[2], W: s[3]}
	case RGBWW:
		return Color{R: s[0], G: s[1], B: s[2], W: s[3], WW: s[4]}
	}
	return Color{}
}

// RGBOut folds white channels into RGB for outputs that only have three
// emitters.
func (c Color) RGBOut() (r, g, b uint8) {
	w := int(c.W) + int(c.WW)
	return sat(int(c.R) + w), sat(int(c.G) + w), sat(int(c.B) + w)
}

func sat(v int) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}
