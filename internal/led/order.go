package led

import (
	"fmt"
	"strings"
)

// Order is a wire color order such as GRB, stored as source indexes into an
// RGB triple.
type Order [3]uint8

var OrderRGB = Order{0, 1, 2}

// ParseOrder accepts any permutation of R, G and B. Empty means RGB.
func ParseOrder(s string) (Order, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return OrderRGB, nil
	}
	if len(s) != 3 {
		return Order{}, fmt.Errorf("color order %q: want a permutation of RGB", s)
	}
	var o Order
	var seen [3]bool
	for i := 0; i < 3; i++ {
		var idx uint8
		switch s[i] {
		case 'R':
			idx = 0
		case 'G':
			idx = 1
		case 'B':
			idx = 2
		default:
			return Order{}, fmt.Errorf("color order %q: bad channel %q", s, s[i])
		}
		if seen[idx] {
			return Order{}, fmt.Errorf("color order %q: repeated channel %q", s, s[i])
		}
		seen[idx] = true
		o[i] = idx
	}
	return o, nil
}

func (o Order) String() string {
	const names = "RGB"
	return string([]byte{names[o[0]], names[o[1]], names[o[2]]})
}

// Apply writes src (RGB triples) into dst in wire order. dst and src must not
// overlap.
func (o Order) Apply(dst, src []byte) {
	for i := 0; i+2 < len(src) && i+2 < len(dst); i += 3 {
		dst[i+0] = src[i+int(o[0])]
		dst[i+1] = src[i+int(o[1])]
		dst[i+2] = src[i+int(o[2])]
	}
}

type reordered struct {
	Driver
	ord Order
	buf []byte
}

func (r *reordered) Write(rgb []byte) error {
	if cap(r.buf) < len(rgb) {
		r.buf = make([]byte, len(rgb))
	}
	r.buf = r.buf[:len(rgb)]
	r.ord.Apply(r.buf, rgb)
	return r.Driver.Write(r.buf)
}
