package led

import (
	"fmt"
	"strings"
)

// Driver abstracts an LED output sink.
type Driver interface {
	// Write pushes an RGB frame to hardware. len(rgb) must be 3*N.
	Write(rgb []byte) error
	// Close releases resources.
	Close() error
}

// Driver names accepted by Open.
const (
	KindSim     = "sim"
	KindConsole = "console"
	KindSPI     = "spi"
)

// Spec selects and sizes an output.
type Spec struct {
	Kind       string
	Dev        string // SPI port name, empty for the first one
	Pixels     int
	ColorOrder string
	SpeedHz    int64
}

// Open builds the driver named by spec.Kind. Frames written to it are in RGB
// order; the driver reorders to ColorOrder.
func Open(spec Spec) (Driver, error) {
	if spec.Pixels <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", spec.Pixels)
	}
	ord, err := ParseOrder(spec.ColorOrder)
	if err != nil {
		return nil, err
	}
	var d Driver
	switch strings.ToLower(spec.Kind) {
	case KindSim, "":
		d = NewSim(spec.Pixels)
	case KindConsole:
		d = NewConsole(spec.Pixels)
	case KindSPI:
		d, err = NewSPI(spec.Dev, spec.Pixels, spec.SpeedHz)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown LED driver %q", spec.Kind)
	}
	if ord == OrderRGB {
		return d, nil
	}
	return &reordered{Driver: d, ord: ord}, nil
}
