package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// DefaultSPIHz drives WS2812 class strips.
const DefaultSPIHz = 2500 * int64(physic.KiloHertz)

var hostInit sync.Once

// SPI drives an NRZ (WS2812) strip over a SPI port.
type SPI struct {
	mu     sync.Mutex
	port   spi.PortCloser
	dev    *nrzled.Dev
	pixels int
}

// NewSPI opens the named SPI port (empty for the first) after initialising
// the host drivers.
func NewSPI(name string, pixels int, hz int64) (*SPI, error) {
	var herr error
	hostInit.Do(func() { _, herr = host.Init() })
	if herr != nil {
		return nil, fmt.Errorf("periph host init: %w", herr)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", name, err)
	}
	s, err := NewSPIPort(p, pixels, hz)
	if err != nil {
		p.Close()
		return nil, err
	}
	s.port = p
	return s, nil
}

// NewSPIPort wraps an already open port. The caller keeps ownership of p.
func NewSPIPort(p spi.Port, pixels int, hz int64) (*SPI, error) {
	if pixels <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", pixels)
	}
	if hz <= 0 {
		hz = DefaultSPIHz
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: pixels,
		Channels:  3,
		Freq:      physic.Frequency(hz),
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &SPI{dev: d, pixels: pixels}, nil
}

func (s *SPI) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("SPI closed")
	}
	if len(rgb) != s.pixels*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.pixels)
	}
	if _, err := s.dev.Write(rgb); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

// Close turns the strip off and releases the port.
func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	s.dev = nil
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
