package led

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sim keeps the last frame in memory and logs a compact summary at debug
// level. Useful headless and in tests.
type Sim struct {
	mu     sync.Mutex
	pixels int
	count  int
	last   []byte
	closed bool
}

func NewSim(pixels int) *Sim { return &Sim{pixels: pixels} }

func (s *Sim) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sim driver closed")
	}
	if s.pixels <= 0 || len(rgb) != s.pixels*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.pixels)
	}
	s.count++
	s.last = append(s.last[:0], rgb...)

	var r, g, b int
	for i := 0; i+2 < len(rgb); i += 3 {
		r += int(rgb[i])
		g += int(rgb[i+1])
		b += int(rgb[i+2])
	}
	n := s.pixels
	log.Trace().Int("frame", s.count).
		Ints("avg", []int{r / n, g / n, b / n}).
		Ints("first", []int{int(rgb[0]), int(rgb[1]), int(rgb[2])}).
		Msg("sim frame")
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Frames returns how many frames were written.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Last returns a copy of the last frame.
func (s *Sim) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}
