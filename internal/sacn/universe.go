package sacn

import (
	"net"
	"strings"
)

const (
	DefaultPort = 5568

	MinUniverse = 1
	MaxUniverse = 63999

	// Slots is the number of DMX channels in one universe.
	Slots = 512
)

// TransportMode selects how a universe is received.
type TransportMode uint8

const (
	Unicast TransportMode = iota
	Multicast
)

func (m TransportMode) String() string {
	switch m {
	case Unicast:
		return "UNICAST"
	case Multicast:
		return "MULTICAST"
	default:
		return "UNKNOWN"
	}
}

// ParseTransportMode accepts UNICAST or MULTICAST in any case.
func ParseTransportMode(s string) (TransportMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNICAST", "":
		return Unicast, nil
	case "MULTICAST":
		return Multicast, nil
	}
	return 0, Configf("transport_mode", s, "must be UNICAST or MULTICAST")
}

func (m TransportMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *TransportMode) UnmarshalText(b []byte) error {
	v, err := ParseTransportMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ValidateUniverse rejects ids outside [1,63999].
func ValidateUniverse(u int) error {
	if u < MinUniverse || u > MaxUniverse {
		return Configf("universe", u, "must be in [%d,%d]", MinUniverse, MaxUniverse)
	}
	return nil
}

// ValidatePort rejects ports outside [1,65535].
func ValidatePort(p int) error {
	if p < 1 || p > 65535 {
		return Configf("port", p, "must be in [1,65535]")
	}
	return nil
}

// MulticastGroup returns the IANA group for a universe: 239.255.{hi}.{lo}.
func MulticastGroup(universe uint16) net.IP {
	return net.IPv4(239, 255, byte(universe>>8), byte(universe))
}

// SequenceNewer reports whether next should be accepted after last. Packets
// within 19 steps behind last are stale or duplicates; anything further back is
// taken as a restarted source.
func SequenceNewer(last, next uint8) bool {
	d := int8(next - last)
	return d > 0 || d <= -20
}
