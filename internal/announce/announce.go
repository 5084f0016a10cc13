// Package announce advertises the receiver over mDNS so consoles and
// dashboards can find it.
package announce

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

const (
	ServiceType = "_sacn._udp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Info is what gets published.
type Info struct {
	Name      string
	Port      int
	Universes []uint16
	// HTTP is the status server address, empty if disabled.
	HTTP string
	TTL  time.Duration
}

// TXT encodes info as TXT strings. Universes are sorted and de-duplicated.
func TXT(info Info) []string {
	us := append([]uint16(nil), info.Universes...)
	sort.Slice(us, func(i, j int) bool { return us[i] < us[j] })
	parts := make([]string, 0, len(us))
	for i, u := range us {
		if i > 0 && us[i-1] == u {
			continue
		}
		parts = append(parts, strconv.Itoa(int(u)))
	}
	txt := []string{"txtvers=1", "universes=" + strings.Join(parts, ",")}
	if info.HTTP != "" {
		txt = append(txt, "http="+info.HTTP)
	}
	return txt
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// Advertiser keeps at most one registration alive.
type Advertiser struct {
	iface string

	mu       sync.Mutex
	shutdown func()
	register registerFunc
}

// New advertises on the named interface, or all interfaces when empty.
func New(iface string) *Advertiser {
	return &Advertiser{iface: iface, register: zeroconf.Register}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.iface == "" {
		return nil
	}
	i, err := net.InterfaceByName(a.iface)
	if err != nil {
		log.Warn().Err(err).Str("iface", a.iface).Msg("announce on all interfaces")
		return nil
	}
	return []net.Interface{*i}
}

// Advertise replaces any previous registration.
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop()

	name := sacn.TruncateName(info.Name, MaxInstanceNameLen)
	var opts []zeroconf.ServerOption
	if info.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(info.TTL.Seconds())))
	}
	server, err := a.register(name, ServiceType, Domain, info.Port, TXT(info), a.interfaces(), opts...)
	if err != nil {
		return fmt.Errorf("register %s: %w", ServiceType, err)
	}
	if server != nil {
		a.shutdown = server.Shutdown
	} else {
		a.shutdown = func() {}
	}
	log.Info().Str("name", name).Int("port", info.Port).Strs("txt", TXT(info)).Msg("announced")
	return nil
}

// Stop withdraws the registration. Safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop()
}

func (a *Advertiser) stop() {
	if a.shutdown != nil {
		a.shutdown()
		a.shutdown = nil
	}
}
