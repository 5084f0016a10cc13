package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
)

// ErrNotMulticast is returned by JoinGroup and LeaveGroup for an address
// outside 224.0.0.0/4.
var ErrNotMulticast = errors.New("not a multicast group")

// UDP is the network Transport. Each port gets a single IPv4 socket that
// carries unicast traffic and the joined multicast groups.
type UDP struct {
	// Interface names the NIC used for group membership. Empty lets the
	// kernel choose.
	Interface string
}

func (u UDP) Listen(port int) (Conn, error) {
	var ifi *net.Interface
	if u.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(u.Interface); err != nil {
			return nil, fmt.Errorf("interface %q: %w", u.Interface, err)
		}
	}
	lc := net.ListenConfig{Control: listenControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", port, err)
	}
	return &udpConn{PacketConn: pc, p: ipv4.NewPacketConn(pc), ifi: ifi}, nil
}

type udpConn struct {
	net.PacketConn
	p   *ipv4.PacketConn
	ifi *net.Interface
}

func (c *udpConn) JoinGroup(group net.IP) error {
	if !group.IsMulticast() {
		return ErrNotMulticast
	}
	return c.p.JoinGroup(c.ifi, &net.UDPAddr{IP: group})
}

func (c *udpConn) LeaveGroup(group net.IP) error {
	if !group.IsMulticast() {
		return ErrNotMulticast
	}
	return c.p.LeaveGroup(c.ifi, &net.UDPAddr{IP: group})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
