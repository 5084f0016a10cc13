package receiver

import (
	"net"
	"time"
)

// Conn is one listening socket. Unicast datagrams to the port are always
// delivered; multicast datagrams only for the groups joined on it.
type Conn interface {
	ReadFrom(b []byte) (n int, src net.Addr, err error)
	SetReadDeadline(t time.Time) error
	JoinGroup(group net.IP) error
	LeaveGroup(group net.IP) error
	Close() error
}

// Transport opens sockets. The receiver keeps at most one Conn per port and
// uses it for unicast and multicast bindings alike.
type Transport interface {
	Listen(port int) (Conn, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(port int) (Conn, error)

func (f TransportFunc) Listen(port int) (Conn, error) { return f(port) }
