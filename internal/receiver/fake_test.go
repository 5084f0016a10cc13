package receiver

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeConn replays queued datagrams and records group membership.
type fakeConn struct {
	queue   [][]byte
	groups  map[string]bool
	joinErr error
	closed  bool
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if c.closed {
		return 0, nil, net.ErrClosed
	}
	if len(c.queue) == 0 {
		return 0, nil, timeoutErr{}
	}
	d := c.queue[0]
	c.queue = c.queue[1:]
	return copy(b, d), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: sacn.DefaultPort}, nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) JoinGroup(g net.IP) error {
	if c.joinErr != nil {
		return c.joinErr
	}
	c.groups[g.String()] = true
	return nil
}

func (c *fakeConn) LeaveGroup(g net.IP) error {
	delete(c.groups, g.String())
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeTransport hands out one fakeConn per port and can fail Listen.
type fakeTransport struct {
	conns     map[int]*fakeConn
	listenErr error
	listens   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(map[int]*fakeConn)}
}

func (f *fakeTransport) Listen(port int) (Conn, error) {
	f.listens++
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	c := &fakeConn{groups: make(map[string]bool)}
	f.conns[port] = c
	return c, nil
}

func (f *fakeTransport) conn(port int) *fakeConn { return f.conns[port] }

var errNoNetwork = errors.New("network is unreachable")

var (
	cidA = uuid.MustParse("0b1f3a54-8c1d-4a2e-9b0c-7f4e6d5c3b2a")
	cidB = uuid.MustParse("9e8d7c6b-5a49-4837-a625-1403f2e1d0c9")
)

type pkt struct {
	cid       uuid.UUID
	universe  uint16
	seq       uint8
	priority  uint8
	options   uint8
	startCode uint8
	data      []byte
}

func encode(t *testing.T, p pkt) []byte {
	t.Helper()
	if p.cid == uuid.Nil {
		p.cid = cidA
	}
	if p.priority == 0 {
		p.priority = sacn.DefaultPriority
	}
	b, err := (&sacn.Packet{
		CID:        p.cid,
		SourceName: "test console",
		Priority:   p.priority,
		Sequence:   p.seq,
		Options:    p.options,
		Universe:   p.universe,
		StartCode:  p.startCode,
		Data:       p.data,
	}).MarshalBinary()
	require.NoError(t, err)
	return b
}
