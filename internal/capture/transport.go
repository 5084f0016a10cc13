package capture

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/receiver"
)

// Tap wraps t so every datagram read is also written to w.
func Tap(t receiver.Transport, w *Writer, now func() time.Time) receiver.Transport {
	if now == nil {
		now = time.Now
	}
	return receiver.TransportFunc(func(port int) (receiver.Conn, error) {
		c, err := t.Listen(port)
		if err != nil {
			return nil, err
		}
		return &tapConn{Conn: c, w: w, port: port, now: now}, nil
	})
}

type tapConn struct {
	receiver.Conn
	w    *Writer
	port int
	now  func() time.Time
}

func (c *tapConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, src, err := c.Conn.ReadFrom(b)
	if err != nil {
		return n, src, err
	}
	rec := Record{Timestamp: c.now(), Port: c.port, Data: append([]byte(nil), b[:n]...)}
	if src != nil {
		rec.Source = src.String()
	}
	if werr := c.w.Write(rec); werr != nil {
		log.Warn().Err(werr).Msg("capture write")
	}
	return n, src, nil
}

// Replay is a Transport that feeds recorded datagrams back to a receiver.
// Each Listen gets the records captured on the same port, in order. An
// exhausted socket reports read timeouts.
type Replay struct {
	mu      sync.Mutex
	records []Record
	conns   []*replayConn
}

func NewReplay(records []Record) *Replay { return &Replay{records: records} }

func (r *Replay) Listen(port int) (receiver.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &replayConn{groups: map[string]bool{}}
	for _, rec := range r.records {
		if rec.Port == port {
			c.queue = append(c.queue, rec)
		}
	}
	r.conns = append(r.conns, c)
	return c, nil
}

// Pending is the number of records not yet read on any open socket.
func (r *Replay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.conns {
		c.mu.Lock()
		if !c.closed {
			n += len(c.queue)
		}
		c.mu.Unlock()
	}
	return n
}

type replayConn struct {
	mu     sync.Mutex
	queue  []Record
	groups map[string]bool
	closed bool
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "replay: no more records" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (c *replayConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, net.ErrClosed
	}
	if len(c.queue) == 0 {
		return 0, nil, timeoutError{}
	}
	rec := c.queue[0]
	c.queue = c.queue[1:]
	var src net.Addr
	if a, err := net.ResolveUDPAddr("udp4", rec.Source); err == nil {
		src = a
	}
	return copy(b, rec.Data), src, nil
}

func (c *replayConn) SetReadDeadline(time.Time) error { return nil }

func (c *replayConn) JoinGroup(g net.IP) error {
	if !g.IsMulticast() {
		return receiver.ErrNotMulticast
	}
	c.mu.Lock()
	c.groups[g.String()] = true
	c.mu.Unlock()
	return nil
}

func (c *replayConn) LeaveGroup(g net.IP) error {
	c.mu.Lock()
	delete(c.groups, g.String())
	c.mu.Unlock()
	return nil
}

func (c *replayConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
