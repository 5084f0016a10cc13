// Package receiver owns the sACN sockets and the per-universe channel state.
//
// A Receiver is driven from a single control loop: Subscribe and Unsubscribe
// at setup or reconfiguration, then Poll once per frame. Poll never blocks
// longer than the read deadline per socket and handles at most PollBudget
// datagrams. Only Stats may be called from other goroutines.
package receiver

import (
	"errors"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Poll defaults.
const (
	DefaultPollBudget    = 64
	DefaultReadDeadline  = time.Millisecond
	DefaultSourceTimeout = 2500 * time.Millisecond
)

// BindState is the lifecycle of a socket/group subscription.
type BindState uint8

const (
	BindPending BindState = iota
	BindBound
	BindFailed
)

func (s BindState) String() string {
	switch s {
	case BindPending:
		return "PENDING"
	case BindBound:
		return "BOUND"
	case BindFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// UniverseState is the latest accepted data for one subscribed universe.
type UniverseState struct {
	Universe   uint16
	LastPacket time.Time
	Channels   [sacn.Slots]byte
	// Length is the slot count of the last accepted packet.
	Length     int
	Blanked    bool
	Sequence   uint8
	Source     uuid.UUID
	SourceName string
	Priority   uint8
}

// Update reports that a universe changed during Poll.
type Update struct {
	Universe   uint16
	Source     uuid.UUID
	Priority   uint8
	Terminated bool
	At         time.Time
}

// Stats counts datagrams by outcome. Every datagram read lands in Received
// and in exactly one other counter.
type Stats struct {
	Received         uint64
	Accepted         uint64
	Malformed        uint64
	Unsubscribed     uint64
	NonZeroStartCode uint64
	Ignored          uint64
	OutOfSequence    uint64
	LowPriority      uint64
	Terminated       uint64
	ReadErrors       uint64
}

// Binding is the live subscription of one (universe, mode) pair. It is
// reference counted across effects.
type Binding struct {
	Universe uint16
	Mode     sacn.TransportMode
	Port     int

	state    BindState
	attempts int
	err      error
	refs     int
	retryAt  time.Time
	backoff  *backoff
}

func (b *Binding) State() BindState { return b.state }
func (b *Binding) Attempts() int    { return b.attempts }
func (b *Binding) Refs() int        { return b.refs }

// Err returns the last *TransportError, nil once bound.
func (b *Binding) Err() error { return b.err }

// BindingInfo is a snapshot of a Binding.
type BindingInfo struct {
	Universe uint16             `json:"universe"`
	Mode     sacn.TransportMode `json:"mode"`
	Port     int                `json:"port"`
	State    string             `json:"state"`
	Attempts int                `json:"attempts"`
	Refs     int                `json:"refs"`
	Error    string             `json:"error,omitempty"`
}

// Options configures a Receiver. Zero values take the defaults.
type Options struct {
	Transport     Transport
	PollBudget    int
	ReadDeadline  time.Duration
	MaxAttempts   int
	IgnorePreview bool
	SourceTimeout time.Duration
	Backoff       BackoffConfig
	Logger        *zerolog.Logger
	Now           func() time.Time
	Rand          *rand.Rand
}

type bindKey struct {
	universe uint16
	mode     sacn.TransportMode
}

type socket struct {
	port int
	conn Conn
	refs int
}

type source struct {
	seq      uint8
	priority uint8
	last     time.Time
}

type universe struct {
	state   UniverseState
	sources map[uuid.UUID]*source
	refs    int
}

// Receiver subscribes universes and decodes their data.
type Receiver struct {
	opts Options
	log  zerolog.Logger

	bindings  map[bindKey]*Binding
	universes map[uint16]*universe
	sockets   map[int]*socket
	next      int
	buf       []byte
	closed    bool

	onFailure func(*TransportError)

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Receiver. Without a Transport it listens on UDP.
func New(opts Options) *Receiver {
	if opts.Transport == nil {
		opts.Transport = UDP{}
	}
	if opts.PollBudget <= 0 {
		opts.PollBudget = DefaultPollBudget
	}
	if opts.ReadDeadline <= 0 {
		opts.ReadDeadline = DefaultReadDeadline
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultAttempts
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.Backoff.Jitter == 0 {
		opts.Backoff.Jitter = JitterFactor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	l := log.With().Str("component", "receiver").Logger()
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Receiver{
		opts:      opts,
		log:       l,
		bindings:  make(map[bindKey]*Binding),
		universes: make(map[uint16]*universe),
		sockets:   make(map[int]*socket),
		buf:       make([]byte, sacn.MaxPacketLen+64),
	}
}

// OnFailure sets a callback for bindings that exhaust their retries.
func (r *Receiver) OnFailure(fn func(*TransportError)) { r.onFailure = fn }

// Subscribe adds a reference to the (universe, mode) binding, creating it and
// the universe state on first use. Open and join failures do not fail the
// call; the binding stays Pending and is retried from Poll.
func (r *Receiver) Subscribe(universeID int, mode sacn.TransportMode, port int) (*Binding, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if err := sacn.ValidateUniverse(universeID); err != nil {
		return nil, err
	}
	if err := sacn.ValidatePort(port); err != nil {
		return nil, err
	}
	if mode != sacn.Unicast && mode != sacn.Multicast {
		return nil, sacn.Configf("transport_mode", mode, "unknown transport mode")
	}
	u16 := uint16(universeID)
	key := bindKey{u16, mode}
	if b, ok := r.bindings[key]; ok {
		if b.Port != port {
			return nil, sacn.Configf("port", port, "universe %d %s already bound on port %d", u16, mode, b.Port)
		}
		b.refs++
		return b, nil
	}

	b := &Binding{
		Universe: u16,
		Mode:     mode,
		Port:     port,
		refs:     1,
		backoff:  newBackoff(r.opts.Backoff, r.opts.Rand),
	}
	r.bindings[key] = b
	u, ok := r.universes[u16]
	if !ok {
		u = &universe{
			state:   UniverseState{Universe: u16, Blanked: true},
			sources: make(map[uuid.UUID]*source),
		}
		r.universes[u16] = u
	}
	u.refs++
	r.attempt(b, r.opts.Now())
	return b, nil
}

// Unsubscribe drops one reference. The last reference tears down the binding;
// when no binding remains for the universe its state is removed immediately.
func (r *Receiver) Unsubscribe(universeID uint16, mode sacn.TransportMode) error {
	key := bindKey{universeID, mode}
	b, ok := r.bindings[key]
	if !ok {
		return ErrNotSubscribed
	}
	b.refs--
	if b.refs > 0 {
		return nil
	}
	if b.state == BindBound {
		r.unbind(b)
	}
	delete(r.bindings, key)
	if u, ok := r.universes[universeID]; ok {
		u.refs--
		if u.refs <= 0 {
			delete(r.universes, universeID)
		}
	}
	r.log.Info().Uint16("universe", universeID).Str("mode", mode.String()).Msg("unsubscribed")
	return nil
}

// State returns the universe state while at least one of its bindings is
// bound. Callers must not modify it.
func (r *Receiver) State(universeID uint16) (*UniverseState, bool) {
	u, ok := r.universes[universeID]
	if !ok || !r.live(universeID) {
		return nil, false
	}
	return &u.state, true
}

// Universes returns copies of every subscribed universe state, by id.
func (r *Receiver) Universes() []UniverseState {
	out := make([]UniverseState, 0, len(r.universes))
	for _, u := range r.universes {
		out = append(out, u.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Universe < out[j].Universe })
	return out
}

// Bindings returns a snapshot of all bindings ordered by universe and mode.
func (r *Receiver) Bindings() []BindingInfo {
	out := make([]BindingInfo, 0, len(r.bindings))
	for _, b := range r.bindings {
		bi := BindingInfo{
			Universe: b.Universe,
			Mode:     b.Mode,
			Port:     b.Port,
			State:    b.state.String(),
			Attempts: b.attempts,
			Refs:     b.refs,
		}
		if b.err != nil {
			bi.Error = b.err.Error()
		}
		out = append(out, bi)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Universe != out[j].Universe {
			return out[i].Universe < out[j].Universe
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

// Stats returns a snapshot of the counters. Safe from any goroutine.
func (r *Receiver) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Close releases every socket. Poll returns nothing afterwards.
func (r *Receiver) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for k, s := range r.sockets {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.sockets, k)
	}
	r.bindings = make(map[bindKey]*Binding)
	r.universes = make(map[uint16]*universe)
	return errors.Join(errs...)
}

// Poll retries due bindings, then drains the sockets and applies accepted
// data. It returns one Update per accepted or terminating packet.
func (r *Receiver) Poll(now time.Time) []Update {
	if r.closed {
		return nil
	}
	for _, b := range r.bindings {
		if b.state == BindPending && !now.Before(b.retryAt) {
			r.attempt(b, now)
		}
	}

	var updates []Update
	budget := r.opts.PollBudget
	socks := r.sortedSockets()
	if len(socks) > 0 {
		// Rotate the first socket so a busy port cannot starve the others.
		start := r.next % len(socks)
		socks = append(append([]*socket(nil), socks[start:]...), socks[:start]...)
		r.next++
	}
	for _, s := range socks {
		if budget == 0 {
			break
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(r.opts.ReadDeadline)); err != nil {
			r.log.Debug().Err(err).Msg("set read deadline")
		}
		for budget > 0 {
			n, _, err := s.conn.ReadFrom(r.buf)
			if err != nil {
				if !isTimeout(err) && !errors.Is(err, net.ErrClosed) {
					r.count(func(st *Stats) { st.ReadErrors++ })
					r.log.Warn().Err(err).Int("port", s.port).Msg("read")
				}
				break
			}
			budget--
			if up, ok := r.handle(r.buf[:n], now); ok {
				updates = append(updates, up)
			}
		}
	}
	return updates
}

func (r *Receiver) handle(b []byte, now time.Time) (Update, bool) {
	r.count(func(st *Stats) { st.Received++ })
	p, err := sacn.Parse(b)
	if err != nil {
		r.count(func(st *Stats) { st.Malformed++ })
		r.log.Trace().Err(err).Int("len", len(b)).Msg("malformed packet")
		return Update{}, false
	}
	if p.Kind != sacn.KindData {
		r.count(func(st *Stats) { st.Ignored++ })
		return Update{}, false
	}
	u, ok := r.universes[p.Universe]
	if !ok || !r.live(p.Universe) {
		r.count(func(st *Stats) { st.Unsubscribed++ })
		return Update{}, false
	}
	if p.StartCode != 0 {
		r.count(func(st *Stats) { st.NonZeroStartCode++ })
		return Update{}, false
	}
	if p.Preview() && r.opts.IgnorePreview {
		r.count(func(st *Stats) { st.Ignored++ })
		return Update{}, false
	}

	for id, s := range u.sources {
		if now.Sub(s.last) > r.opts.SourceTimeout {
			delete(u.sources, id)
			r.log.Debug().Uint16("universe", p.Universe).Str("cid", id.String()).Msg("source expired")
		}
	}

	src, known := u.sources[p.CID]
	if known && !sacn.SequenceNewer(src.seq, p.Sequence) {
		r.count(func(st *Stats) { st.OutOfSequence++ })
		return Update{}, false
	}

	if p.Terminated() {
		delete(u.sources, p.CID)
		r.count(func(st *Stats) { st.Terminated++ })
		r.log.Info().Uint16("universe", p.Universe).Str("source", p.SourceName).Msg("stream terminated")
		if len(u.sources) > 0 {
			return Update{}, false
		}
		u.state.Blanked = true
		return Update{Universe: p.Universe, Source: p.CID, Priority: p.Priority, Terminated: true, At: now}, true
	}

	if !known {
		src = &source{}
		u.sources[p.CID] = src
		r.log.Debug().Uint16("universe", p.Universe).Str("source", p.SourceName).
			Uint8("priority", p.Priority).Msg("new source")
	}
	src.seq = p.Sequence
	src.priority = p.Priority
	src.last = now

	for _, s := range u.sources {
		if s.priority > p.Priority {
			r.count(func(st *Stats) { st.LowPriority++ })
			return Update{}, false
		}
	}

	st := &u.state
	n := copy(st.Channels[:], p.Data)
	clear(st.Channels[n:])
	st.Length = n
	st.LastPacket = now
	st.Blanked = false
	st.Sequence = p.Sequence
	st.Source = p.CID
	st.SourceName = p.SourceName
	st.Priority = p.Priority
	r.count(func(st *Stats) { st.Accepted++ })
	r.log.Trace().Uint16("universe", p.Universe).Uint8("seq", p.Sequence).Int("slots", n).Msg("data")
	return Update{Universe: p.Universe, Source: p.CID, Priority: p.Priority, At: now}, true
}

func (r *Receiver) attempt(b *Binding, now time.Time) {
	b.attempts++
	err := r.bind(b)
	if err == nil {
		b.state = BindBound
		b.err = nil
		b.backoff.reset()
		r.log.Info().Uint16("universe", b.Universe).Str("mode", b.Mode.String()).
			Int("port", b.Port).Int("attempts", b.attempts).Msg("bound")
		return
	}

	te := &TransportError{Universe: b.Universe, Mode: b.Mode, Port: b.Port, Attempts: b.attempts, Err: err}
	b.err = te
	if b.attempts >= r.opts.MaxAttempts {
		b.state = BindFailed
		r.log.Error().Err(te).Uint16("universe", b.Universe).Msg("binding failed; universe stays blanked")
		if r.onFailure != nil {
			r.onFailure(te)
		}
		return
	}
	b.state = BindPending
	delay := b.backoff.next()
	b.retryAt = now.Add(delay)
	r.log.Warn().Err(err).Uint16("universe", b.Universe).Str("mode", b.Mode.String()).
		Dur("retry_in", delay).Msg("bind failed")
}

func (r *Receiver) bind(b *Binding) error {
	s, ok := r.sockets[b.Port]
	if !ok {
		conn, err := r.opts.Transport.Listen(b.Port)
		if err != nil {
			return err
		}
		s = &socket{port: b.Port, conn: conn}
		r.sockets[b.Port] = s
	}
	if b.Mode == sacn.Multicast {
		if err := s.conn.JoinGroup(sacn.MulticastGroup(b.Universe)); err != nil {
			if s.refs == 0 {
				s.conn.Close()
				delete(r.sockets, b.Port)
			}
			return err
		}
	}
	s.refs++
	return nil
}

func (r *Receiver) unbind(b *Binding) {
	s, ok := r.sockets[b.Port]
	if !ok {
		return
	}
	if b.Mode == sacn.Multicast {
		if err := s.conn.LeaveGroup(sacn.MulticastGroup(b.Universe)); err != nil {
			r.log.Warn().Err(err).Uint16("universe", b.Universe).Msg("leave group")
		}
	}
	s.refs--
	if s.refs <= 0 {
		if err := s.conn.Close(); err != nil {
			r.log.Warn().Err(err).Int("port", b.Port).Msg("close socket")
		}
		delete(r.sockets, b.Port)
	}
}

// live reports whether any binding of the universe is bound.
func (r *Receiver) live(universeID uint16) bool {
	for _, m := range []sacn.TransportMode{sacn.Unicast, sacn.Multicast} {
		if b, ok := r.bindings[bindKey{universeID, m}]; ok && b.state == BindBound {
			return true
		}
	}
	return false
}

func (r *Receiver) sortedSockets() []*socket {
	out := make([]*socket, 0, len(r.sockets))
	for _, s := range r.sockets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].port < out[j].port })
	return out
}

func (r *Receiver) count(f func(*Stats)) {
	r.statsMu.Lock()
	f(&r.stats)
	r.statsMu.Unlock()
}
