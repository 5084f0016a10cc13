package receiver

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func newTestReceiver(ft *fakeTransport) *Receiver {
	return New(Options{
		Transport:     ft,
		IgnorePreview: true,
		Now:           func() time.Time { return t0 },
		Rand:          rand.New(rand.NewSource(1)),
	})
}

func TestMulticastUniverse5(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)

	b, err := r.Subscribe(5, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, BindBound, b.State())

	c := ft.conn(sacn.DefaultPort)
	require.NotNil(t, c)
	assert.True(t, c.groups["239.255.0.5"])

	c.queue = append(c.queue, encode(t, pkt{universe: 5, seq: 1, data: []byte{255, 0, 0}}))
	ups := r.Poll(t0)
	require.Len(t, ups, 1)
	assert.Equal(t, uint16(5), ups[0].Universe)
	assert.False(t, ups[0].Terminated)

	st, ok := r.State(5)
	require.True(t, ok)
	assert.Equal(t, [3]byte{255, 0, 0}, [3]byte(st.Channels[:3]))
	assert.Equal(t, 3, st.Length)
	assert.Equal(t, t0, st.LastPacket)
	assert.Equal(t, cidA, st.Source)
	assert.False(t, st.Blanked)
}

func TestMalformedThenValid(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)

	bad := encode(t, pkt{universe: 1, seq: 1, data: []byte{9}})
	bad[4] = 'Z'
	c := ft.conn(sacn.DefaultPort)
	c.queue = append(c.queue, bad, encode(t, pkt{universe: 1, seq: 2, data: []byte{1, 2, 3}}))

	ups := r.Poll(t0)
	require.Len(t, ups, 1)
	s := r.Stats()
	assert.Equal(t, uint64(2), s.Received)
	assert.Equal(t, uint64(1), s.Malformed)
	assert.Equal(t, uint64(1), s.Accepted)

	st, _ := r.State(1)
	assert.Equal(t, byte(2), st.Channels[1])
}

func TestFilterCounters(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)

	sync := encode(t, pkt{universe: 1})[:49]
	sync[21] = 0x08
	sync[16], sync[17] = 0x70, 49-16
	sync[43] = 0x01

	c := ft.conn(sacn.DefaultPort)
	c.queue = append(c.queue,
		encode(t, pkt{universe: 2, seq: 1, data: []byte{1}}),
		encode(t, pkt{universe: 1, seq: 2, startCode: 0xDD, data: []byte{1}}),
		encode(t, pkt{universe: 1, seq: 3, options: sacn.OptionPreview}),
		sync,
		encode(t, pkt{universe: 1, seq: 10, data: []byte{7}}),
		encode(t, pkt{universe: 1, seq: 10, data: []byte{8}}),
		encode(t, pkt{universe: 1, seq: 5, data: []byte{8}}),
	)
	ups := r.Poll(t0)
	require.Len(t, ups, 1)

	s := r.Stats()
	assert.Equal(t, Stats{
		Received:         7,
		Accepted:         1,
		Unsubscribed:     1,
		NonZeroStartCode: 1,
		Ignored:          2,
		OutOfSequence:    2,
	}, s)
	st, _ := r.State(1)
	assert.Equal(t, byte(7), st.Channels[0])
}

func TestSequenceRestartAccepted(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)

	c := ft.conn(sacn.DefaultPort)
	c.queue = append(c.queue,
		encode(t, pkt{universe: 1, seq: 100, data: []byte{1}}),
		encode(t, pkt{universe: 1, seq: 50, data: []byte{2}}),
	)
	assert.Len(t, r.Poll(t0), 2)
	st, _ := r.State(1)
	assert.Equal(t, byte(2), st.Channels[0])
}

func TestPriorityArbitration(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	c := ft.conn(sacn.DefaultPort)

	c.queue = append(c.queue,
		encode(t, pkt{cid: cidA, universe: 1, seq: 1, priority: 150, data: []byte{150}}),
		encode(t, pkt{cid: cidB, universe: 1, seq: 1, priority: 100, data: []byte{100}}),
	)
	r.Poll(t0)
	st, _ := r.State(1)
	assert.Equal(t, byte(150), st.Channels[0])
	assert.Equal(t, uint64(1), r.Stats().LowPriority)

	// The high priority source goes quiet; the low one takes over.
	later := t0.Add(DefaultSourceTimeout + time.Millisecond)
	c.queue = append(c.queue, encode(t, pkt{cid: cidB, universe: 1, seq: 2, priority: 100, data: []byte{101}}))
	r.Poll(later)
	st, _ = r.State(1)
	assert.Equal(t, byte(101), st.Channels[0])
	assert.Equal(t, cidB, st.Source)
}

func TestStreamTermination(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	c := ft.conn(sacn.DefaultPort)

	c.queue = append(c.queue,
		encode(t, pkt{universe: 1, seq: 1, data: []byte{9}}),
		encode(t, pkt{universe: 1, seq: 2, options: sacn.OptionTerminated, data: []byte{9}}),
	)
	ups := r.Poll(t0)
	require.Len(t, ups, 2)
	assert.True(t, ups[1].Terminated)
	st, _ := r.State(1)
	assert.True(t, st.Blanked)
	assert.Equal(t, uint64(1), r.Stats().Terminated)
}

func TestSharedBindingRefcount(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)

	b1, err := r.Subscribe(3, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	b2, err := r.Subscribe(3, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, 2, b1.Refs())
	_, err = r.Subscribe(4, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.listens)

	_, err = r.Subscribe(3, sacn.Multicast, 6000)
	assert.ErrorIs(t, err, sacn.ErrConfiguration)

	c := ft.conn(sacn.DefaultPort)
	require.NoError(t, r.Unsubscribe(3, sacn.Multicast))
	_, ok := r.State(3)
	assert.True(t, ok)
	assert.True(t, c.groups["239.255.0.3"])

	require.NoError(t, r.Unsubscribe(3, sacn.Multicast))
	_, ok = r.State(3)
	assert.False(t, ok)
	assert.False(t, c.groups["239.255.0.3"])
	assert.False(t, c.closed)

	require.NoError(t, r.Unsubscribe(4, sacn.Multicast))
	assert.True(t, c.closed)
	assert.ErrorIs(t, r.Unsubscribe(4, sacn.Multicast), ErrNotSubscribed)
}

func TestUnsubscribeDropsLaterData(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	_, err = r.Subscribe(2, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	require.NoError(t, r.Unsubscribe(1, sacn.Unicast))

	c := ft.conn(sacn.DefaultPort)
	c.queue = append(c.queue, encode(t, pkt{universe: 1, seq: 1, data: []byte{1}}))
	assert.Empty(t, r.Poll(t0))
	assert.Equal(t, uint64(1), r.Stats().Unsubscribed)
	_, ok := r.State(1)
	assert.False(t, ok)
}

func TestSubscribeValidation(t *testing.T) {
	r := newTestReceiver(newFakeTransport())
	for _, tt := range []struct {
		universe, port int
	}{
		{0, sacn.DefaultPort},
		{64000, sacn.DefaultPort},
		{1, 0},
		{1, 70000},
	} {
		_, err := r.Subscribe(tt.universe, sacn.Unicast, tt.port)
		assert.ErrorIs(t, err, sacn.ErrConfiguration, "universe=%d port=%d", tt.universe, tt.port)
	}
}

func TestBackoffExhaustion(t *testing.T) {
	ft := newFakeTransport()
	ft.listenErr = errNoNetwork
	r := newTestReceiver(ft)

	var failed *TransportError
	r.OnFailure(func(te *TransportError) { failed = te })

	b, err := r.Subscribe(9, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, BindPending, b.State())
	assert.Equal(t, 1, b.Attempts())

	// Retries are not due before the initial backoff.
	r.Poll(t0.Add(InitialBackoff / 2))
	assert.Equal(t, 1, b.Attempts())

	now := t0
	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		r.Poll(now)
	}
	assert.Equal(t, BindFailed, b.State())
	assert.Equal(t, DefaultAttempts, b.Attempts())
	assert.Equal(t, DefaultAttempts, ft.listens)

	require.NotNil(t, failed)
	assert.Equal(t, uint16(9), failed.Universe)
	assert.ErrorIs(t, failed, errNoNetwork)
	var te *TransportError
	require.ErrorAs(t, b.Err(), &te)

	_, ok := r.State(9)
	assert.False(t, ok)
	info := r.Bindings()
	require.Len(t, info, 1)
	assert.Equal(t, "FAILED", info[0].State)
}

func TestRetryRecovers(t *testing.T) {
	ft := newFakeTransport()
	ft.listenErr = errNoNetwork
	r := newTestReceiver(ft)

	b, err := r.Subscribe(9, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	ft.listenErr = nil
	r.Poll(t0.Add(time.Minute))
	assert.Equal(t, BindBound, b.State())
	assert.NoError(t, b.Err())
}

func TestJoinFailureClosesFreshSocket(t *testing.T) {
	r := New(Options{
		Transport: TransportFunc(func(port int) (Conn, error) {
			return &fakeConn{groups: map[string]bool{}, joinErr: errNoNetwork}, nil
		}),
		MaxAttempts: 1,
		Now:         func() time.Time { return t0 },
	})
	b, err := r.Subscribe(1, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, BindFailed, b.State())
	assert.Empty(t, r.sockets)
}

func TestPollBudget(t *testing.T) {
	ft := newFakeTransport()
	r := New(Options{Transport: ft, PollBudget: 2})
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	c := ft.conn(sacn.DefaultPort)
	for i := 1; i <= 3; i++ {
		c.queue = append(c.queue, encode(t, pkt{universe: 1, seq: uint8(i), data: []byte{byte(i)}}))
	}
	assert.Len(t, r.Poll(t0), 2)
	assert.Len(t, r.Poll(t0), 1)
}

func TestCloseStopsPolling(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, ft.conn(sacn.DefaultPort).closed)
	assert.Nil(t, r.Poll(t0))
	_, err = r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBackoffDelays(t *testing.T) {
	b := newBackoff(BackoffConfig{Initial: 500 * time.Millisecond, Max: 2 * time.Second}, nil)
	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.next())
	}
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 2 * time.Second}, got)
	b.reset()
	assert.Equal(t, 500*time.Millisecond, b.next())
}

func TestUnicastAndMulticastShareSocket(t *testing.T) {
	ft := newFakeTransport()
	r := newTestReceiver(ft)
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	_, err = r.Subscribe(2, sacn.Multicast, sacn.DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.listens)
	require.Len(t, r.sockets, 1)
	assert.Equal(t, 2, r.sockets[sacn.DefaultPort].refs)

	c := ft.conn(sacn.DefaultPort)
	assert.True(t, c.groups["239.255.0.2"])
	c.queue = append(c.queue,
		encode(t, pkt{universe: 1, seq: 1, data: []byte{1}}),
		encode(t, pkt{universe: 2, seq: 1, data: []byte{2}}))
	assert.Len(t, r.Poll(t0), 2)
	assert.Equal(t, Stats{Received: 2, Accepted: 2}, r.Stats())

	require.NoError(t, r.Unsubscribe(2, sacn.Multicast))
	assert.False(t, c.groups["239.255.0.2"])
	assert.False(t, c.closed)
	require.NoError(t, r.Unsubscribe(1, sacn.Unicast))
	assert.True(t, c.closed)
}

func TestPollRotatesSockets(t *testing.T) {
	ft := newFakeTransport()
	r := New(Options{Transport: ft, PollBudget: 4, Now: func() time.Time { return t0 }})
	_, err := r.Subscribe(1, sacn.Unicast, sacn.DefaultPort)
	require.NoError(t, err)
	_, err = r.Subscribe(2, sacn.Unicast, 6000)
	require.NoError(t, err)

	busy, quiet := ft.conn(sacn.DefaultPort), ft.conn(6000)
	for i := 1; i <= 20; i++ {
		busy.queue = append(busy.queue, encode(t, pkt{universe: 1, seq: uint8(i), data: []byte{1}}))
	}
	quiet.queue = append(quiet.queue, encode(t, pkt{universe: 2, seq: 1, data: []byte{9}}))

	got := map[uint16]int{}
	for i := 0; i < 2; i++ {
		for _, up := range r.Poll(t0) {
			got[up.Universe]++
		}
	}
	assert.Equal(t, 1, got[2], "saturated port must not starve the other")
	assert.Empty(t, quiet.queue)
	st, ok := r.State(2)
	require.True(t, ok)
	assert.Equal(t, byte(9), st.Channels[0])
}
