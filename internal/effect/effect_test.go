package effect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

var t0 = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

// fakeSource serves fixed universe states.
type fakeSource map[uint16]*receiver.UniverseState

func (f fakeSource) State(u uint16) (*receiver.UniverseState, bool) {
	st, ok := f[u]
	return st, ok
}

func params(mut func(*Params)) Params {
	p := DefaultParams()
	if mut != nil {
		mut(&p)
	}
	return p
}

func TestNewConfigGrid(t *testing.T) {
	types := []channel.Type{channel.Mono, channel.RGB, channel.RGBW, channel.RGBWW}
	for _, ct := range types {
		for start := -1; start <= 514; start++ {
			_, err := NewConfig(params(func(p *Params) {
				p.ChannelType = ct
				p.StartChannel = start
			}))
			valid := start >= 1 && start+ct.Width()-1 <= sacn.Slots
			if valid {
				require.NoError(t, err, "type=%s start=%d", ct, start)
			} else {
				require.ErrorIs(t, err, sacn.ErrConfiguration, "type=%s start=%d", ct, start)
			}
		}
	}
}

func TestNewConfigRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		mut   func(*Params)
	}{
		{"universe zero", "universe", func(p *Params) { p.Universe = 0 }},
		{"universe high", "universe", func(p *Params) { p.Universe = 64000 }},
		{"port", "port", func(p *Params) { p.Port = 0 }},
		{"mode", "transport_mode", func(p *Params) { p.TransportMode = 7 }},
		{"timeout", "timeout", func(p *Params) { p.Timeout = -time.Second }},
		{"pixels", "pixels", func(p *Params) { p.Pixels = 0 }},
		{"channel type", "channel_type", func(p *Params) { p.ChannelType = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(params(tt.mut))
			var ce *sacn.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := NewConfig(DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), cfg.Universe())
	assert.Equal(t, 1, cfg.StartChannel())
	assert.Equal(t, channel.RGB, cfg.ChannelType())
	assert.Equal(t, sacn.Unicast, cfg.TransportMode())
	assert.Equal(t, 5568, cfg.Port())
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout())
	assert.True(t, cfg.BlankOnStart())
	assert.Equal(t, 1, cfg.Pixels())
}

func TestTickRGBAtStart10(t *testing.T) {
	cfg, err := NewConfig(params(func(p *Params) { p.StartChannel = 10 }))
	require.NoError(t, err)
	d := NewDriver(cfg)

	st := &receiver.UniverseState{Universe: 1}
	st.Channels[9], st.Channels[10], st.Channels[11] = 10, 20, 30
	d.MarkReceived(t0)

	c, ok := d.Tick(st, t0.Add(100*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, channel.Color{R: 10, G: 20, B: 30}, c)
}

func TestTickNeverReceivedBlankOnStart(t *testing.T) {
	cfg, err := NewConfig(DefaultParams())
	require.NoError(t, err)
	d := NewDriver(cfg)
	st := &receiver.UniverseState{Universe: 1}
	for _, dt := range []time.Duration{0, time.Second, time.Minute} {
		_, ok := d.Tick(st, t0.Add(dt))
		assert.False(t, ok)
	}
}

func TestTickTimesOut(t *testing.T) {
	cfg, err := NewConfig(DefaultParams())
	require.NoError(t, err)
	d := NewDriver(cfg)
	st := &receiver.UniverseState{Universe: 1}
	d.MarkReceived(t0)

	_, ok := d.Tick(st, t0.Add(2499*time.Millisecond))
	assert.True(t, ok)
	_, ok = d.Tick(st, t0.Add(2501*time.Millisecond))
	assert.False(t, ok)
}

func TestTickNilStateIsBlanked(t *testing.T) {
	cfg, err := NewConfig(params(func(p *Params) { p.BlankOnStart = false }))
	require.NoError(t, err)
	d := NewDriver(cfg)
	_, ok := d.Tick(nil, t0)
	assert.False(t, ok)

	_, ok = d.Tick(&receiver.UniverseState{Universe: 1}, t0)
	assert.True(t, ok, "not blanked on start and never received stays active")
}

func TestLightFrame(t *testing.T) {
	cfg, err := NewConfig(params(func(p *Params) { p.Universe = 5; p.TransportMode = sacn.Multicast }))
	require.NoError(t, err)
	st := &receiver.UniverseState{Universe: 5}
	st.Channels[0] = 255

	l := NewLight(cfg)
	assert.Equal(t, TypeLight, l.Type())
	assert.False(t, l.Frame(t0).On, "not started")

	l.Start(fakeSource{5: st})
	l.Driver().MarkReceived(t0)
	f := l.Frame(t0)
	require.True(t, f.On)
	assert.Equal(t, []channel.Color{{R: 255}}, f.Colors)

	l.Stop()
	assert.False(t, l.Frame(t0).On)
}

func TestAddressableFrameClamps(t *testing.T) {
	cfg, err := NewConfig(params(func(p *Params) {
		p.StartChannel = 507
		p.Pixels = 10
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.FitPixels())

	st := &receiver.UniverseState{Universe: 1}
	for i := 506; i < 512; i++ {
		st.Channels[i] = byte(i - 505)
	}
	a := NewAddressable(cfg)
	a.Start(fakeSource{1: st})
	a.Driver().MarkReceived(t0)
	f := a.Frame(t0)
	require.True(t, f.On)
	assert.Equal(t, []channel.Color{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}}, f.Colors)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	Builtin(reg)
	assert.Equal(t, []string{TypeAddressable, TypeLight}, reg.List())

	cfg, err := NewConfig(params(func(p *Params) { p.Name = "desk" }))
	require.NoError(t, err)
	e, err := reg.New("sacn", cfg)
	require.NoError(t, err)
	assert.Equal(t, "desk", e.Name())
	assert.IsType(t, &Light{}, e)

	_, err = reg.New("rainbow", cfg)
	assert.ErrorIs(t, err, sacn.ErrConfiguration)
}
