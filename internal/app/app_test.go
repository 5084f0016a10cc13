package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-sacn/internal/capture"
	"github.com/coreman2200/funtimes-sacn/internal/config"
	"github.com/coreman2200/funtimes-sacn/internal/led"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

var t0 = time.Date(2024, 7, 1, 22, 0, 0, 0, time.UTC)

const twoLights = `
fps: 30
lights:
  - name: desk
    universe: 5
    transport_mode: MULTICAST
    output: { driver: spi, color_order: GRB }
  - name: strip
    effect: addressable_sacn
    universe: 5
    transport_mode: MULTICAST
    start_channel: 4
    pixels: 2
`

func record(t *testing.T, universe uint16, seq uint8, data ...byte) capture.Record {
	t.Helper()
	b, err := (&sacn.Packet{
		CID:        uuid.MustParse("0b1c2d3e-4f50-4617-8293-a4b5c6d7e8f9"),
		SourceName: "console",
		Priority:   sacn.DefaultPriority,
		Sequence:   seq,
		Universe:   universe,
		Data:       data,
	}).MarshalBinary()
	require.NoError(t, err)
	return capture.Record{Port: sacn.DefaultPort, Source: "10.0.0.9:5568", Data: b}
}

type drivers struct {
	sims  []*led.Sim
	specs []led.Spec
}

func (d *drivers) open(s led.Spec) (led.Driver, error) {
	d.specs = append(d.specs, s)
	if s.Kind == led.KindSPI {
		return nil, errors.New("no spidev")
	}
	sim := led.NewSim(s.Pixels)
	d.sims = append(d.sims, sim)
	return sim, nil
}

func TestCoreEndToEnd(t *testing.T) {
	cfg, err := config.Parse([]byte(twoLights))
	require.NoError(t, err)
	cfg.Capture.Path = filepath.Join(t.TempDir(), "rx.cbor")

	replay := capture.NewReplay([]capture.Record{
		record(t, 5, 1, 255, 0, 0, 0, 0, 255, 0, 255, 0),
		record(t, 9, 1, 1, 2, 3),
	})
	var d drivers
	now := func() time.Time { return t0 }
	c, err := InitCore(cfg, Options{Transport: replay, OpenDriver: d.open, Now: now})
	require.NoError(t, err)

	require.Len(t, d.sims, 2)
	assert.Equal(t, []string{led.KindSPI, led.KindSim, led.KindSim}, []string{d.specs[0].Kind, d.specs[1].Kind, d.specs[2].Kind})
	assert.Equal(t, 1, d.specs[0].Pixels)
	assert.Equal(t, 2, d.specs[2].Pixels)

	bs := c.Recv.Bindings()
	require.Len(t, bs, 1)
	assert.Equal(t, 2, bs[0].Refs)
	assert.Equal(t, "BOUND", bs[0].State)

	require.NoError(t, c.Eng.Frame(t0))
	assert.Equal(t, []byte{255, 0, 0}, d.sims[0].Last())
	assert.Equal(t, []byte{0, 0, 255, 0, 255, 0}, d.sims[1].Last())
	assert.Equal(t, uint64(1), c.Recv.Stats().Unsubscribed)
	assert.Empty(t, c.State.Diagnostics())

	// Nothing more arrives; past the 2.5s timeout both lights go dark.
	require.NoError(t, c.Eng.Frame(t0.Add(3*time.Second)))
	assert.Equal(t, []byte{0, 0, 0}, d.sims[0].Last())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, d.sims[1].Last())
	var codes []string
	for _, dg := range c.State.Diagnostics() {
		codes = append(codes, dg.Code+":"+dg.Detail)
	}
	assert.Equal(t, []string{"LIGHT.BLANKED:desk", "LIGHT.BLANKED:strip"}, codes)

	require.NoError(t, c.Close())
	r, err := capture.Open(cfg.Capture.Path, capture.Filter{Universe: 5})
	require.NoError(t, err)
	defer r.Close()
	recs, err := r.All()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestInitCoreRejectsBadConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("lights: [{universe: 70000}]"))
	require.NoError(t, err)
	_, err = InitCore(cfg, Options{Transport: capture.NewReplay(nil)})
	assert.ErrorIs(t, err, sacn.ErrConfiguration)

	cfg, err = config.Parse([]byte("lights: [{effect: strobe}]"))
	require.NoError(t, err)
	var d drivers
	_, err = InitCore(cfg, Options{Transport: capture.NewReplay(nil), OpenDriver: d.open})
	assert.ErrorIs(t, err, sacn.ErrConfiguration)
}
