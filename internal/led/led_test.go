package led

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi/spitest"
)

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("grb")
	require.NoError(t, err)
	assert.Equal(t, "GRB", o.String())

	dst := make([]byte, 6)
	o.Apply(dst, []byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []byte{2, 1, 3, 5, 4, 6}, dst)

	for _, bad := range []string{"RG", "RGBW", "RRB", "RGX"} {
		_, err := ParseOrder(bad)
		assert.Error(t, err, bad)
	}
	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderRGB, o)
}

func TestSimRecordsFrames(t *testing.T) {
	s := NewSim(2)
	require.NoError(t, s.Write([]byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, 1, s.Frames())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, s.Last())
	assert.Error(t, s.Write([]byte{1, 2, 3}))
	require.NoError(t, s.Close())
	assert.Error(t, s.Write([]byte{1, 2, 3, 4, 5, 6}))
}

func TestOpenReorders(t *testing.T) {
	d, err := Open(Spec{Kind: KindSim, Pixels: 1, ColorOrder: "BGR"})
	require.NoError(t, err)
	require.NoError(t, d.Write([]byte{10, 20, 30}))
	r, ok := d.(*reordered)
	require.True(t, ok)
	assert.Equal(t, []byte{30, 20, 10}, r.Driver.(*Sim).Last())

	d, err = Open(Spec{Pixels: 1})
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, d)

	_, err = Open(Spec{Kind: "pwm", Pixels: 1})
	assert.Error(t, err)
	_, err = Open(Spec{Kind: KindSim})
	assert.Error(t, err)
}

func TestSPIPortWritesEncodedStream(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSPIPort(spitest.NewRecordRaw(&buf), 2, 0)
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte{255, 0, 0, 0, 0, 255}))
	assert.Greater(t, buf.Len(), 6)
	assert.Error(t, s.Write([]byte{1}))
	require.NoError(t, s.Close())
	assert.Error(t, s.Write([]byte{255, 0, 0, 0, 0, 255}))
}
