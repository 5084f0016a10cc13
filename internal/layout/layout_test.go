package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexSerpentine(t *testing.T) {
	l := Layout{Width: 3, Serpentine: true}
	got := make([]int, 9)
	for i := range got {
		got[i] = l.Index(i)
	}
	assert.Equal(t, []int{0, 1, 2, 5, 4, 3, 6, 7, 8}, got)
	assert.False(t, l.Identity())
}

func TestStraightIsIdentity(t *testing.T) {
	for _, l := range []Layout{{}, {Width: 4}, {Serpentine: true}} {
		assert.True(t, l.Identity())
		assert.Equal(t, 7, l.Index(7))
	}
}

func TestApply(t *testing.T) {
	l := Layout{Width: 2, Serpentine: true}
	src := []byte{1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	dst := make([]byte, len(src))
	l.Apply(dst, src)
	assert.Equal(t, []byte{1, 1, 1, 2, 2, 2, 4, 4, 4, 3, 3, 3}, dst)
}
