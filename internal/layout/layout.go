// Package layout maps logical pixel order onto how a strip is physically
// wired.
package layout

// Layout describes a strip folded into rows of Width pixels. Width 0 means a
// straight strip.
type Layout struct {
	Width int
	// Serpentine reverses every odd row, as when a strip zig-zags across a
	// matrix.
	Serpentine bool
}

// Index maps logical pixel i (row-major, left to right) to its physical LED
// index.
func (l Layout) Index(i int) int {
	if l.Width <= 0 || !l.Serpentine {
		return i
	}
	row, col := i/l.Width, i%l.Width
	if row%2 == 1 {
		col = l.Width - 1 - col
	}
	return row*l.Width + col
}

// Identity reports whether Index is a no-op.
func (l Layout) Identity() bool { return l.Width <= 0 || !l.Serpentine }

// Apply copies RGB triples from src into dst at their physical positions.
// Pixels whose physical index falls outside dst are dropped.
func (l Layout) Apply(dst, src []byte) {
	if l.Identity() {
		copy(dst, src)
		return
	}
	n := len(src) / 3
	for i := 0; i < n; i++ {
		j := l.Index(i) * 3
		if j+2 >= len(dst) {
			continue
		}
		copy(dst[j:j+3], src[i*3:i*3+3])
	}
}
