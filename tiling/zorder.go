package tiling

import "math"

var (
	interleaveMasks = [...]uint64{
		0x5555555555555555,
		0x3333333333333333,
		0x0F0F0F0F0F0F0F0F,
		0x00FF00FF00FF00FF,
		0x0000FFFF0000FFFF,
	}
	interleaveShifts = [...]uint{1, 2, 4, 8, 16}
)

// zOrder interleaves the bits of col and row (col on the even bits).
// Cells that are close on the grid mostly end up close in the ordering.
func zOrder(col, row int) uint64 {
	if col < 0 || row < 0 || uint64(col) > math.MaxUint32 || uint64(row) > math.MaxUint32 {
		panic("tiling: grid cell out of Z-order range")
	}
	return spread(uint64(col)) | spread(uint64(row))<<1
}

// spread moves bit i of the lower 32 bits of v to bit 2i.
func spread(v uint64) uint64 {
	for i := len(interleaveMasks) - 1; i >= 0; i-- {
		v = (v | v<<interleaveShifts[i]) & interleaveMasks[i]
	}
	return v
}
