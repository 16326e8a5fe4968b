// Package ddt builds the 16x16 difference-distribution table of the
// SPN's 4-bit S-box and its transpose. The DDT is the only thing the
// trail search consults about the S-box; callers never inspect SB
// directly once the table is built.
package ddt

// Table holds ddt[dx][dy], the count of x in 0..16 with
// SB[x] ^ SB[x^dx] = dy, and its transpose T[dy][dx] == D[dx][dy].
type Table struct {
	D [16][16]uint16
	T [16][16]uint16
}

// New builds the table once, in O(16*16), from a raw S-box.
func New(sbox [16]uint8) *Table {
	tbl := &Table{}

	for x := uint16(0); x <= 0xf; x++ {
		y := sbox[x]

		for dx := uint16(0); dx <= 0xf; dx++ {
			dy := y ^ sbox[x^dx]
			tbl.D[dx][dy]++
			tbl.T[dy][dx]++
		}
	}

	return tbl
}

// BackwardCandidates returns the maximum entry of ddt[.][dy] over
// dx=1..15 and every dx achieving it, used when walking a trail toward
// the plaintext.
func (t *Table) BackwardCandidates(dy uint16) (max uint16, dxs []uint16) {
	return bestOf(t.D, dy)
}

// ForwardCandidates returns the maximum entry of ddt[dy][.] over
// dx=1..15 (equivalently ddtT[.][dy]) and every dx achieving it, used
// when walking a trail toward the ciphertext.
func (t *Table) ForwardCandidates(dy uint16) (max uint16, dxs []uint16) {
	return bestOf(t.T, dy)
}

func bestOf(table [16][16]uint16, dy uint16) (uint16, []uint16) {
	var max uint16
	for dx := uint16(1); dx <= 0xf; dx++ {
		if v := table[dx][dy]; v > max {
			max = v
		}
	}

	var dxs []uint16
	for dx := uint16(1); dx <= 0xf; dx++ {
		if table[dx][dy] == max {
			dxs = append(dxs, dx)
		}
	}

	return max, dxs
}
