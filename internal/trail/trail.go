// Package trail enumerates candidate differential trails through the
// SPN by a greedy backtracking walk over a difference-distribution
// table, picking the highest-probability differential per active S-box
// at every round.
package trail

import (
	"github.com/michalmalik/keyfinder/internal/bitops"
	"github.com/michalmalik/keyfinder/internal/ddt"

	"github.com/sirupsen/logrus"
)

// Pattern is a 4-bit active-S-box pattern (1..15) selecting which of
// the four S-boxes of a layer are active.
type Pattern uint8

// Mask expands the pattern to the 16-bit mask covering its active
// nibbles.
func (p Pattern) Mask() uint16 {
	var mask uint16
	for i := 0; i < 4; i++ {
		if p&(1<<uint(3-i)) != 0 {
			mask |= bitops.NibbleMask(i)
		}
	}
	return mask
}

// NibbleMasks returns the single-nibble mask of every active S-box.
func (p Pattern) NibbleMasks() []uint16 {
	var masks []uint16
	for i := 0; i < 4; i++ {
		if p&(1<<uint(3-i)) != 0 {
			masks = append(masks, bitops.NibbleMask(i))
		}
	}
	return masks
}

// ActiveCount returns the number of active S-boxes, 1..4.
func (p Pattern) ActiveCount() int {
	count := 0
	for i := 0; i < 4; i++ {
		if p&(1<<uint(i)) != 0 {
			count++
		}
	}
	return count
}

// Has reports whether S-box nibble index i (0=leftmost) is active.
func (p Pattern) Has(i int) bool {
	return p&(1<<uint(3-i)) != 0
}

// Trail is one candidate propagation of a plaintext-side difference
// through the network to the layer just before an attacked subkey.
type Trail struct {
	InputDiff   uint16
	OutputDiff  uint16
	Probability float64
}

// Builder walks a Table to enumerate trails. Permute is taken from
// spn.Primitive rather than a concrete cipher, so trail search can be
// exercised against a stub permutation in tests.
type Builder struct {
	table   *ddt.Table
	permute func(uint16) uint16
	log     *logrus.Entry
}

// New builds a trail Builder over the given DDT and permutation.
func New(table *ddt.Table, permute func(uint16) uint16) *Builder {
	return &Builder{table: table, permute: permute}
}

// SetLogger attaches a logger that Build uses to trace its round-by-
// round walk at logrus.TraceLevel. A nil logger (the default) disables
// tracing entirely.
func (b *Builder) SetLogger(log *logrus.Entry) {
	b.log = log
}

// Build enumerates every trail whose layer-fromRound difference is
// compatible with pattern, walking one round at a time toward the
// plaintext (forward == false) or toward the ciphertext (forward ==
// true) until one round short of the boundary.
func (b *Builder) Build(fromRound int, pattern Pattern, forward bool) []Trail {
	var trails []Trail

	for _, u := range b.candidateDiffs(pattern) {
		cur := u
		probability := 1.0

		for r := fromRound - 1; r >= 1; r-- {
			layerOutDiff := b.permute(cur)
			probability *= b.layerProbability(layerOutDiff, forward)
			cur = b.chooseRoundInput(layerOutDiff, forward)

			if b.log != nil {
				b.log.WithFields(logrus.Fields{"round": r, "in": cur, "out": layerOutDiff}).
					Trace("stepped trail round")
			}
		}

		trails = append(trails, Trail{InputDiff: cur, OutputDiff: u, Probability: probability})
	}

	return trails
}

// candidateDiffs enumerates every 16-bit value whose active nibbles
// (per pattern) are all non-zero and whose inactive nibbles are zero.
func (b *Builder) candidateDiffs(pattern Pattern) []uint16 {
	var diffs []uint16
	for _, u := range bitops.CandidatesForMask(pattern.Mask()) {
		if u&^pattern.Mask() != 0 {
			continue
		}

		ok := true
		for _, nm := range pattern.NibbleMasks() {
			if u&nm == 0 {
				ok = false
				break
			}
		}
		if ok {
			diffs = append(diffs, u)
		}
	}
	return diffs
}

// layerProbability multiplies the max-DDT fraction of every active
// nibble of a layer's output difference.
func (b *Builder) layerProbability(layerOutDiff uint16, forward bool) float64 {
	probability := 1.0
	for _, i := range bitops.ActiveNibbles(layerOutDiff) {
		dy := bitops.NibbleOf(i, layerOutDiff)
		max, _ := b.candidates(dy, forward)
		probability *= float64(max) / 16.0
	}
	return probability
}

func (b *Builder) candidates(dy uint16, forward bool) (uint16, []uint16) {
	if forward {
		return b.table.ForwardCandidates(dy)
	}
	return b.table.BackwardCandidates(dy)
}

// chooseRoundInput picks, for every active nibble of the layer output
// difference, the highest-probability dx and, among ties, the one that
// minimizes the number of active nibbles of the following layer's
// output difference. Ties in that secondary criterion are broken by
// the order nibbles and dx candidates are scanned in (ascending nibble
// index, ascending dx) -- the greedy search never looks further ahead
// than one layer.
func (b *Builder) chooseRoundInput(layerOutDiff uint16, forward bool) uint16 {
	var roundInDiff uint16

	for _, i := range bitops.ActiveNibbles(layerOutDiff) {
		dy := bitops.NibbleOf(i, layerOutDiff)
		_, dxs := b.candidates(dy, forward)

		lowestActiveCount := 5
		var chosen uint16
		for _, dx := range dxs {
			potential := roundInDiff | bitops.MakeNibble(i, dx)
			nextOutDiff := b.permute(potential)
			count := bitops.NibbleCount(nextOutDiff)

			if count < lowestActiveCount {
				lowestActiveCount = count
				chosen = dx
			}
		}

		roundInDiff |= bitops.MakeNibble(i, chosen)
	}

	return roundInDiff
}

// BestTrails keeps the trails whose probability equals the maximum of
// the input list, using strict float64 equality -- ties in a greedy
// max-DDT search are common and expected.
func BestTrails(trails []Trail) []Trail {
	var best float64
	for _, tr := range trails {
		if tr.Probability > best {
			best = tr.Probability
		}
	}

	var out []Trail
	for _, tr := range trails {
		if tr.Probability == best {
			out = append(out, tr)
		}
	}
	return out
}
