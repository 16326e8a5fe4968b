// Package scorer turns a differential trail and the code-book into a
// histogram of candidate nibble subkeys, one function per attacked
// round position.
package scorer

import (
	"sort"
	"sync"

	"github.com/michalmalik/keyfinder/internal/bitops"
	"github.com/michalmalik/keyfinder/internal/codebook"
	"github.com/michalmalik/keyfinder/internal/spn"
	"github.com/michalmalik/keyfinder/internal/trail"
)

// Histogram maps a candidate subkey to how many code-book pairs voted
// for it.
type Histogram map[uint16]uint64

// LastSubkey scores candidates for K[Nr] by partial-decrypting
// ciphertext pairs whose plaintext-side difference is trail.InputDiff.
func LastSubkey(prim spn.Primitive, book *codebook.Book, tr trail.Trail) Histogram {
	mask := bitops.Mask(tr.OutputDiff)
	candidates := bitops.CandidatesForMask(mask)
	hist := Histogram{}

	for pt1 := 0; pt1 < codebook.Size; pt1++ {
		pt2 := uint16(pt1) ^ tr.InputDiff
		ct1 := book.CT[pt1]
		ct2 := book.CT[pt2]

		if ct1&^mask != ct2&^mask {
			continue
		}

		scoreCandidates(prim.InvSubstitute, ct1, ct2, mask, tr.OutputDiff, candidates, hist)
	}

	return hist
}

// FirstSubkey scores candidates for K[0] using the inverse code-book,
// symmetric to LastSubkey with subst in place of invSubst.
func FirstSubkey(prim spn.Primitive, book *codebook.Book, tr trail.Trail) Histogram {
	mask := bitops.Mask(tr.OutputDiff)
	candidates := bitops.CandidatesForMask(mask)
	hist := Histogram{}

	for x := 0; x < codebook.Size; x++ {
		x2 := uint16(x) ^ tr.InputDiff
		ct1 := book.PT[x]
		ct2 := book.PT[x2]

		if ct1&^mask != ct2&^mask {
			continue
		}

		scoreCandidates(prim.Substitute, ct1, ct2, mask, tr.OutputDiff, candidates, hist)
	}

	return hist
}

// MiddleSubkey scores candidates for K[round] (round 2 or 3), pre-
// peeling the already-known outer subkeys K[Nr] down to K[round+1]
// before applying the same last-subkey-shaped scoring. This is the one
// parallel hot loop in the whole engine: the code-book is split into
// workers contiguous ranges, each with a private histogram merged into
// the shared one under a mutex once it finishes.
func MiddleSubkey(prim spn.Primitive, book *codebook.Book, known [spn.NumSubkeys]uint16, round int, tr trail.Trail, workers int) Histogram {
	mask := bitops.Mask(tr.OutputDiff)
	candidates := bitops.CandidatesForMask(mask)

	if workers < 1 {
		workers = 1
	}

	peel := func(ct uint16) uint16 {
		v := prim.InvSubstitute(ct ^ known[spn.Nr])
		for i := spn.Nr - 1; i > round; i-- {
			v = prim.InvSubstitute(prim.Permute(v ^ known[i]))
		}
		return v
	}

	// The peeled value sits one substitution layer above round's output
	// difference: undoing K[round] still leaves the permutation between
	// it and the substitution layer trail.OutputDiff was measured at.
	invSubstPermute := func(x uint16) uint16 {
		return prim.InvSubstitute(prim.Permute(x))
	}

	perRange := codebook.Size / workers
	hist := Histogram{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		start := w * perRange
		end := start + perRange
		if w == workers-1 {
			end = codebook.Size
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			local := Histogram{}
			for pt1 := start; pt1 < end; pt1++ {
				pt2 := uint16(pt1) ^ tr.InputDiff
				ct1 := peel(book.CT[pt1])
				ct2 := peel(book.CT[pt2])

				if ct1&^mask != ct2&^mask {
					continue
				}

				scoreCandidates(invSubstPermute, ct1, ct2, mask, tr.OutputDiff, candidates, local)
			}

			mu.Lock()
			for k, v := range local {
				hist[k] += v
			}
			mu.Unlock()
		}(start, end)
	}

	wg.Wait()

	return hist
}

// scoreCandidates XORs each candidate subkey into ct1/ct2, applies sub
// (subst or invSubst depending on the round position) and increments
// hist for every candidate whose resulting difference matches
// outputDiff under mask.
func scoreCandidates(sub func(uint16) uint16, ct1, ct2, mask, outputDiff uint16, candidates []uint16, hist Histogram) {
	for _, sk := range candidates {
		u1 := sub(ct1 ^ sk)
		u2 := sub(ct2 ^ sk)

		if (u1^u2)&mask == outputDiff {
			hist[sk]++
		}
	}
}

// ArgMax returns every key in hist achieving its maximum value, sorted
// ascending, and that maximum. An empty histogram returns a nil slice
// and 0. Sorting makes picking keys[0] on a tie reproducible across
// runs -- ranging a map has randomized order otherwise.
func ArgMax(hist Histogram) ([]uint16, uint64) {
	var max uint64
	for _, v := range hist {
		if v > max {
			max = v
		}
	}

	var keys []uint16
	for k, v := range hist {
		if v == max {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, max
}
