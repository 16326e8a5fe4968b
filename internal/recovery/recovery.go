// Package recovery drives the full differential key-recovery attack:
// it orders rounds, aggregates trail-scoped subkey histograms across
// patterns, merges per-nibble histograms into a full subkey, and
// orchestrates recovery of the whole 80-bit key.
package recovery

import (
	"fmt"

	"github.com/michalmalik/keyfinder/internal/bitops"
	"github.com/michalmalik/keyfinder/internal/codebook"
	"github.com/michalmalik/keyfinder/internal/ddt"
	"github.com/michalmalik/keyfinder/internal/scorer"
	"github.com/michalmalik/keyfinder/internal/spn"
	"github.com/michalmalik/keyfinder/internal/trail"
	"github.com/sirupsen/logrus"
)

// Reason tags why a Recovery attempt failed, replacing the original
// tool's exit()-from-library-code with a value the caller can inspect
// and map to whatever exit status it wants.
type Reason int

const (
	// ReasonInvariant means a "should never happen" state was hit:
	// a nibble had no argmax, or trail search produced zero trails.
	ReasonInvariant Reason = iota
	// ReasonExhausted means the K[1] brute-force search ran out of
	// candidates without a match. With spn.Cipher this does not happen:
	// the K[1] layer is a bijection, so some K[1] always decrypts CT[0]
	// to 0, and wrong earlier subkeys yield a wrong K[1] instead.
	ReasonExhausted
)

// Error is returned for every recovery failure. Reason lets a caller
// decide how to react (or which exit code to use) without parsing
// strings.
type Error struct {
	Reason Reason
	Msg    string
}

func (e *Error) Error() string {
	return e.Msg
}

func invariantf(format string, args ...interface{}) error {
	return &Error{Reason: ReasonInvariant, Msg: fmt.Sprintf(format, args...)}
}

// Config controls the recovery engine. It is immutable: recovering
// K[0] and K[Nr] needs heuristics forced off, which is done by deriving
// a new Config rather than mutating shared state.
type Config struct {
	Threads int
	Heur3   bool
	Heur4   bool
	Verbose int
}

func (c Config) withoutHeuristics() Config {
	c.Heur3 = false
	c.Heur4 = false
	return c
}

// Engine holds everything a recovery run needs: the SPN capability set
// under attack, its DDT, the code-book, and the run's Config.
type Engine struct {
	prim  spn.Primitive
	table *ddt.Table
	book  *codebook.Book
	cfg   Config
	log   *logrus.Entry
}

// New builds a recovery Engine.
func New(prim spn.Primitive, table *ddt.Table, book *codebook.Book, cfg Config, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{prim: prim, table: table, book: book, cfg: cfg, log: log}
}

// RecoverLastSubkey recovers K[Nr] with heuristics forced off (single
// and double active S-box patterns are enough, and much faster).
func (e *Engine) RecoverLastSubkey() (uint16, error) {
	return e.withConfig(e.cfg.withoutHeuristics()).RecoverRoundSubkey(spn.Nr, [spn.NumSubkeys]uint16{})
}

// RecoverFirstSubkey recovers K[0] with heuristics forced off,
// symmetric to RecoverLastSubkey.
func (e *Engine) RecoverFirstSubkey() (uint16, error) {
	return e.withConfig(e.cfg.withoutHeuristics()).RecoverRoundSubkey(0, [spn.NumSubkeys]uint16{})
}

func (e *Engine) withConfig(cfg Config) *Engine {
	clone := *e
	clone.cfg = cfg
	return &clone
}

// RecoverRoundSubkey recovers a single subkey by combining trail-scoped
// nibble histograms across the fifteen active-S-box patterns, nibble by
// nibble (spec §4.5, redesigned as one loop instead of four
// hand-duplicated blocks).
//
// round == 0 recovers K[0] with the inverse code-book (forward search);
// round in {2,3} recovers a middle subkey by pre-peeling known outer
// subkeys given in known; round == spn.Nr recovers K[Nr]. round == 1 is
// not supported here -- see RecoverSecondSubkey.
func (e *Engine) RecoverRoundSubkey(round int, known [spn.NumSubkeys]uint16) (uint16, error) {
	e.log.WithFields(logrus.Fields{"phase": "recover-round", "round": round}).Info("guessing subkey")

	builder := trail.New(e.table, e.prim.Permute)
	builder.SetLogger(e.log.WithFields(logrus.Fields{"phase": "trail-search", "round": round}))

	subkeyHist := map[trail.Pattern]scorer.Histogram{}
	for pattern := trail.Pattern(1); pattern <= 0xf; pattern++ {
		if !e.shouldScore(pattern) {
			continue
		}

		hist, err := e.scorePattern(builder, round, pattern, known)
		if err != nil {
			return 0, err
		}
		subkeyHist[pattern] = hist
	}

	var subkey uint16
	for i := 0; i < 4; i++ {
		nibble, tied, err := e.combineNibble(i, subkeyHist)
		if err != nil {
			return 0, err
		}
		if tied {
			e.log.WithFields(logrus.Fields{"phase": "recover-round", "round": round, "nibble": i}).
				Warn("nibble argmax has multiple candidates, using the first one scanned")
		}
		subkey |= nibble
	}

	e.log.WithFields(logrus.Fields{"phase": "recover-round", "round": round}).
		Infof("guessed subkey %04x", subkey)

	return subkey, nil
}

// shouldScore implements spec §4.5 step 1's per-pattern heuristic gate.
func (e *Engine) shouldScore(pattern trail.Pattern) bool {
	switch pattern.ActiveCount() {
	case 1, 2:
		return true
	case 3:
		return e.cfg.Heur3
	case 4:
		return e.cfg.Heur4
	default:
		return false
	}
}

// scorePattern generates the best trails for one pattern, scores each
// with the round-appropriate SubkeyScorer variant, and folds every
// trail's argmax set into a single per-pattern histogram.
func (e *Engine) scorePattern(builder *trail.Builder, round int, pattern trail.Pattern, known [spn.NumSubkeys]uint16) (scorer.Histogram, error) {
	fromRound, forward := trailParams(round)

	trails := trail.BestTrails(builder.Build(fromRound, pattern, forward))
	if len(trails) == 0 {
		return nil, invariantf("no trails generated for round %d, pattern %04b", round, pattern)
	}

	e.log.WithFields(logrus.Fields{"phase": "score-pattern", "round": round, "pattern": fmt.Sprintf("%04b", pattern)}).
		Debugf("scoring %d best trail(s)", len(trails))

	combined := scorer.Histogram{}
	for _, tr := range trails {
		hist := e.scoreTrail(round, tr, known)

		keys, max := scorer.ArgMax(hist)
		if len(keys) == 0 {
			return nil, invariantf("empty histogram scoring round %d, pattern %04b", round, pattern)
		}

		e.log.WithFields(logrus.Fields{
			"phase": "score-trail", "round": round, "pattern": fmt.Sprintf("%04b", pattern),
			"input": tr.InputDiff, "output": tr.OutputDiff, "probability": tr.Probability, "argmax": max,
		}).Debug("scored trail")

		for _, k := range keys {
			combined[k] += max
		}
	}

	return combined, nil
}

// scoreTrail dispatches to the last/first/middle SubkeyScorer variant
// appropriate for round.
func (e *Engine) scoreTrail(round int, tr trail.Trail, known [spn.NumSubkeys]uint16) scorer.Histogram {
	switch round {
	case spn.Nr:
		return scorer.LastSubkey(e.prim, e.book, tr)
	case 0:
		return scorer.FirstSubkey(e.prim, e.book, tr)
	default:
		return scorer.MiddleSubkey(e.prim, e.book, known, round, tr, e.cfg.Threads)
	}
}

// trailParams derives TrailBuilder.Build's fromRound/forward from the
// subkey round being attacked, matching the original tool's asymmetric
// but reproducible convention.
func trailParams(round int) (fromRound int, forward bool) {
	if round == 0 {
		return spn.Nr, true
	}
	return round, false
}

// combineNibble implements spec §4.5 step 2 for one nibble index.
func (e *Engine) combineNibble(i int, subkeyHist map[trail.Pattern]scorer.Histogram) (nibble uint16, tied bool, err error) {
	own := trail.Pattern(1 << uint(3-i))
	main := scorer.Histogram{}
	for k, v := range subkeyHist[own] {
		main[k] = v
	}

	for pattern, hist := range subkeyHist {
		if pattern == own || pattern.ActiveCount() < 2 || !pattern.Has(i) {
			continue
		}

		keys, max := scorer.ArgMax(hist)
		for _, k := range keys {
			main[k&bitops.NibbleMask(i)] += max
		}
	}

	keys, _ := scorer.ArgMax(main)
	if len(keys) == 0 {
		return 0, false, invariantf("no candidate for nibble %d, this is probably a bug", i)
	}

	return keys[0], len(keys) > 1, nil
}

// RecoverSecondSubkey recovers K[1] by brute force: the other four
// subkeys already being correct, exactly one value of K[1] can decrypt
// CT[0] back to plaintext 0.
func (e *Engine) RecoverSecondSubkey(known [spn.NumSubkeys]uint16) (uint16, error) {
	e.log.WithField("phase", "recover-k1").Info("brute-forcing subkey")

	subkeys := known
	for k := 0; k <= 0xffff; k++ {
		subkeys[1] = uint16(k)
		if e.prim.DecryptWith(e.book.CT[0], subkeys) == 0 {
			e.log.WithField("phase", "recover-k1").Infof("found subkey %04x", k)
			return uint16(k), nil
		}
	}

	return 0, &Error{Reason: ReasonExhausted, Msg: "exhausted K[1] search space, earlier subkeys must be wrong"}
}

// RecoverAll orchestrates recovery of the entire 80-bit key: K[Nr]
// first, then middle rounds from Nr-1 down to 2 with outer subkeys
// peeled off, then K[0], then K[1] by brute force.
func (e *Engine) RecoverAll() ([spn.NumSubkeys]uint16, error) {
	var subkeys [spn.NumSubkeys]uint16

	k4, err := e.RecoverLastSubkey()
	if err != nil {
		return subkeys, err
	}
	subkeys[spn.Nr] = k4

	for round := spn.Nr - 1; round > 1; round-- {
		subkey, err := e.RecoverRoundSubkey(round, subkeys)
		if err != nil {
			return subkeys, err
		}
		subkeys[round] = subkey
	}

	k0, err := e.RecoverFirstSubkey()
	if err != nil {
		return subkeys, err
	}
	subkeys[0] = k0

	k1, err := e.RecoverSecondSubkey(subkeys)
	if err != nil {
		return subkeys, err
	}
	subkeys[1] = k1

	return subkeys, nil
}
