package recovery

import (
	"testing"

	"github.com/michalmalik/keyfinder/internal/codebook"
	"github.com/michalmalik/keyfinder/internal/ddt"
	"github.com/michalmalik/keyfinder/internal/spn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var referenceSBox = [16]int{6, 10, 11, 15, 12, 2, 13, 5, 3, 8, 0, 1, 14, 7, 4, 9}

func buildEngine(t *testing.T, key string, cfg Config) (*Engine, *spn.Cipher, [spn.NumSubkeys]uint16) {
	t.Helper()

	c, err := spn.New(referenceSBox)
	require.NoError(t, err)

	subkeys, err := spn.ParseKey(key)
	require.NoError(t, err)
	c.SetSubkeys(subkeys)

	book := &codebook.Book{}
	for pt := 0; pt < codebook.Size; pt++ {
		ct := c.Encrypt(uint16(pt))
		book.CT[pt] = ct
		book.PT[ct] = uint16(pt)
	}

	table := ddt.New(c.SBox())
	log := logrus.NewEntry(logrus.New())
	log.Logger.SetLevel(logrus.PanicLevel)

	return New(c, table, book, cfg, log), c, subkeys
}

func TestRecoverLastSubkey(t *testing.T) {
	e, _, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 1})

	got, err := e.RecoverLastSubkey()
	require.NoError(t, err)
	require.Equal(t, subkeys[spn.Nr], got)
}

func TestRecoverFirstSubkey(t *testing.T) {
	e, _, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 1})

	got, err := e.RecoverFirstSubkey()
	require.NoError(t, err)
	require.Equal(t, subkeys[0], got)
}

func TestRecoverMiddleSubkeyRound3(t *testing.T) {
	e, _, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 4})

	known := [spn.NumSubkeys]uint16{}
	known[spn.Nr] = subkeys[spn.Nr]

	got, err := e.RecoverRoundSubkey(3, known)
	require.NoError(t, err)
	require.Equal(t, subkeys[3], got)
}

func TestRecoverSecondSubkeyBruteForce(t *testing.T) {
	e, _, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 1})

	got, err := e.RecoverSecondSubkey(subkeys)
	require.NoError(t, err)
	require.Equal(t, subkeys[1], got)
}

// neverZeroPrimitive wraps a real cipher but makes every partial
// decryption land on plaintext 1, so no K[1] candidate can match.
type neverZeroPrimitive struct {
	spn.Primitive
}

func (neverZeroPrimitive) DecryptWith(uint16, [spn.NumSubkeys]uint16) uint16 {
	return 1
}

func TestRecoverSecondSubkeyExhausted(t *testing.T) {
	e, c, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 1})

	// With the real cipher the K[1] layer is a bijection, so some K[1]
	// decrypts CT[0] to 0 whatever the other subkeys are; only a
	// primitive that never reaches plaintext 0 exhausts the search.
	stub := New(neverZeroPrimitive{c}, e.table, e.book, e.cfg, e.log)

	_, err := stub.RecoverSecondSubkey(subkeys)
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ReasonExhausted, rerr.Reason)
}

func TestRecoverAll(t *testing.T) {
	e, _, subkeys := buildEngine(t, "aaaabbbbccccddddeeee", Config{Threads: 4})

	got, err := e.RecoverAll()
	require.NoError(t, err)
	require.Equal(t, subkeys, got)
}

func TestRecoverAllRegressionKey(t *testing.T) {
	e, _, subkeys := buildEngine(t, "f993c0f7875a80a645cb", Config{Threads: 4, Heur3: true})

	got, err := e.RecoverAll()
	require.NoError(t, err)
	require.Equal(t, subkeys, got)
}

func TestWithoutHeuristicsDoesNotMutateOriginal(t *testing.T) {
	cfg := Config{Heur3: true, Heur4: true}
	derived := cfg.withoutHeuristics()

	require.True(t, cfg.Heur3)
	require.True(t, cfg.Heur4)
	require.False(t, derived.Heur3)
	require.False(t, derived.Heur4)
}
