package codebook

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalmalik/keyfinder/internal/spn"
	"github.com/stretchr/testify/require"
)

var referenceSBox = [16]int{6, 10, 11, 15, 12, 2, 13, 5, 3, 8, 0, 1, 14, 7, 4, 9}

func writeCodebook(t *testing.T, key string, extraLine string) string {
	t.Helper()

	c, err := spn.New(referenceSBox)
	require.NoError(t, err)
	subkeys, err := spn.ParseKey(key)
	require.NoError(t, err)
	c.SetSubkeys(subkeys)

	dir := t.TempDir()
	path := filepath.Join(dir, "codebook.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	for pt := 0; pt < Size; pt++ {
		fmt.Fprintf(f, "%04x\n", c.Encrypt(uint16(pt)))
	}
	if extraLine != "" {
		fmt.Fprintln(f, extraLine)
	}

	return path
}

func TestLoadConsistency(t *testing.T) {
	path := writeCodebook(t, "aaaabbbbccccddddeeee", "")
	book, err := Load(path)
	require.NoError(t, err)

	for c := 0; c < Size; c += 977 {
		require.EqualValues(t, c, book.CT[book.PT[c]])
	}
	for p := 0; p < Size; p += 977 {
		require.EqualValues(t, p, book.PT[book.CT[p]])
	}
}

func TestLoadRejectsTrailingLine(t *testing.T) {
	path := writeCodebook(t, "aaaabbbbccccddddeeee", "0000")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadHex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codebook.txt")
	require.NoError(t, os.WriteFile(path, []byte("zzzz\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	require.Error(t, err)
}
