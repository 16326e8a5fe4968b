// Package codebook reads and holds the attacker's complete plaintext ->
// ciphertext table and its inverse.
package codebook

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
)

// Size is the number of entries in a complete code-book: every 16-bit
// value.
const Size = 1 << 16

// Book holds both directions of the code-book: CT[pt] = ct and its
// inverse PT[ct] = pt.
type Book struct {
	CT [Size]uint16
	PT [Size]uint16
}

// Load reads a ciphertext file: exactly Size lines, each four lowercase
// hex digits, line i (0-indexed) being the ciphertext of plaintext i.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open ciphertext file %q", path)
	}
	defer f.Close()

	book := &Book{}

	scanner := bufio.NewScanner(f)
	pt := 0
	for scanner.Scan() {
		if pt >= Size {
			return nil, errors.Errorf("ciphertext file has more than %d lines", Size)
		}

		line := scanner.Text()
		ct, err := parseCiphertextLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", pt)
		}

		book.CT[pt] = ct
		book.PT[ct] = uint16(pt)
		pt++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading ciphertext file")
	}

	if pt != Size {
		return nil, errors.Errorf("ciphertext file has %d lines, want %d", pt, Size)
	}

	return book, nil
}

func parseCiphertextLine(line string) (uint16, error) {
	if len(line) != 4 {
		return 0, errors.Errorf("expected 4 hex digits, got %q", line)
	}

	var v uint16
	for _, c := range line {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint16(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint16(c-'a') + 10
		default:
			return 0, errors.Errorf("not a lowercase hex digit: %q", line)
		}
	}

	return v, nil
}
