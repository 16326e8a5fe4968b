// Package spn implements the toy Substitution-Permutation Network under
// attack: a 16-bit block, a 4-bit S-box applied in parallel to the four
// nibbles of the state, a fixed self-inverse bit permutation, and five
// 16-bit round subkeys.
package spn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Nr is the number of substitution/permutation rounds. There are Nr+1
// subkeys: K[0] is whitened in before round 1, K[1..Nr-1] are XORed
// between rounds, K[Nr] is XORed in after the final substitution.
const Nr = 4

// NumSubkeys is len(K).
const NumSubkeys = Nr + 1

// Primitive is the narrow capability set Recovery and SubkeyScorer need
// from a Cipher: substitute, inverse-substitute, permute and a
// partial-decrypt entry point that takes an explicit subkey set rather
// than the cipher's own. Recovery can be exercised against a stub
// implementing this interface instead of a full Cipher.
type Primitive interface {
	Substitute(x uint16) uint16
	InvSubstitute(x uint16) uint16
	Permute(x uint16) uint16
	DecryptWith(ct uint16, subkeys [NumSubkeys]uint16) uint16
}

// Cipher is the concrete SPN primitive plus its own key schedule.
type Cipher struct {
	sbox    [16]uint8
	invSbox [16]uint8
	subkeys [NumSubkeys]uint16
}

// New builds a Cipher from an S-box given as SB[0..15]. sbox must be a
// permutation of 0..15.
func New(sbox [16]int) (*Cipher, error) {
	c := &Cipher{}

	var seen [16]bool
	for i, v := range sbox {
		if v < 0 || v > 0xf {
			return nil, errors.Errorf("sbox value at index %d out of range: %d", i, v)
		}
		if seen[v] {
			return nil, errors.Errorf("sbox is not a permutation: %d repeats", v)
		}
		seen[v] = true

		c.sbox[i] = uint8(v)
		c.invSbox[v] = uint8(i)
	}

	return c, nil
}

// SBox returns a copy of SB[0..15], the raw S-box the DDT is built from.
func (c *Cipher) SBox() [16]uint8 {
	return c.sbox
}

// Subkeys returns the currently loaded subkeys.
func (c *Cipher) Subkeys() [NumSubkeys]uint16 {
	return c.subkeys
}

// SetSubkeys loads a key schedule into the cipher.
func (c *Cipher) SetSubkeys(subkeys [NumSubkeys]uint16) {
	c.subkeys = subkeys
}

// ParseKey parses a 20 lowercase hex character key into five 16-bit
// subkeys, leftmost group first.
func ParseKey(hex string) ([NumSubkeys]uint16, error) {
	var subkeys [NumSubkeys]uint16

	if len(hex) != 4*NumSubkeys {
		return subkeys, errors.Errorf("key must be exactly %d hex characters, got %d", 4*NumSubkeys, len(hex))
	}

	for i, ch := range hex {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return subkeys, errors.Errorf("key character %d is not a lowercase hex digit: %q", i, ch)
		}
	}

	for i := 0; i < NumSubkeys; i++ {
		var v uint16
		group := hex[4*i : 4*i+4]
		if _, err := fmt.Sscanf(group, "%04x", &v); err != nil {
			return subkeys, errors.Wrapf(err, "bad key group %q", group)
		}
		subkeys[i] = v
	}

	return subkeys, nil
}

// Substitute applies the S-box to each of the four nibbles of x in
// parallel.
func (c *Cipher) Substitute(x uint16) uint16 {
	var y uint16
	for i := 0; i < 4; i++ {
		shift := uint((3 - i) * 4)
		nibble := (x >> shift) & 0xf
		y |= uint16(c.sbox[nibble]) << shift
	}
	return y
}

// InvSubstitute applies the inverse S-box to each nibble of x.
func (c *Cipher) InvSubstitute(x uint16) uint16 {
	var y uint16
	for i := 0; i < 4; i++ {
		shift := uint((3 - i) * 4)
		nibble := (x >> shift) & 0xf
		y |= uint16(c.invSbox[nibble]) << shift
	}
	return y
}

// Permute applies the fixed bit permutation pi. pi is its own inverse,
// so this same routine serves both encryption and decryption.
func Permute(x uint16) uint16 {
	var y uint16
	y |= x & 0x8421
	y |= (x & 0x0842) << 3
	y |= (x & 0x0084) << 6
	y |= (x & 0x0008) << 9
	y |= (x & 0x1000) >> 9
	y |= (x & 0x2100) >> 6
	y |= (x & 0x4210) >> 3
	return y
}

// Permute is the method form of the package-level Permute, so *Cipher
// satisfies Primitive.
func (c *Cipher) Permute(x uint16) uint16 {
	return Permute(x)
}

// Encrypt runs pt through the four-round SPN using the cipher's own
// subkeys: x <- pt ^ K[0]; rounds 1..3 are (subst, perm, XOR K[r]);
// round 4 is (subst, XOR K[4]).
func (c *Cipher) Encrypt(pt uint16) uint16 {
	x := pt ^ c.subkeys[0]

	for r := 1; r < Nr; r++ {
		x = c.Substitute(x)
		x = Permute(x)
		x ^= c.subkeys[r]
	}

	x = c.Substitute(x)
	x ^= c.subkeys[Nr]

	return x
}

// Decrypt inverts Encrypt using the cipher's own subkeys.
func (c *Cipher) Decrypt(ct uint16) uint16 {
	return c.DecryptWith(ct, c.subkeys)
}

// DecryptWith inverts Encrypt using an explicit subkey set instead of
// the cipher's own. This exists so partial-decryption during recovery
// (and parallel scoring) never has to mutate the cipher's key schedule.
func (c *Cipher) DecryptWith(ct uint16, subkeys [NumSubkeys]uint16) uint16 {
	x := ct ^ subkeys[Nr]
	x = c.InvSubstitute(x)

	for r := Nr - 1; r >= 1; r-- {
		x ^= subkeys[r]
		x = Permute(x)
		x = c.InvSubstitute(x)
	}

	x ^= subkeys[0]

	return x
}
