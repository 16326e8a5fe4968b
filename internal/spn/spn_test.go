package spn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var referenceSBox = [16]int{6, 10, 11, 15, 12, 2, 13, 5, 3, 8, 0, 1, 14, 7, 4, 9}

func newReferenceCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(referenceSBox)
	require.NoError(t, err)
	return c
}

func TestNewRejectsNonPermutation(t *testing.T) {
	bad := [16]int{0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	_, err := New(bad)
	require.Error(t, err)
}

func TestSubstituteInversion(t *testing.T) {
	c := newReferenceCipher(t)
	for n := uint16(0); n <= 0xf; n++ {
		require.Equal(t, n, c.InvSubstitute(c.Substitute(n)))
		require.Equal(t, n, c.Substitute(c.InvSubstitute(n)))
	}
}

func TestPermuteInvolution(t *testing.T) {
	for x := 0; x <= 0xffff; x += 137 {
		require.Equal(t, uint16(x), Permute(Permute(uint16(x))))
	}
}

func TestParseKey(t *testing.T) {
	subkeys, err := ParseKey("aaaabbbbccccddddeeee")
	require.NoError(t, err)
	require.Equal(t, [NumSubkeys]uint16{0xaaaa, 0xbbbb, 0xcccc, 0xdddd, 0xeeee}, subkeys)
}

func TestParseKeyRejectsBadLength(t *testing.T) {
	_, err := ParseKey("aaaabbbb")
	require.Error(t, err)
}

func TestParseKeyRejectsNonHex(t *testing.T) {
	_, err := ParseKey("aaaabbbbccccddddeeeg")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newReferenceCipher(t)
	subkeys, err := ParseKey("aaaabbbbccccddddeeee")
	require.NoError(t, err)
	c.SetSubkeys(subkeys)

	for x := 0; x <= 0xffff; x++ {
		ct := c.Encrypt(uint16(x))
		require.Equal(t, uint16(x), c.Decrypt(ct))
	}
}

func TestEncryptZeroFixpoint(t *testing.T) {
	c := newReferenceCipher(t)
	subkeys, err := ParseKey("aaaabbbbccccddddeeee")
	require.NoError(t, err)
	c.SetSubkeys(subkeys)

	x := uint16(0) ^ subkeys[0]
	for r := 1; r < Nr; r++ {
		x = c.Substitute(x)
		x = Permute(x)
		x ^= subkeys[r]
	}
	x = c.Substitute(x)
	x ^= subkeys[Nr]

	require.Equal(t, x, c.Encrypt(0))
	require.Equal(t, uint16(0), c.Decrypt(c.Encrypt(0)))
}

func TestDecryptWithMatchesDecrypt(t *testing.T) {
	c := newReferenceCipher(t)
	subkeys, err := ParseKey("f993c0f7875a80a645cb")
	require.NoError(t, err)
	c.SetSubkeys(subkeys)

	ct := c.Encrypt(0x1234)
	require.Equal(t, c.Decrypt(ct), c.DecryptWith(ct, subkeys))
}
