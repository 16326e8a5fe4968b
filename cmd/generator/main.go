// Command generator produces a code-book file for cmd/keyfinder: it
// encrypts every one of the 65536 plaintexts under a given S-box and
// key, checking that decryption inverts every one of them, and writes
// the ciphertexts one per line in ascending plaintext order.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/michalmalik/keyfinder/internal/codebook"
	"github.com/michalmalik/keyfinder/internal/exitcode"
	"github.com/michalmalik/keyfinder/internal/spn"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <sbox> <key> <output_file>\n", os.Args[0])
		os.Exit(exitcode.Usage)
	}

	sboxArg, keyArg, outPath := os.Args[1], os.Args[2], os.Args[3]

	sbox, err := parseSBoxArg(sboxArg)
	if err != nil {
		log.WithError(err).Error("bad sbox argument")
		os.Exit(exitcode.Usage)
	}

	cipher, err := spn.New(sbox)
	if err != nil {
		log.WithError(err).Error("invalid S-box")
		os.Exit(exitcode.Usage)
	}

	subkeys, err := spn.ParseKey(keyArg)
	if err != nil {
		log.WithError(err).Error("bad key argument")
		os.Exit(exitcode.Usage)
	}
	cipher.SetSubkeys(subkeys)

	if err := generate(cipher, outPath); err != nil {
		log.WithError(err).Error("generation failed")
		os.Exit(exitcode.DataErr)
	}

	log.WithField("path", outPath).Info("code-book written")
}

// generate encrypts every plaintext, verifies decryption inverts it,
// and writes the result. It stops at the first mismatch; the lines
// written before it are still flushed to the file.
func generate(cipher *spn.Cipher, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", outPath)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for pt := 0; pt < codebook.Size; pt++ {
		ct := cipher.Encrypt(uint16(pt))
		if cipher.Decrypt(ct) != uint16(pt) {
			return errors.Errorf("self-check failed: decrypt(encrypt(%04x)) != %04x", pt, pt)
		}

		if _, err := fmt.Fprintf(w, "%04x\n", ct); err != nil {
			return errors.Wrap(err, "writing code-book")
		}
	}

	return nil
}

func parseSBoxArg(arg string) ([16]int, error) {
	var sbox [16]int
	fields := strings.Fields(arg)
	if len(fields) != 16 {
		return sbox, errors.Errorf("expected 16 space-separated decimals, got %d", len(fields))
	}

	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return sbox, errors.Wrapf(err, "value %d", i)
		}
		sbox[i] = v
	}

	return sbox, nil
}
