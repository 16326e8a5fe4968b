// Command keyfinder runs the differential key-recovery attack against a
// code-book produced by cmd/generator (or any file matching its
// format), for a given S-box.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/michalmalik/keyfinder/internal/codebook"
	"github.com/michalmalik/keyfinder/internal/ddt"
	"github.com/michalmalik/keyfinder/internal/exitcode"
	"github.com/michalmalik/keyfinder/internal/recovery"
	"github.com/michalmalik/keyfinder/internal/spn"

	"github.com/michalmalik/keyfinder/internal/diagnostics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "keyfinder"
	app.Usage = "recover the key of a toy substitution-permutation network by differential cryptanalysis"
	app.ArgsUsage = "<ciphertext_file> <sbox>"
	app.Version = "1.0.0"
	// -v is our own verbosity flag; without this, cli.App.Setup appends
	// its built-in VersionFlag ("version, v") and the flag.FlagSet build
	// panics on the "v" collision.
	app.HideVersion = true

	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "v", Usage: "verbosity level, 0 to 3 (use -v=N)"},
		cli.IntFlag{Name: "t", Value: 1, Usage: "number of worker goroutines for middle-round scoring"},
		cli.BoolFlag{Name: "heur3", Usage: "also score three-active-S-box patterns"},
		cli.BoolFlag{Name: "heur4", Usage: "also score four-active-S-box patterns"},
		cli.BoolFlag{Name: "f", Usage: "recover only the first subkey K[0]"},
		cli.BoolFlag{Name: "l", Usage: "recover only the last subkey K[Nr]"},
		cli.StringFlag{Name: "backward", Usage: "recover the subkey preceding a comma-separated suffix of known subkeys, most recently recovered first"},
		cli.BoolFlag{Name: "a", Usage: "recover the entire key (default mode)"},
		cli.StringFlag{Name: "test-key", Usage: "check a 20 hex digit key against the code-book instead of recovering one"},
		cli.BoolFlag{Name: "d", Usage: "print the difference-distribution table and exit"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if code, ok := err.(exitError); ok {
			os.Exit(code.code)
		}
		os.Exit(exitcode.Software)
	}
}

// exitError lets Action return an error carrying the process exit code
// main should use, without main itself knowing about every failure mode.
type exitError struct {
	code int
	error
}

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, error: err}
}

func run(c *cli.Context) error {
	log := diagnostics.New(c.Int("v"))

	if c.NArg() != 2 {
		cli.ShowAppHelp(c)
		return withExit(exitcode.Usage, errors.New("expected <ciphertext_file> <sbox>"))
	}

	ctPath := c.Args().Get(0)
	sboxArg := c.Args().Get(1)

	sbox, err := parseSBoxArg(sboxArg)
	if err != nil {
		return withExit(exitcode.Usage, errors.Wrap(err, "bad <sbox> argument"))
	}

	cipher, err := spn.New(sbox)
	if err != nil {
		return withExit(exitcode.Usage, errors.Wrap(err, "invalid S-box"))
	}

	table := ddt.New(cipher.SBox())

	if c.Bool("d") {
		printDDT(table)
		return nil
	}

	book, err := codebook.Load(ctPath)
	if err != nil {
		return withExit(exitcode.DataErr, errors.Wrap(err, "loading code-book"))
	}

	if testKey := c.String("test-key"); testKey != "" {
		return runTestKey(cipher, book, testKey)
	}

	modes := []bool{c.Bool("f"), c.Bool("l"), c.String("backward") != "", c.Bool("a")}
	active := 0
	for _, m := range modes {
		if m {
			active++
		}
	}
	if active > 1 {
		return withExit(exitcode.Usage, errors.New("only one of -f, -l, --backward, -a may be given"))
	}

	cfg := recovery.Config{
		Threads: c.Int("t"),
		Heur3:   c.Bool("heur3"),
		Heur4:   c.Bool("heur4"),
		Verbose: c.Int("v"),
	}
	engine := recovery.New(cipher, table, book, cfg, log.WithField("component", "recovery"))

	switch {
	case c.Bool("f"):
		return runTimed(log, "recover-first", func() error {
			k, err := engine.RecoverFirstSubkey()
			if err != nil {
				return err
			}
			fmt.Printf("K[0] = %04x\n", k)
			return nil
		})
	case c.Bool("l"):
		return runTimed(log, "recover-last", func() error {
			k, err := engine.RecoverLastSubkey()
			if err != nil {
				return err
			}
			fmt.Printf("K[%d] = %04x\n", spn.Nr, k)
			return nil
		})
	case c.String("backward") != "":
		return runBackward(log, engine, c.String("backward"))
	default:
		// -a always scores three- and four-active-S-box patterns too,
		// regardless of --heur3/--heur4: recovering the middle subkeys
		// needs the extra accuracy, or the K[1] brute-force step at the
		// end runs against a wrong K[2]/K[3] and exhausts.
		allCfg := cfg
		allCfg.Heur3 = true
		allCfg.Heur4 = true
		allEngine := recovery.New(cipher, table, book, allCfg, log.WithField("component", "recovery"))

		return runTimed(log, "recover-all", func() error {
			subkeys, err := allEngine.RecoverAll()
			if err != nil {
				return err
			}
			printSubkeys(subkeys)
			return nil
		})
	}
}

func printSubkeys(subkeys [spn.NumSubkeys]uint16) {
	for i, k := range subkeys {
		fmt.Printf("K[%d] = %04x\n", i, k)
	}
}

func printDDT(table *ddt.Table) {
	for dx := 0; dx < 16; dx++ {
		for dy := 0; dy < 16; dy++ {
			fmt.Printf("%2d ", table.D[dx][dy])
		}
		fmt.Println()
	}
}

func runTestKey(cipher *spn.Cipher, book *codebook.Book, keyHex string) error {
	subkeys, err := spn.ParseKey(keyHex)
	if err != nil {
		return withExit(exitcode.Usage, errors.Wrap(err, "bad --test-key argument"))
	}
	cipher.SetSubkeys(subkeys)

	for pt := 0; pt < codebook.Size; pt++ {
		if cipher.Encrypt(uint16(pt)) != book.CT[pt] {
			fmt.Println("key does not match the code-book")
			return withExit(exitcode.DataErr, errors.New("test-key mismatch"))
		}
	}

	fmt.Println("key matches the code-book")
	return nil
}

// runBackward recovers the subkey one position below a supplied,
// comma-separated suffix of already-known subkeys, most recently
// recovered (highest index) first -- e.g. "aaaa,bbbb" for K[Nr],K[Nr-1]
// recovers K[Nr-2].
func runBackward(log *logrus.Logger, engine *recovery.Engine, arg string) error {
	parts := strings.Split(arg, ",")

	var known [spn.NumSubkeys]uint16
	wantedIndex := spn.Nr - len(parts)
	if wantedIndex <= 1 {
		return withExit(exitcode.Usage, errors.Errorf("--backward with %d known subkeys would recover K[%d], only K[2] and K[3] are supported this way", len(parts), wantedIndex))
	}

	for i, p := range parts {
		var v uint16
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%04x", &v); err != nil {
			return withExit(exitcode.Usage, errors.Wrapf(err, "bad --backward subkey %q", p))
		}
		known[spn.Nr-i] = v
	}

	return runTimed(log, "recover-backward", func() error {
		k, err := engine.RecoverRoundSubkey(wantedIndex, known)
		if err != nil {
			return err
		}
		fmt.Printf("K[%d] = %04x\n", wantedIndex, k)
		return nil
	})
}

func runTimed(log *logrus.Logger, phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	log.WithFields(logrus.Fields{"phase": phase, "elapsed": time.Since(start)}).Info("phase complete")

	if rerr, ok := err.(*recovery.Error); ok {
		switch rerr.Reason {
		case recovery.ReasonExhausted:
			return withExit(exitcode.Software, rerr)
		default:
			return withExit(exitcode.Software, rerr)
		}
	}
	return err
}

// parseSBoxArg parses sixteen space-separated decimals, per the
// original tool's -sbox argument. It intentionally does not validate
// they form a permutation -- spn.New does that.
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
