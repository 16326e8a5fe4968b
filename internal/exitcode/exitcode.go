// Package exitcode centralizes the process exit statuses both
// command-line tools use, so a caller scripting around them gets a
// stable, documented contract instead of a bare "exit 1".
package exitcode

const (
	// Success is the same as EXIT_SUCCESS in C.
	Success = iota

	// Usage means the arguments passed on the command line were
	// malformed; not the engine's fault.
	Usage

	// DataErr means an input file was well-formed as a file but failed
	// a domain check: a bad code-book line count, a cipher self-check
	// failure during generation.
	DataErr

	// Software means an internal invariant the engine assumes always
	// holds did not, or an exhaustive search space came up empty.
	// Probably a bug, or a code-book that doesn't match the S-box.
	Software
)
