package cli

import "strings"

// modeFlags lets a mode be given as a flag, e.g. "--send" for "send".
var modeFlags = map[string]string{
	"-s":        "send",
	"--send":    "send",
	"-r":        "receive",
	"--receive": "receive",
}

// valueFlags take the following argument as their value.
var valueFlags = map[string]bool{
	"-m":          true,
	"--message":   true,
	"-q":          true,
	"--queuename": true,
	"-c":          true,
	"--config":    true,
	"--log-level": true,
}

// normalizeArgs rewrites the first mode flag into its subcommand name so that
// "--send --message hi" parses like "send --message hi".
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)

	expectValue := false
	for i, arg := range out {
		if expectValue {
			expectValue = false
			continue
		}
		if mode, ok := modeFlags[arg]; ok {
			out[i] = mode
			break
		}
		if valueFlags[arg] {
			expectValue = true
			continue
		}
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			// A subcommand or positional argument is already there
			break
		}
	}
	return out
}
