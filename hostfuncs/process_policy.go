package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// EnvPermit reports whether a silo may set a gated environment variable.
type EnvPermit func(siloID, key string) bool

// EnvClass is how a process silo treats an environment variable.
type EnvClass int

const (
	// EnvAllowed variables pass through unchanged.
	EnvAllowed EnvClass = iota
	// EnvGated variables need an EnvPermit grant for the silo.
	EnvGated
	// EnvBlocked variables are dropped whatever the grants say.
	EnvBlocked
)

var (
	// Dynamic linker injection and shell start-up hooks.
	blockedEnvPrefixes = []string{"LD_", "DYLD_"}
	blockedEnv         = []string{"IFS", "LOCPATH", "BASH_ENV", "ENV"}

	// Search paths and start-up options of common runtimes.
	gatedEnv = []string{
		"PATH", "HOME", "CDPATH", "PS4",
		"PYTHONPATH", "PYTHONSTARTUP", "PYTHONHOME",
		"NODE_OPTIONS", "NODE_PATH",
		"RUBYLIB", "PERL5LIB", "LUA_PATH", "LUA_CPATH",
	}
)

// ClassifyEnv returns the class of key, compared case-insensitively.
func ClassifyEnv(key string) EnvClass {
	key = strings.ToUpper(key)
	for _, p := range blockedEnvPrefixes {
		if strings.HasPrefix(key, p) {
			return EnvBlocked
		}
	}
	switch {
	case slices.Contains(blockedEnv, key):
		return EnvBlocked
	case slices.Contains(gatedEnv, key):
		return EnvGated
	}
	return EnvAllowed
}

// SanitizeEnv drops malformed and blocked entries from env, and gated ones
// permit does not grant to siloID.
func SanitizeEnv(ctx context.Context, env []string, siloID string, permit EnvPermit) []string {
	if len(env) == 0 {
		return env
	}
	kept := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			slog.WarnContext(ctx, "process: malformed environment entry dropped", "silo", siloID)
			continue
		}
		switch ClassifyEnv(key) {
		case EnvBlocked:
			slog.WarnContext(ctx, "process: environment variable blocked", "silo", siloID, "key", key)
			continue
		case EnvGated:
			if permit == nil || !permit(siloID, strings.ToUpper(key)) {
				slog.WarnContext(ctx, "process: environment variable not granted", "silo", siloID, "key", key)
				continue
			}
		}
		kept = append(kept, kv)
	}
	return kept
}

// CommandRisk classifies a command line a guest asks to run.
type CommandRisk int

const (
	// RiskNone is an ordinary program invocation.
	RiskNone CommandRisk = iota
	// RiskShell runs a shell with arguments.
	RiskShell
	// RiskInlineCode passes source code to an interpreter.
	RiskInlineCode
	// RiskEvalFlag passes an eval-style flag to an unknown program.
	RiskEvalFlag
)

func (r CommandRisk) String() string {
	switch r {
	case RiskShell:
		return "shell"
	case RiskInlineCode:
		return "interpreter code execution"
	case RiskEvalFlag:
		return "suspicious execution"
	}
	return "safe"
}

var shells = []string{"sh", "bash", "dash", "zsh", "ksh", "csh", "tcsh", "fish"}

// Inline-code flags by interpreter family. Versioned binaries such as
// python3.12 or lua5.4 share their family's flags.
var inlineCodeFlags = map[string][]string{
	"python": {"-c", "--command"},
	"perl":   {"-e", "-E"},
	"ruby":   {"-e"},
	"irb":    {"-e"},
	"node":   {"-e", "--eval"},
	"nodejs": {"-e", "--eval"},
	"php":    {"-r"},
	"lua":    {"-e"},
	"tclsh":  {"-c"},
	"wish":   {"-c"},
}

var awks = []string{"awk", "gawk", "mawk", "nawk"}

var evalFlags = []string{"-c", "-e", "-E", "-r", "--eval", "--command"}

var versionSuffix = regexp.MustCompile(`[0-9.]+$`)

// interpreterFamily maps a binary path to the key of inlineCodeFlags.
func interpreterFamily(command string) string {
	base := filepath.Base(command)
	if _, ok := inlineCodeFlags[base]; ok {
		return base
	}
	return versionSuffix.ReplaceAllString(base, "")
}

// AssessCommand returns the risk of running command with args.
func AssessCommand(command string, args []string) CommandRisk {
	base := filepath.Base(command)
	if slices.Contains(shells, base) && len(args) > 0 {
		return RiskShell
	}
	if slices.Contains(awks, base) && slices.ContainsFunc(args, isAwkProgramBlock) {
		return RiskInlineCode
	}
	if flags, ok := inlineCodeFlags[interpreterFamily(command)]; ok {
		if slices.ContainsFunc(args, func(a string) bool { return hasFlag(a, flags) }) {
			return RiskInlineCode
		}
		return RiskNone
	}
	if slices.ContainsFunc(args, func(a string) bool { return slices.Contains(evalFlags, a) }) {
		return RiskEvalFlag
	}
	return RiskNone
}

func isAwkProgramBlock(arg string) bool {
	arg = strings.TrimSpace(arg)
	for _, kw := range []string{"BEGIN", "END"} {
		if rest, ok := strings.CutPrefix(arg, kw); ok && strings.HasPrefix(strings.TrimSpace(rest), "{") {
			return true
		}
	}
	return false
}

func hasFlag(arg string, flags []string) bool {
	for _, f := range flags {
		if arg == f || strings.HasPrefix(arg, f+"=") {
			return true
		}
	}
	return false
}

// checkCommand refuses risky command lines unless allowShell is set.
func checkCommand(command string, args []string, allowShell bool) error {
	if allowShell {
		return nil
	}
	if risk := AssessCommand(command, args); risk != RiskNone {
		return fmt.Errorf("refusing %s: %s", risk, command)
	}
	return nil
}
