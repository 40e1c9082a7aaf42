// resolve.go turns a declared environment into its exact runtime form:
// argv lists after placeholder substitution, the absolute working
// directory, and the hermetic child environment.
//
// Resolution is the contract behind `envmatrix show` and `run --dry-run`:
// what Resolve returns is exactly what executes, token for token. Command
// strings are split with shell-style word rules but NO shell ever runs
// them; the argv goes straight to the process or container.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kasugano/envmatrix/internal/model"
	shellwords "github.com/mattn/go-shellwords"
)

// ResolvedEnv is the immutable runtime form of one environment. It is
// built once by Resolve and never modified afterwards; the runner only
// reads it.
type ResolvedEnv struct {
	// Name is the environment name as declared in the matrix.
	Name string

	// Description is the declared human-readable summary.
	Description string

	// Mode is host or container, derived from whether Image is set.
	Mode model.ExecMode

	// Image is the container image reference. Empty in host mode.
	Image string

	// CheckOnly marks the environment as non-mutating (guard enforced).
	CheckOnly bool

	// SkipMissing reports whether a missing runtime is tolerated,
	// with the per-environment override already applied.
	SkipMissing bool

	// Timeout is the parsed per-environment limit. Zero means none.
	Timeout time.Duration

	// ConfigPath is the absolute path of the matrix file that declared
	// this environment.
	ConfigPath string

	// BaseDir is the absolute workspace root.
	BaseDir string

	// ChangeDir is the cleaned declared working directory relative to
	// BaseDir. Empty when the environment runs in BaseDir itself.
	ChangeDir string

	// WorkDir is the absolute working directory (BaseDir + ChangeDir).
	WorkDir string

	// Commands holds one argv per declared command, in order, with all
	// placeholders substituted.
	Commands [][]string

	// Env is the complete child environment as sorted KEY=value pairs.
	Env []string
}

// baselineVars is the allowlist of parent environment variables every
// child process inherits without any passenv configuration. The child
// environment is hermetic: everything else must be passed explicitly.
var baselineVars = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"LANG":   true,
	"TMPDIR": true,
	"TERM":   true,
	"USER":   true,
	"CI":     true,
}

// envLookupRegex matches {env:VAR} and {env:VAR:default} placeholders.
// Group 1 is the variable name, group 3 the default (present only when
// the second colon is).
var envLookupRegex = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// Resolve produces the runtime form of the named environment, splicing
// posargs (the CLI arguments after "--") into {posargs} placeholders.
// The parent environment is read from the current process.
//
// Returns a CLIError with ExitEnvNotFound for an undeclared name, or
// with ExitConfigError when substitution fails (bad pass-through glob,
// unset {env:VAR} without a default, unparseable command string).
func Resolve(m *Matrix, name string, posargs []string) (*ResolvedEnv, error) {
	return resolve(m, name, posargs, os.Environ())
}

// resolve is the testable core of Resolve with the parent environment
// passed explicitly.
func resolve(m *Matrix, name string, posargs, parentEnviron []string) (*ResolvedEnv, error) {
	env, ok := m.Envs[name]
	if !ok {
		return nil, model.NewCLIError(
			model.ExitEnvNotFound,
			fmt.Sprintf("environment %q is not declared in %s (available: %s)",
				name, m.Path, strings.Join(m.Names(), ", ")),
		)
	}

	baseDir := m.AbsBaseDir()
	changeDir := ""
	workDir := baseDir
	if env.ChangeDir != "" {
		changeDir = filepath.Clean(env.ChangeDir)
		workDir = filepath.Join(baseDir, changeDir)
	}

	// Step 1: build the hermetic child environment. Command and setenv
	// substitution may reference it via {env:VAR}, so it comes first.
	childEnv, err := buildChildEnv(m, env, name, parentEnviron, baseDir, workDir)
	if err != nil {
		return nil, err
	}

	sub := &substitution{
		envName:   name,
		baseDir:   baseDir,
		changeDir: workDir,
		posargs:   posargs,
		lookup:    childEnv,
	}

	// Step 2: split each command string into an argv and substitute
	// placeholders token by token. A whole-token {posargs} splices the
	// positional arguments as separate argv entries; inside a larger
	// token they join with spaces.
	commands := make([][]string, 0, len(env.Commands))
	for i, cmdStr := range env.Commands {
		tokens, err := shellwords.Parse(cmdStr)
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("environment %q: cannot parse command %d (%q)", name, i+1, cmdStr),
				err,
			)
		}
		if len(tokens) == 0 {
			return nil, model.NewCLIError(
				model.ExitConfigError,
				fmt.Sprintf("environment %q: command %d is empty after parsing", name, i+1),
			)
		}

		argv := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if tok == "{posargs}" {
				argv = append(argv, posargs...)
				continue
			}
			expanded, err := sub.expand(tok)
			if err != nil {
				return nil, model.WrapCLIError(
					model.ExitConfigError,
					fmt.Sprintf("environment %q: command %d (%q)", name, i+1, cmdStr),
					err,
				)
			}
			argv = append(argv, expanded)
		}
		if len(argv) == 0 {
			// A command consisting solely of {posargs} with none given.
			return nil, model.NewCLIError(
				model.ExitConfigError,
				fmt.Sprintf("environment %q: command %d resolves to an empty argv", name, i+1),
			)
		}
		commands = append(commands, argv)
	}

	timeout := time.Duration(0)
	if env.Timeout != "" {
		// Validation already checked the format; parse errors here mean
		// Resolve was called on an unvalidated matrix.
		timeout, err = time.ParseDuration(env.Timeout)
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("environment %q: invalid timeout %q", name, env.Timeout),
				err,
			)
		}
	}

	mode := model.ModeHost
	if env.Container != "" {
		mode = model.ModeContainer
	}

	return &ResolvedEnv{
		Name:        name,
		Description: env.Description,
		Mode:        mode,
		Image:       env.Container,
		CheckOnly:   env.CheckOnly,
		SkipMissing: m.SkipMissingFor(name),
		Timeout:     timeout,
		ConfigPath:  m.Path,
		BaseDir:     baseDir,
		ChangeDir:   changeDir,
		WorkDir:     workDir,
		Commands:    commands,
		Env:         flattenEnv(childEnv),
	}, nil
}

// substitution carries the values available to placeholder expansion
// for one environment.
type substitution struct {
	envName   string
	baseDir   string
	changeDir string
	posargs   []string
	lookup    map[string]string
}

// expand substitutes all placeholders inside a single token:
// {envname}, {basedir}, {changedir}, inline {posargs}, and
// {env:VAR} / {env:VAR:default}. Unknown {...} sequences pass through
// literally so tool-native brace syntax survives.
func (s *substitution) expand(token string) (string, error) {
	// Resolve {env:VAR} lookups first; their payload may contain colons
	// but never braces, so the regex cannot collide with the simple
	// placeholders below.
	var lookupErr error
	token = envLookupRegex.ReplaceAllStringFunc(token, func(match string) string {
		groups := envLookupRegex.FindStringSubmatch(match)
		varName := groups[1]
		if val, ok := s.lookup[varName]; ok {
			return val
		}
		if groups[2] != "" {
			// A default was given (possibly empty: "{env:VAR:}").
			return groups[3]
		}
		if lookupErr == nil {
			lookupErr = fmt.Errorf("{env:%s}: variable is not set and no default given", varName)
		}
		return ""
	})
	if lookupErr != nil {
		return "", lookupErr
	}

	token = strings.ReplaceAll(token, "{envname}", s.envName)
	token = strings.ReplaceAll(token, "{basedir}", s.baseDir)
	token = strings.ReplaceAll(token, "{changedir}", s.changeDir)
	token = strings.ReplaceAll(token, "{posargs}", strings.Join(s.posargs, " "))

	return token, nil
}

// buildChildEnv computes the hermetic child environment for one
// environment: the baseline allowlist, plus pass-through globs, plus
// setenv (global overridden by per-env), plus ENVMATRIX_ENV.
func buildChildEnv(m *Matrix, env EnvConfig, name string, parentEnviron []string, baseDir, workDir string) (map[string]string, error) {
	parent := parseEnviron(parentEnviron)
	out := make(map[string]string)

	// Baseline: the minimal set a well-behaved tool needs. LC_* carries
	// locale details alongside LANG.
	for key, val := range parent {
		if baselineVars[key] || strings.HasPrefix(key, "LC_") {
			out[key] = val
		}
	}

	// Pass-through globs, global then per-env. path.Match gives the
	// familiar *, ?, and [] forms; variable names never contain slashes
	// so the path semantics are irrelevant.
	globs := append(append([]string{}, m.PassEnv...), env.PassEnv...)
	for _, glob := range globs {
		for key, val := range parent {
			matched, err := path.Match(glob, key)
			if err != nil {
				return nil, model.WrapCLIError(
					model.ExitConfigError,
					fmt.Sprintf("environment %q: invalid passenv pattern %q", name, glob),
					err,
				)
			}
			if matched {
				out[key] = val
			}
		}
	}

	// setenv values may reference {envname}, {basedir}, {changedir},
	// and {env:VAR}. Lookups see the inherited variables only (baseline
	// and pass-through); cross-references between setenv entries are not
	// supported, so the snapshot keeps the behavior order-independent.
	inherited := make(map[string]string, len(out))
	for k, v := range out {
		inherited[k] = v
	}
	sub := &substitution{
		envName:   name,
		baseDir:   baseDir,
		changeDir: workDir,
		lookup:    inherited,
	}
	apply := func(vars map[string]string) error {
		// Sorted application keeps error reporting deterministic.
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			expanded, err := sub.expand(vars[k])
			if err != nil {
				return model.WrapCLIError(
					model.ExitConfigError,
					fmt.Sprintf("environment %q: setenv %s", name, k),
					err,
				)
			}
			out[k] = expanded
		}
		return nil
	}
	if err := apply(m.SetEnv); err != nil {
		return nil, err
	}
	if err := apply(env.SetEnv); err != nil {
		return nil, err
	}

	// The marker variable is set last so tools can always identify
	// which environment invoked them.
	out["ENVMATRIX_ENV"] = name

	return out, nil
}

// SelectEnvs expands the operator's environment arguments into the
// ordered list of names to run. Arguments may contain comma-separated
// groups ("py35,flake8"); no arguments selects the default list.
// Duplicates keep their first position.
//
// Returns a CLIError with ExitEnvNotFound naming the first undeclared
// environment.
func SelectEnvs(m *Matrix, args []string) ([]string, error) {
	var requested []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				requested = append(requested, part)
			}
		}
	}

	if len(requested) == 0 {
		requested = m.DefaultList()
	}

	seen := make(map[string]bool, len(requested))
	selected := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := m.Envs[name]; !ok {
			return nil, model.NewCLIError(
				model.ExitEnvNotFound,
				fmt.Sprintf("environment %q is not declared in %s (available: %s)",
					name, m.Path, strings.Join(m.Names(), ", ")),
			)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}

	return selected, nil
}

// parseEnviron converts KEY=value pairs into a map. Later entries win,
// matching os.Getenv behavior on duplicate keys.
func parseEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			out[kv[:idx]] = kv[idx+1:]
		}
	}
	return out
}

// flattenEnv converts an environment map back into sorted KEY=value
// pairs. Sorting keeps show/dry-run output and child process spawning
// deterministic.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
