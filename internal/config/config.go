// Package config handles discovery and parsing of the environment matrix file.
//
// Three formats are supported, distinguished by file extension:
//   - TOML (envmatrix.toml) via github.com/BurntSushi/toml
//   - YAML (envmatrix.yaml / envmatrix.yml) via gopkg.in/yaml.v3
//   - JSON with comments (envmatrix.json) via github.com/tidwall/jsonc +
//     the standard encoding/json library
//
// All three parse into the same Matrix struct, so the rest of the program
// never cares which format the operator chose.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/kasugano/envmatrix/internal/model"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// candidateNames lists the config file names probed during discovery,
// in priority order. TOML is the primary format; YAML and JSON are
// alternatives for projects that standardize on them.
var candidateNames = []string{
	"envmatrix.toml",
	"envmatrix.yaml",
	"envmatrix.yml",
	"envmatrix.json",
}

// CandidateNames returns the config file names discovery probes, in
// priority order. Callers get a copy; the probe order is fixed.
func CandidateNames() []string {
	out := make([]string, len(candidateNames))
	copy(out, candidateNames)
	return out
}

// Matrix is the parsed environment matrix: a static mapping from
// environment name to its configuration, plus run-wide defaults.
//
// The struct carries tags for all three supported formats so a single
// schema definition serves TOML, YAML, and JSON alike.
type Matrix struct {
	// Default is the ordered list of environment names to run when the
	// operator names none. When empty, every declared environment runs
	// in name order.
	Default []string `toml:"default" yaml:"default" json:"default"`

	// BaseDir is the workspace root that commands run in and that the
	// check-only guard watches. Relative paths are resolved against the
	// directory containing the config file. Empty means that directory
	// itself.
	BaseDir string `toml:"basedir" yaml:"basedir" json:"basedir"`

	// SetEnv defines environment variables injected into every
	// environment's child processes. Per-environment setenv entries
	// override these.
	SetEnv map[string]string `toml:"setenv" yaml:"setenv" json:"setenv"`

	// PassEnv lists glob patterns of parent environment variables passed
	// through to every environment, in addition to the built-in baseline
	// (PATH, HOME, LANG, LC_*, TMPDIR, TERM, USER, CI).
	PassEnv []string `toml:"passenv" yaml:"passenv" json:"passenv"`

	// SkipMissing, when true, downgrades a missing runtime (absent host
	// executable or unreachable container engine) from an error to a
	// skip for every environment. Per-environment skipmissing overrides.
	SkipMissing bool `toml:"skipmissing" yaml:"skipmissing" json:"skipmissing"`

	// Envs maps each environment name to its configuration.
	Envs map[string]EnvConfig `toml:"env" yaml:"env" json:"env"`

	// Path is the absolute path of the loaded config file. Set by Load,
	// never read from the file itself.
	Path string `toml:"-" yaml:"-" json:"-"`
}

// EnvConfig is the declared configuration of a single environment.
type EnvConfig struct {
	// Description is a short human-readable summary shown by list/show.
	Description string `toml:"description" yaml:"description" json:"description"`

	// Commands is the ordered list of command strings. Each string is
	// split into an argv (no shell involved) and executed sequentially;
	// the first non-zero exit stops the environment.
	Commands []string `toml:"commands" yaml:"commands" json:"commands"`

	// Container is the image reference the commands run in. Empty means
	// host execution. A version matrix (py35/py36/py37) is expressed as
	// identical commands with different images.
	Container string `toml:"container" yaml:"container" json:"container"`

	// ChangeDir is the working directory for the commands, relative to
	// BaseDir. Empty means BaseDir itself.
	ChangeDir string `toml:"changedir" yaml:"changedir" json:"changedir"`

	// SetEnv defines per-environment variables, overriding the global
	// setenv entries of the same name.
	SetEnv map[string]string `toml:"setenv" yaml:"setenv" json:"setenv"`

	// PassEnv lists additional pass-through globs for this environment.
	PassEnv []string `toml:"passenv" yaml:"passenv" json:"passenv"`

	// CheckOnly marks the environment as non-mutating: the workspace is
	// snapshotted before and after, and any file change fails the
	// environment even when its commands all exit zero.
	CheckOnly bool `toml:"checkonly" yaml:"checkonly" json:"checkonly"`

	// Timeout is an optional per-environment wall-clock limit as a Go
	// duration string ("10m", "1h30m"). Empty means no limit.
	Timeout string `toml:"timeout" yaml:"timeout" json:"timeout"`

	// SkipMissing overrides the global skipmissing for this environment.
	// Nil means inherit.
	SkipMissing *bool `toml:"skipmissing" yaml:"skipmissing" json:"skipmissing"`
}

// Names returns the declared environment names in sorted order.
func (m *Matrix) Names() []string {
	names := make([]string, 0, len(m.Envs))
	for name := range m.Envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultList returns the environments that run when the operator names
// none: the declared default list, or every environment in name order
// when no default is declared.
func (m *Matrix) DefaultList() []string {
	if len(m.Default) > 0 {
		out := make([]string, len(m.Default))
		copy(out, m.Default)
		return out
	}
	return m.Names()
}

// AbsBaseDir returns the absolute workspace root: BaseDir resolved
// against the config file's directory.
func (m *Matrix) AbsBaseDir() string {
	configDir := filepath.Dir(m.Path)
	if m.BaseDir == "" {
		return configDir
	}
	if filepath.IsAbs(m.BaseDir) {
		return filepath.Clean(m.BaseDir)
	}
	return filepath.Join(configDir, m.BaseDir)
}

// SkipMissingFor reports whether a missing runtime is tolerated for the
// named environment, combining the global flag with the per-environment
// override.
func (m *Matrix) SkipMissingFor(name string) bool {
	env, ok := m.Envs[name]
	if !ok {
		return m.SkipMissing
	}
	if env.SkipMissing != nil {
		return *env.SkipMissing
	}
	return m.SkipMissing
}

// Load reads and parses the matrix file at the given path, dispatching
// on the file extension. The returned Matrix has Path set to the
// absolute path of the file.
//
// Returns a CLIError with ExitConfigError if the file does not exist or
// cannot be parsed.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("matrix config not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read matrix config: %w", err)
	}

	var m Matrix
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("invalid TOML in %s", path),
				err,
			)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("invalid YAML in %s", path),
				err,
			)
		}
	case ".json":
		// Strip // and /* */ comments and trailing commas before parsing.
		// Hand-maintained JSON config files frequently carry comments.
		cleanJSON := jsonc.ToJSON(data)
		if err := json.Unmarshal(cleanJSON, &m); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("invalid JSON in %s", path),
				err,
			)
		}
	default:
		return nil, model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("unsupported matrix config format: %s (expected .toml, .yaml, .yml, or .json)", path),
		)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	m.Path = abs

	return &m, nil
}

// Discover searches for a matrix config file starting in startDir and
// walking up parent directories to the filesystem root. Within each
// directory the candidate names are probed in priority order, so an
// envmatrix.toml always wins over an envmatrix.json beside it.
//
// Returns the absolute path of the first file found, or a CLIError with
// ExitConfigError if no candidate exists anywhere up the tree.
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory %s: %w", startDir, err)
	}

	for {
		for _, name := range candidateNames {
			candidate := filepath.Join(dir, name)
			// os.Stat checks existence without reading the contents.
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the filesystem root.
			break
		}
		dir = parent
	}

	return "", model.NewCLIError(
		model.ExitConfigError,
		fmt.Sprintf("no matrix config found in %s or any parent directory (looked for %v)", startDir, candidateNames),
	)
}

// LoadOrDiscover loads the matrix from an explicit path when given, or
// discovers one starting from startDir. This is the single entry point
// the CLI layer uses.
func LoadOrDiscover(explicitPath, startDir string) (*Matrix, error) {
	path := explicitPath
	if path == "" {
		discovered, err := Discover(startDir)
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return Load(path)
}
