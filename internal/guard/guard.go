// Package guard detects workspace modifications around check-only
// environments.
//
// A check-only environment (formatter --check, import-order check)
// promises not to alter any file. The guard enforces that promise by
// snapshotting the workspace before the environment runs and diffing
// after it finishes; any difference fails the environment regardless of
// the commands' exit codes.
//
// Two snapshot methods exist:
//   - git: inside a git work tree, `git status --porcelain` enumerates
//     the dirty set cheaply, and only dirty files are content-hashed.
//   - manifest: outside git (or without a git binary), every file is
//     walked and SHA-256 hashed.
//
// The method is picked once per guard and recorded so diffs interpret
// snapshots correctly.
package guard

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Method identifies how a guard snapshots the workspace.
type Method string

const (
	// MethodGit uses `git status --porcelain` plus content hashes of the
	// dirty set.
	MethodGit Method = "git"

	// MethodManifest walks the tree and hashes every file.
	MethodManifest Method = "manifest"
)

// Snapshot maps workspace-relative paths to fingerprints. For the git
// method only dirty paths appear and the fingerprint embeds the
// porcelain status; for the manifest method every file appears with a
// size+hash fingerprint.
type Snapshot map[string]string

// Guard watches one workspace directory.
type Guard struct {
	dir    string
	method Method
}

// New creates a guard for the given workspace root, choosing the git
// method when the directory is inside a git work tree and a git binary
// is available, and falling back to the manifest walk otherwise.
func New(dir string) *Guard {
	method := MethodManifest
	if insideGitWorkTree(dir) {
		method = MethodGit
	}
	return &Guard{dir: dir, method: method}
}

// Method reports which snapshot method the guard selected.
func (g *Guard) Method() Method {
	return g.method
}

// Snapshot records the current workspace state.
func (g *Guard) Snapshot() (Snapshot, error) {
	switch g.method {
	case MethodGit:
		return g.gitSnapshot()
	default:
		return manifestSnapshot(g.dir)
	}
}

// Diff compares two snapshots taken by this guard and returns
// human-readable change entries ("added: path", "modified: path",
// "deleted: path") sorted for deterministic output. An empty slice
// means the workspace is untouched.
func (g *Guard) Diff(before, after Snapshot) []string {
	var changes []string

	for path, fp := range after {
		old, ok := before[path]
		if ok && old == fp {
			continue
		}
		changes = append(changes, g.classify(path, fp, ok))
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			changes = append(changes, g.classifyGone(path))
		}
	}

	sort.Strings(changes)
	return changes
}

// classify labels a path that is new to the after-snapshot or changed
// its fingerprint. For the git method the porcelain status embedded in
// the fingerprint tells added from modified from deleted; appearing in
// the dirty set is not the same as appearing on disk.
func (g *Guard) classify(path, fingerprint string, existedBefore bool) string {
	if g.method == MethodGit {
		status, _, _ := strings.Cut(fingerprint, ":")
		switch {
		case strings.Contains(status, "D"):
			return "deleted: " + path
		case status == "??" && !existedBefore:
			return "added: " + path
		default:
			return "modified: " + path
		}
	}
	if existedBefore {
		return "modified: " + path
	}
	return "added: " + path
}

// classifyGone labels a path present before but absent after. For the
// manifest method the file is gone from disk; for the git method it
// merely left the dirty set, which still means its content changed
// (e.g. a tool rewrote an operator's in-progress edit back to the
// committed state).
func (g *Guard) classifyGone(path string) string {
	if g.method == MethodGit {
		return "modified: " + path
	}
	return "deleted: " + path
}

// gitSnapshot captures the dirty set via porcelain output. Each dirty
// path is fingerprinted as "<XY status>:<content hash>"; paths that no
// longer exist on disk (deletions) carry the status alone.
func (g *Guard) gitSnapshot() (Snapshot, error) {
	// --untracked-files=all lists files inside untracked directories
	// individually, so a tool dropping a file into a new directory is
	// still attributed precisely.
	out, err := runGit(g.dir, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot)
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if len(line) < 4 {
			continue
		}
		status := line[:2]
		path := line[3:]

		fp := status
		if sum, err := hashFile(filepath.Join(g.dir, path)); err == nil {
			fp += ":" + sum
		}
		snap[path] = fp
	}
	return snap, nil
}

// insideGitWorkTree reports whether dir lives in a git work tree and a
// usable git binary exists. Any git failure (no repo, no binary) means
// the manifest method is used instead.
func insideGitWorkTree(dir string) bool {
	out, err := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// runGit executes a git command in the given directory via the -C flag,
// capturing stdout and stderr separately. On failure the stderr output
// is folded into the returned error for diagnostics.
func runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 -- args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", fmt.Errorf("%s: %w", message, err)
	}

	return stdout.String(), nil
}

// hashFile returns the hex SHA-256 of a file's contents. Directories
// and unreadable paths return an error the callers treat as "no
// content fingerprint available".
func hashFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	return sha256File(path)
}
