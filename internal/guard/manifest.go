// manifest.go implements the snapshot fallback for workspaces outside
// git: a full walk of the tree with a size+SHA-256 fingerprint per file.
// Slower than the git method on large trees, but it needs nothing
// beyond the filesystem.
package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// vcsMetaDirs are directory names skipped during the manifest walk.
// Version-control metadata churns on its own (index files, locks) and
// is never what a check-only tool is accused of touching.
var vcsMetaDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// manifestSnapshot walks the workspace and fingerprints every regular
// file as "<size>:<sha256>". Symlinks are skipped: following them could
// leave the workspace, and their targets' contents are not this
// workspace's responsibility.
func manifestSnapshot(dir string) (Snapshot, error) {
	snap := make(Snapshot)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error walking workspace at %s: %w", path, walkErr)
		}

		if d.IsDir() {
			if vcsMetaDirs[d.Name()] && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		sum, err := sha256File(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}

		snap[rel] = fmt.Sprintf("%d:%s", info.Size(), sum)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// sha256File streams a file through SHA-256 and returns the hex digest.
// io.Copy keeps memory flat regardless of file size.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
