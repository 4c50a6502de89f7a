package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// isWithinPath reports whether child is parent or lives below it. The test is
// component-wise, so /data does not contain /database.
func isWithinPath(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// spellUnder rewrites path, known to lie within root, so it starts with root
// exactly as registered. The OS watcher reports cleaned names, which turns
// ./echoes into echoes.
func spellUnder(root, path string) string {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || filepath.IsAbs(rel) {
		return path
	}
	if rel == "." {
		return root
	}
	separator := string(os.PathSeparator)
	return strings.TrimRight(root, separator) + separator + rel
}

// collectDirs returns root and every directory below it. Unreadable
// subtrees are skipped.
func collectDirs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	dirs := []string{}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
