package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Namespaces returns the names of the immediate subdirectories of root in
// lexicographic order. Symlinks to directories count; hidden directories
// and dangling links are skipped.
func Namespaces(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read prompts root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		mode, err := entryMode(filepath.Join(root, e.Name()), e)
		if err != nil || !mode.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Files returns the paths of the regular files directly inside dir in
// lexicographic order, following symlinks. Dotfiles and subdirectories are
// skipped; a dangling link is an error, like any unreadable prompt file.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read namespace directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		mode, err := entryMode(path, e)
		if err != nil {
			return nil, err
		}
		if !mode.IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// entryMode is the type of e, resolved through a symlink.
func entryMode(path string, e fs.DirEntry) (fs.FileMode, error) {
	if e.Type()&fs.ModeSymlink == 0 {
		return e.Type(), nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", path, err)
	}
	return fi.Mode(), nil
}
