// Package discovery finds submissions in a submissions directory and the
// Python sources inside one submission.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Submission is one candidate repository found under a submissions directory.
type Submission struct {
	Name string // directory name
	Dir  string // absolute path
}

// skippedDirs are never descended into when collecting sources.
var skippedDirs = map[string]bool{
	"venv":          true,
	"env":           true,
	"__pycache__":   true,
	"node_modules":  true,
	"site-packages": true,
	"build":         true,
	"dist":          true,
}

// Submissions lists the immediate subdirectories of dir, sorted by name.
// Hidden directories are skipped.
func Submissions(dir string) ([]Submission, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving submissions path: %w", err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("reading submissions directory: %w", err)
	}

	var subs []Submission
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		subs = append(subs, Submission{Name: e.Name(), Dir: filepath.Join(absDir, e.Name())})
	}
	slices.SortFunc(subs, func(a, b Submission) int { return strings.Compare(a.Name, b.Name) })
	return subs, nil
}

// PythonSources walks root and returns the slash-separated relative paths of
// every .py file that could hold an entry point, sorted lexically. Test
// modules, packaging scripts, hidden directories and virtualenv-like
// directories are skipped.
func PythonSources(root string) ([]string, error) {
	return walk(root, isTestDir, func(name string) bool {
		return filepath.Ext(name) == ".py" && !IsExcludedFile(name)
	})
}

// ContentFiles returns every regular file under root that belongs to the
// submission itself, sorted lexically. Hidden and virtualenv-like
// directories are skipped. It is used to fingerprint a submission.
func ContentFiles(root string) ([]string, error) {
	return walk(root, func(string) bool { return false }, func(name string) bool {
		return !strings.HasPrefix(name, ".") && filepath.Ext(name) != ".pyc"
	})
}

func walk(root string, skipDir func(string) bool, keepFile func(string) bool) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		name := d.Name()
		if d.IsDir() {
			if path != absRoot && (strings.HasPrefix(name, ".") || skippedDirs[name] || skipDir(name)) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !keepFile(name) {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", absRoot, err)
	}

	slices.Sort(files)
	return files, nil
}

// IsExcludedFile reports whether a Python file name is a test module or a
// packaging/config script rather than library code.
func IsExcludedFile(name string) bool {
	switch name {
	case "setup.py", "conftest.py", "noxfile.py":
		return true
	}
	return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.py")
}

func isTestDir(name string) bool {
	return name == "tests" || name == "test"
}
