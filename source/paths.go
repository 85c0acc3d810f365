package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandPaths evaluates the patterns relative to workingDir and returns the
// regular files they match, sorted and without duplicates. Patterns may use
// "doublestar" globs such as `build/**/*.ipa`; other entries are taken as is.
func ExpandPaths(workingDir string, patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string

	for _, pattern := range patterns {
		var candidates []string
		if strings.ContainsAny(pattern, "*?[{") {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid pattern: %s", pattern)
			}
			matches, err := doublestar.Glob(os.DirFS(workingDir), pattern)
			if err != nil {
				return nil, fmt.Errorf("evaluate pattern %s: %w", pattern, err)
			}
			for _, match := range matches {
				candidates = append(candidates, filepath.Join(workingDir, filepath.FromSlash(match)))
			}
		} else if filepath.IsAbs(pattern) {
			candidates = []string{pattern}
		} else {
			candidates = []string{filepath.Join(workingDir, pattern)}
		}

		for _, path := range candidates {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}
