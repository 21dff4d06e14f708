// Package darpackage locates and inspects .dar deployment archives before
// they are imported into the deployment server.
package darpackage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoMatch is returned by Resolve when a pattern matches no file.
var ErrNoMatch = errors.New("no package matches")

// Resolve turns a file path or a doublestar glob such as
// "build/distributions/**/*.dar" into the path of exactly one regular file.
func Resolve(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("darpackage: empty package path")
	}

	if !isGlob(pattern) {
		fi, err := os.Stat(pattern)
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("darpackage: %w %q", ErrNoMatch, pattern)
		}
		if err != nil {
			return "", fmt.Errorf("darpackage: %w", err)
		}
		if fi.IsDir() {
			return "", fmt.Errorf("darpackage: %q is a directory", pattern)
		}
		return pattern, nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Clean(pattern), doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return "", fmt.Errorf("darpackage: glob %q: %w", pattern, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("darpackage: %w %q", ErrNoMatch, pattern)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("darpackage: pattern %q matches %d files, expected one: %s",
			pattern, len(matches), strings.Join(matches, ", "))
	}
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
