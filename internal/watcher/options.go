package watcher

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/listenupapp/dirwatch/internal/errors"
)

// DefaultMaxPathLength bounds the byte length of a watch root. A root must
// be shorter than the limit.
const DefaultMaxPathLength = 512

// BackendKind selects the notification facility.
type BackendKind string

const (
	// BackendNative uses the platform facility chosen at build time:
	// inotify on Linux, FSEvents on macOS, fsnotify elsewhere.
	BackendNative BackendKind = "native"
	// BackendPortable uses fsnotify on every platform.
	BackendPortable BackendKind = "portable"
)

// Options configures a watch session.
type Options struct {
	// Recursive extends the watch to every directory below the root.
	Recursive bool

	// Debug logs every raw notification and partial subtree walk.
	Debug bool

	// IgnorePatterns are globs matched against the slash-separated path
	// relative to the root and against the base name. Matching events are
	// not delivered.
	IgnorePatterns []string

	// MaxPathLength is the exclusive byte limit for the root (default: 512).
	MaxPathLength int
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.MaxPathLength <= 0 {
		o.MaxPathLength = DefaultMaxPathLength
	}
}

// ignoreMatcher holds compiled ignore patterns for one root.
type ignoreMatcher struct {
	root     string
	patterns []glob.Glob
}

// compileIgnore compiles patterns with '/' as the separator so that "*"
// stays within one path segment and "**" crosses segments.
func compileIgnore(root string, patterns []string) (*ignoreMatcher, error) {
	m := &ignoreMatcher{root: root}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeValidation, "invalid ignore pattern %q", p)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// shouldIgnore checks if a path matches ignore patterns.
func (m *ignoreMatcher) shouldIgnore(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)

	for _, g := range m.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
