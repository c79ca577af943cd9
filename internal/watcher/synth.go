package watcher

import (
	"iter"
	"os"
	"path/filepath"
)

// frame is one directory being listed during a subtree walk.
type frame struct {
	dir     string
	oldDir  string
	entries []os.DirEntry
	next    int
}

// Synthesize walks the directory newDir depth-first and yields one event per
// descendant, parents before children and siblings in name order. Each event
// carries action and the descendant's current kind. When oldDir is set the
// events also carry the descendant's path under oldDir.
//
// The walk uses an explicit stack, so depth is bounded only by memory.
// Symlinked directories are reported but not entered. A directory that
// cannot be listed is reported to onPartial and skipped; the walk continues
// with its siblings. Nothing is yielded for newDir itself.
func Synthesize(action ChangeAction, newDir, oldDir string, onPartial func(path string, err error)) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		open := func(dir, old string) *frame {
			entries, err := os.ReadDir(dir)
			if err != nil {
				if onPartial != nil {
					onPartial(dir, err)
				}
				if len(entries) == 0 {
					return nil
				}
			}
			return &frame{dir: dir, oldDir: old, entries: entries}
		}

		root := open(newDir, oldDir)
		if root == nil {
			return
		}
		stack := []*frame{root}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next >= len(top.entries) {
				stack[len(stack)-1] = nil
				stack = stack[:len(stack)-1]
				continue
			}

			entry := top.entries[top.next]
			top.next++

			name := entry.Name()
			if name == "." || name == ".." {
				continue
			}

			ev := Event{
				Action: action,
				Path:   filepath.Join(top.dir, name),
			}
			if top.oldDir != "" {
				ev.OldPath = filepath.Join(top.oldDir, name)
			}
			ev.Kind = Classify(ev.Path)

			if !yield(ev) {
				return
			}

			// ev.Kind comes from Lstat, so symlinks to directories are KindOther.
			if ev.Kind == KindDirectory {
				if f := open(ev.Path, ev.OldPath); f != nil {
					stack = append(stack, f)
				}
			}
		}
	}
}
