package watcher

import "path/filepath"

// Normalizer turns raw notifications for one root into events.
type Normalizer struct {
	root string
}

// NewNormalizer creates a normalizer for the given absolute root.
func NewNormalizer(root string) *Normalizer {
	return &Normalizer{root: filepath.Clean(root)}
}

// Normalize maps a notification to an event and reports whether the
// event's subtree must be replayed. That is the case for a directory that
// was created or moved in, since its contents produced no notifications of
// their own.
func (n *Normalizer) Normalize(raw Notification) (Event, bool) {
	ev := Event{
		Action: actionFor(raw.Op),
		Path:   n.resolve(raw.Path),
	}

	if ev.Action == ActionMoved {
		if raw.OldPath == "" {
			// A move without a known source is just an arrival.
			ev.Action = ActionCreated
		} else {
			ev.OldPath = n.resolve(raw.OldPath)
		}
	}

	ev.Kind = Classify(ev.Path)

	synthesize := ev.Kind == KindDirectory &&
		(ev.Action == ActionCreated || ev.Action == ActionMoved)
	return ev, synthesize
}

// resolve joins relative paths onto the root.
func (n *Normalizer) resolve(path string) string {
	switch {
	case path == "":
		return n.root
	case filepath.IsAbs(path):
		return filepath.Clean(path)
	default:
		return filepath.Join(n.root, path)
	}
}

func actionFor(op Op) ChangeAction {
	switch op {
	case OpCreate:
		return ActionCreated
	case OpDelete:
		return ActionDeleted
	case OpModify:
		return ActionModified
	case OpMove:
		return ActionMoved
	default:
		return ActionUnknown
	}
}
