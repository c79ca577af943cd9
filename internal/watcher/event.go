package watcher

import (
	"encoding/json"
	"fmt"
)

// ChangeAction is the normalized kind of change. The numeric values are part
// of the wire format.
type ChangeAction int32

const (
	// ActionCreated is emitted when an entity appears.
	ActionCreated ChangeAction = 0
	// ActionDeleted is emitted when an entity disappears.
	ActionDeleted ChangeAction = 1
	// ActionModified is emitted when an entity's content or metadata changes.
	ActionModified ChangeAction = 2
	// ActionMoved is emitted when an entity is renamed within the watched tree.
	ActionMoved ChangeAction = 3
	// ActionUnknown covers notifications that map to none of the above.
	ActionUnknown ChangeAction = -1
)

// String returns the string representation of the action.
func (a ChangeAction) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionDeleted:
		return "deleted"
	case ActionModified:
		return "modified"
	case ActionMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event is one normalized change delivered to a sink.
type Event struct {
	// Action is what happened.
	Action ChangeAction

	// Kind is what the path was when it was classified.
	Kind EntityKind

	// Path is the absolute path of the entity, rooted at the watched directory.
	Path string

	// OldPath is the previous path. It is set only for moved entities,
	// including descendants replayed from a moved directory.
	OldPath string
}

// Tuple returns the event as the ordered wire tuple
// (action code, kind code, path, old path or nil).
func (e Event) Tuple() [4]any {
	var old any
	if e.OldPath != "" {
		old = e.OldPath
	}
	return [4]any{int32(e.Action), int32(e.Kind), e.Path, old}
}

// MarshalJSON encodes the event as its wire tuple, e.g. [3,2,"/w/b","/w/a"].
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Tuple())
}

// String returns a human readable form for logs.
func (e Event) String() string {
	if e.OldPath != "" {
		return fmt.Sprintf("%s %s %s (from %s)", e.Action, e.Kind, e.Path, e.OldPath)
	}
	return fmt.Sprintf("%s %s %s", e.Action, e.Kind, e.Path)
}
