package watcher

// Op is the coarse operation a backend observed, before normalization.
type Op uint8

const (
	// OpOther is any notification the backend could not attribute, such as a
	// queue overflow or an attribute-only change on some platforms.
	OpOther Op = iota
	// OpCreate is an entity appearing in a watched directory.
	OpCreate
	// OpDelete is an entity leaving a watched directory.
	OpDelete
	// OpModify is a content change.
	OpModify
	// OpMove is a rename whose source and destination are both known.
	OpMove
)

// String returns the string representation of the op.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpMove:
		return "move"
	default:
		return "other"
	}
}

// Notification is a raw change report from a Backend.
type Notification struct {
	Op Op

	// Path is absolute, or relative to the subscribed root.
	Path string

	// OldPath is set only for OpMove.
	OldPath string

	// Native carries the platform's own flags for debug output.
	Native uint32
}

// Backend subscribes to change notifications using one platform facility.
type Backend interface {
	// Subscribe registers root with the OS. With recursive set, every
	// directory below root is covered, including ones created later.
	// The returned error is a REGISTRATION_FAILED domain error.
	Subscribe(root string, recursive bool) (Subscription, error)
}

// Subscription is a live registration returned by Backend.Subscribe.
type Subscription interface {
	// Notifications is closed once the subscription has fully stopped.
	Notifications() <-chan Notification

	// Errors reports non-fatal backend problems such as queue overflows.
	Errors() <-chan error

	// Close unregisters from the OS and waits for the reader to exit.
	// It is safe to call more than once.
	Close() error
}
