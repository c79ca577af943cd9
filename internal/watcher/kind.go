package watcher

import (
	"io/fs"
	"os"
)

// EntityKind is the filesystem entity type reported with every event.
// The numeric values are part of the wire format.
type EntityKind int32

const (
	// KindUnknown is reported when the entity could not be inspected,
	// usually because it vanished before classification.
	KindUnknown EntityKind = 0
	// KindFile is a regular file.
	KindFile EntityKind = 1
	// KindDirectory is a directory.
	KindDirectory EntityKind = 2
	// KindOther covers symlinks, devices, pipes, and sockets.
	KindOther EntityKind = 3
)

// String returns the string representation of the kind.
func (k EntityKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify inspects path without following a final symlink.
// It never fails: an entity that cannot be inspected is KindUnknown.
func Classify(path string) EntityKind {
	info, err := os.Lstat(path)
	if err != nil {
		return KindUnknown
	}
	return kindOf(info.Mode())
}

func kindOf(mode fs.FileMode) EntityKind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDirectory
	default:
		return KindOther
	}
}
