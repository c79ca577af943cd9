package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/watcher"
	"github.com/stretchr/testify/assert"
)

func TestStartMonitor_StatusCodes(t *testing.T) {
	t.Cleanup(StopMonitor)

	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	sink := watcher.NewChannelSink(1)

	tests := []struct {
		name string
		root string
		sink watcher.Sink
		want int
	}{
		{"empty root", "", sink, errors.StatusInvalidRoot},
		{"missing sink", root, nil, errors.StatusSinkUnavailable},
		{"too long", "/" + strings.Repeat("x", watcher.DefaultMaxPathLength), sink, errors.StatusPathTooLong},
		{"missing root", filepath.Join(root, "missing"), sink, errors.StatusInvalidRoot},
		{"file root", file, sink, errors.StatusInvalidRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartMonitor(tt.root, tt.sink, true, false))
		})
	}
}

func TestStartMonitor_SingleSession(t *testing.T) {
	t.Cleanup(StopMonitor)

	sink := watcher.NewChannelSink(1)
	assert.Equal(t, errors.StatusOK, StartMonitor(t.TempDir(), sink, true, false))
	assert.Equal(t, errors.StatusFailed, StartMonitor(t.TempDir(), sink, true, false))

	StopMonitor()
	StopMonitor()

	assert.Equal(t, errors.StatusOK, StartMonitor(t.TempDir(), sink, true, false))
}

func TestStopMonitor_WithoutStart(t *testing.T) {
	assert.NotPanics(t, StopMonitor)
}
