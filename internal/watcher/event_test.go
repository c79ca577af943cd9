package watcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireCodes(t *testing.T) {
	assert.Equal(t, int32(0), int32(ActionCreated))
	assert.Equal(t, int32(1), int32(ActionDeleted))
	assert.Equal(t, int32(2), int32(ActionModified))
	assert.Equal(t, int32(3), int32(ActionMoved))
	assert.Equal(t, int32(-1), int32(ActionUnknown))

	assert.Equal(t, int32(0), int32(KindUnknown))
	assert.Equal(t, int32(1), int32(KindFile))
	assert.Equal(t, int32(2), int32(KindDirectory))
	assert.Equal(t, int32(3), int32(KindOther))
}

func TestEvent_Tuple(t *testing.T) {
	created := Event{Action: ActionCreated, Kind: KindDirectory, Path: "/w/a"}
	assert.Equal(t, [4]any{int32(0), int32(2), "/w/a", nil}, created.Tuple())

	moved := Event{Action: ActionMoved, Kind: KindFile, Path: "/w/b", OldPath: "/w/a"}
	assert.Equal(t, [4]any{int32(3), int32(1), "/w/b", "/w/a"}, moved.Tuple())
}

func TestEvent_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Event{Action: ActionDeleted, Kind: KindUnknown, Path: "/w/gone"})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,0,"/w/gone",null]`, string(data))

	data, err = json.Marshal(Event{Action: ActionMoved, Kind: KindDirectory, Path: "/w/new", OldPath: "/w/old"})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,2,"/w/new","/w/old"]`, string(data))
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "created file /w/a.txt", Event{Action: ActionCreated, Kind: KindFile, Path: "/w/a.txt"}.String())
	assert.Equal(t, "moved directory /w/b (from /w/a)",
		Event{Action: ActionMoved, Kind: KindDirectory, Path: "/w/b", OldPath: "/w/a"}.String())
}

func TestChangeAction_String(t *testing.T) {
	tests := map[ChangeAction]string{
		ActionCreated:    "created",
		ActionDeleted:    "deleted",
		ActionModified:   "modified",
		ActionMoved:      "moved",
		ActionUnknown:    "unknown",
		ChangeAction(99): "unknown",
	}
	for action, want := range tests {
		assert.Equal(t, want, action.String())
	}
}
