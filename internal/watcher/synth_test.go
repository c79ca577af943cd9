package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkTree creates the given paths under root. Paths ending in "/" are directories.
func mkTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if strings.HasSuffix(p, "/") {
			require.NoError(t, os.MkdirAll(full, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0o644))
	}
}

func collectSeq(action ChangeAction, newDir, oldDir string, onPartial func(string, error)) []Event {
	var out []Event
	for ev := range Synthesize(action, newDir, oldDir, onPartial) {
		out = append(out, ev)
	}
	return out
}

func TestSynthesize_ParentsBeforeChildren(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "b/c.txt", "a.txt", "d/", "b/e/f.txt")

	got := collectSeq(ActionCreated, root, "", nil)

	want := []Event{
		{Action: ActionCreated, Kind: KindFile, Path: filepath.Join(root, "a.txt")},
		{Action: ActionCreated, Kind: KindDirectory, Path: filepath.Join(root, "b")},
		{Action: ActionCreated, Kind: KindFile, Path: filepath.Join(root, "b", "c.txt")},
		{Action: ActionCreated, Kind: KindDirectory, Path: filepath.Join(root, "b", "e")},
		{Action: ActionCreated, Kind: KindFile, Path: filepath.Join(root, "b", "e", "f.txt")},
		{Action: ActionCreated, Kind: KindDirectory, Path: filepath.Join(root, "d")},
	}
	assert.Equal(t, want, got)
}

func TestSynthesize_MovedCarriesOldPaths(t *testing.T) {
	base := t.TempDir()
	newDir := filepath.Join(base, "dst")
	oldDir := filepath.Join(base, "src")
	mkTree(t, newDir, "sub/f.txt")

	got := collectSeq(ActionMoved, newDir, oldDir, nil)

	want := []Event{
		{Action: ActionMoved, Kind: KindDirectory, Path: filepath.Join(newDir, "sub"), OldPath: filepath.Join(oldDir, "sub")},
		{Action: ActionMoved, Kind: KindFile, Path: filepath.Join(newDir, "sub", "f.txt"), OldPath: filepath.Join(oldDir, "sub", "f.txt")},
	}
	assert.Equal(t, want, got)
}

func TestSynthesize_EmptyDirectory(t *testing.T) {
	assert.Empty(t, collectSeq(ActionCreated, t.TempDir(), "", nil))
}

func TestSynthesize_VanishedDirectoryReportsPartial(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")

	var partial []string
	got := collectSeq(ActionCreated, missing, "", func(path string, err error) {
		assert.Error(t, err)
		partial = append(partial, path)
	})

	assert.Empty(t, got)
	assert.Equal(t, []string{missing}, partial)
}

func TestSynthesize_UnreadableSubtreeIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	mkTree(t, root, "a/", "locked/x.txt", "z.txt")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	var partial []string
	got := collectSeq(ActionCreated, root, "", func(path string, _ error) {
		partial = append(partial, path)
	})

	paths := make([]string, 0, len(got))
	for _, ev := range got {
		paths = append(paths, ev.Path)
	}
	assert.Equal(t, []string{
		filepath.Join(root, "a"),
		locked,
		filepath.Join(root, "z.txt"),
	}, paths)
	assert.Equal(t, []string{locked}, partial)
}

func TestSynthesize_DoesNotFollowSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "real/f.txt")
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got := collectSeq(ActionCreated, root, "", nil)

	want := []Event{
		{Action: ActionCreated, Kind: KindOther, Path: filepath.Join(root, "link")},
		{Action: ActionCreated, Kind: KindDirectory, Path: filepath.Join(root, "real")},
		{Action: ActionCreated, Kind: KindFile, Path: filepath.Join(root, "real", "f.txt")},
	}
	assert.Equal(t, want, got)
}

func TestSynthesize_DeepTree(t *testing.T) {
	root := t.TempDir()
	const depth = 200

	dir := root
	for range depth {
		dir = filepath.Join(dir, "d")
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))

	got := collectSeq(ActionCreated, root, "", nil)
	require.Len(t, got, depth)
	assert.Equal(t, dir, got[depth-1].Path)
}

func TestSynthesize_StopsWhenConsumerBreaks(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "a.txt", "b.txt", "c/d.txt")

	count := 0
	for range Synthesize(ActionCreated, root, "", nil) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
