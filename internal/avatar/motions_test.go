package avatar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmate/internal/types"
)

func TestMotionIndexLookupByPathAndBasename(t *testing.T) {
	idx := NewMotionIndex(map[string][]string{
		"idle": {"motions/idle_01.motion3.json", "motions/idle_02.motion3.json"},
	})

	ref, ok := idx.Find("motions/idle_02.motion3.json")
	require.True(t, ok)
	assert.Equal(t, types.MotionRef{Group: "idle", Index: 1}, ref)

	ref, ok = idx.Find("idle_02.motion3.json")
	require.True(t, ok)
	assert.Equal(t, types.MotionRef{Group: "idle", Index: 1}, ref)
}

func TestMotionIndexFirstWriteWins(t *testing.T) {
	// Both groups carry an asset named a.motion; the earliest-registered
	// group keeps the basename mapping.
	idx := NewMotionIndex(map[string][]string{
		"alpha": {"alpha/a.motion"},
		"beta":  {"beta/a.motion"},
	})

	ref, ok := idx.Find("a.motion")
	require.True(t, ok)
	assert.Equal(t, "alpha", ref.Group)

	// Full paths stay distinct.
	ref, ok = idx.Find("beta/a.motion")
	require.True(t, ok)
	assert.Equal(t, "beta", ref.Group)
}

func TestMotionIndexUnknownIdentifier(t *testing.T) {
	idx := NewMotionIndex(nil)
	_, ok := idx.Find("nothing")
	assert.False(t, ok)
}

func TestMotionIndexNilReceiver(t *testing.T) {
	var idx *MotionIndex
	_, ok := idx.Find("x")
	assert.False(t, ok)
	assert.Nil(t, idx.Group("g"))
	assert.Empty(t, idx.Groups())
}

func TestLoadMotionIndexFromManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "model.model3.json")
	content := `{
		"Version": 3,
		"FileReferences": {
			"Moc": "model.moc3",
			"Motions": {
				"tap_body": [
					{"File": "motions/tap_01.motion3.json"},
					{"File": "motions/tap_02.motion3.json"}
				],
				"idle": [
					{"File": "motions/idle_01.motion3.json"}
				]
			}
		}
	}`
	require.NoError(t, os.WriteFile(manifest, []byte(content), 0o644))

	idx, err := LoadMotionIndex(manifest)
	require.NoError(t, err)

	assert.Equal(t, []string{"idle", "tap_body"}, idx.GroupNames())
	assert.Len(t, idx.Group("tap_body"), 2)

	ref, ok := idx.Find("tap_02.motion3.json")
	require.True(t, ok)
	assert.Equal(t, types.MotionRef{Group: "tap_body", Index: 1}, ref)
}

func TestLoadMotionIndexMissingFile(t *testing.T) {
	_, err := LoadMotionIndex(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadMotionIndexBadJSON(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(manifest, []byte("{nope"), 0o644))
	_, err := LoadMotionIndex(manifest)
	assert.Error(t, err)
}
