package storage

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	store := NewFileStorage(t.TempDir())

	assert.False(t, store.Exists("weights/projector.json"))
	require.NoError(t, store.Save("weights/projector.json", strings.NewReader(`{"ok":true}`)))
	assert.True(t, store.Exists("weights/projector.json"))

	rc, err := store.Open("weights/projector.json")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestFileStorageRejectsEscapes(t *testing.T) {
	store := NewFileStorage(t.TempDir())

	tests := []string{"../secret", "a/../../secret", "/etc/passwd"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Save(name, strings.NewReader("x")))
			_, err := store.Open(name)
			assert.Error(t, err)
			assert.False(t, store.Exists(name))
		})
	}
}

func TestFileStoragePath(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStorage(dir)

	assert.Equal(t, filepath.Join(dir, "clip", "vision.onnx"), store.Path("clip/vision.onnx"))
	assert.Equal(t, "/opt/models/vision.onnx", store.Path("/opt/models/vision.onnx"))
}
