package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifactPayload struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func TestFSArtifactStoreRoundTrip(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("kmeans"))
	_, err = store.ModTime("kmeans")
	assert.Error(t, err)

	in := artifactPayload{Name: "kmeans", Values: []float64{1.5, -2.25, 3}}
	require.NoError(t, store.Save("kmeans", in))
	assert.True(t, store.Exists("kmeans"))

	var out artifactPayload
	require.NoError(t, store.Load("kmeans", &out))
	assert.Equal(t, in, out)

	mt, err := store.ModTime("kmeans")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), mt, time.Minute)
}

func TestFSArtifactStoreOverwrite(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("scaler", artifactPayload{Name: "old"}))
	require.NoError(t, store.Save("scaler", artifactPayload{Name: "new"}))

	var out artifactPayload
	require.NoError(t, store.Load("scaler", &out))
	assert.Equal(t, "new", out.Name)
}

func TestFSArtifactStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSArtifactStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("kmeans", map[string]int{"k": 3}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kmeans.json", entries[0].Name())
}

func TestFSArtifactStoreCorruptPayload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSArtifactStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaler.json"), []byte("{not json"), 0o644))
	assert.True(t, store.Exists("scaler"))

	var out artifactPayload
	assert.Error(t, store.Load("scaler", &out))
}

func TestFSArtifactStoreUnmarshalableValue(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save("bad", make(chan int)))
}

func TestNewFSArtifactStoreCreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts", "regime")
	store, err := NewFSArtifactStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save("kmeans", 1))
	assert.True(t, store.Exists("kmeans"))
}

func TestNewFSArtifactStoreEmptyDir(t *testing.T) {
	_, err := NewFSArtifactStore("")
	assert.Error(t, err)
}
