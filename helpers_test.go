package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfdoc"
)

func TestPageRange(t *testing.T) {
	pages, err := pageRange(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)

	pages, err = pageRange(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)

	_, err = pageRange(4, 3)
	assert.ErrorIs(t, err, pdfdoc.ErrPageRange)
}

func TestLoadAnnotations(t *testing.T) {
	log, _ := test.NewNullLogger()
	dir := t.TempDir()

	path := filepath.Join(dir, "annots.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"ignored","type":"highlight","page":1,"rect":{"x":10,"y":20,"width":100,"height":12},"color":"#ffd400","text":"hello"},
		{"type":"note","page":2,"rect":{"x":50,"y":50,"width":16,"height":16},"color":"#2ea8e5","text":"look here"}
	]`), 0o644))

	store, err := loadAnnotations(path, 2, log)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	list := store.ListForPage(1)
	require.Len(t, list, 1)
	assert.NotEqual(t, "ignored", list[0].ID)
	assert.Equal(t, annotation.Highlight, list[0].Type)

	_, err = loadAnnotations(path, 1, log)
	assert.ErrorIs(t, err, annotation.ErrPageOutOfRange)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":"highlight"}`), 0o644))
	_, err = loadAnnotations(bad, 2, log)
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	log := setupLogging(&Globals{LogLevel: "debug", LogJSON: true})
	assert.True(t, log.IsLevelEnabled(logrus.DebugLevel))

	log = setupLogging(&Globals{LogLevel: "nonsense"})
	assert.False(t, log.IsLevelEnabled(logrus.DebugLevel))
}
