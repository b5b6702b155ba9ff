package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"concord/internal/api"
	"concord/internal/conflict"
	"concord/internal/document"
	docstorage "concord/internal/document/storage"
	"concord/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	base := writeTemp(t, dir, "base", "a\nb\nc")

	t.Run("clean", func(t *testing.T) {
		mine := writeTemp(t, dir, "mine", "A\nb\nc")
		theirs := writeTemp(t, dir, "theirs", "a\nb\nC")
		assert.NoError(t, run("merge", base, mine, theirs))
	})

	t.Run("collision", func(t *testing.T) {
		mine := writeTemp(t, dir, "mine2", "X\nb\nc")
		theirs := writeTemp(t, dir, "theirs2", "Y\nb\nc")
		err := run("merge", base, mine, theirs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conflicting changes")
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, run("merge", base, filepath.Join(dir, "nope"), base))
	})
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a", "one\ntwo\n")
	b := writeTemp(t, dir, "b", "one\nTWO\nthree\n")

	assert.NoError(t, run("diff", a, b))
	assert.NoError(t, run("diff", "--unified", a, b))
	assert.NoError(t, run("markers", a, b))
}

func TestWriteCommand(t *testing.T) {
	db, err := storage.Open("", true)
	require.NoError(t, err)
	store, err := docstorage.NewStore(db, docstorage.Options{})
	require.NoError(t, err)

	engine := conflict.NewEngine(store, conflict.Options{})
	mux := http.NewServeMux()
	api.Routes(mux, api.NewFileHandler(store, engine, nil), api.NewConflictHandler(engine, 0, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		store.Close()
		db.Close()
	})

	ctx := context.Background()
	require.NoError(t, store.CreateFile(ctx, &document.File{ID: "doc", FileName: "doc.md", Content: "a\nb", Version: 1}))

	dir := t.TempDir()
	mine := writeTemp(t, dir, "mine", "A\nb")
	theirs := writeTemp(t, dir, "theirs", "a\nB")

	require.NoError(t, run("write", "--server", srv.URL, "--version", "1", "--by", "alice", "doc", mine))
	f, err := store.GetFile(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Version)
	assert.Equal(t, "A\nb", f.Content)

	// a stale write is reported, not saved
	require.NoError(t, run("write", "--server", srv.URL, "--version", "1", "--by", "bob", "doc", theirs))
	f, err = store.GetFile(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Version)
	assert.Len(t, engine.GetActiveConflicts(), 1)

	require.NoError(t, run("file", "versions", "--server", srv.URL, "doc"))
}
