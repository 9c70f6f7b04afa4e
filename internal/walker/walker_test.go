package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func collect(t *testing.T, ch <-chan Result) ([]string, []error) {
	t.Helper()
	var paths []string
	var errs []error
	for r := range ch {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)
	return paths, errs
}

func TestWalk_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.ts"), "let x = 1")
	writeFile(t, filepath.Join(dir, "src", "b.ts"), "let y = 2")
	writeFile(t, filepath.Join(dir, "README.md"), "hello")

	w, err := New()
	require.NoError(t, err)

	ch, err := w.Walk(context.Background(), Options{Root: dir, Extensions: []string{".ts"}}, nil)
	require.NoError(t, err)

	paths, errs := collect(t, ch)
	assert.Empty(t, errs)
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, ".ts", filepath.Ext(p))
	}
}

func TestWalk_ExcludesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.go"), "package a")
	writeFile(t, filepath.Join(dir, "src", "a_test.go"), "package a")

	w, err := New()
	require.NoError(t, err)

	ch, err := w.Walk(context.Background(), Options{
		Root:            dir,
		Extensions:      []string{".go"},
		ExcludePatterns: []string{"src/*_test.go"},
	}, nil)
	require.NoError(t, err)

	paths, _ := collect(t, ch)
	require.Len(t, paths, 1)
	assert.Equal(t, "a.go", filepath.Base(paths[0]))
}

func TestWalk_SkipsOversizeFiles(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.go"), big, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.go"), []byte("x"), 0644))

	w, err := New()
	require.NoError(t, err)
	stats := &Stats{}

	ch, err := w.Walk(context.Background(), Options{Root: dir, Extensions: []string{".go"}, MaxFileSize: 10}, stats)
	require.NoError(t, err)

	paths, _ := collect(t, ch)
	require.Len(t, paths, 1)
	assert.Equal(t, "small.go", filepath.Base(paths[0]))
	assert.Equal(t, 1, stats.Oversize)
}

func TestWalk_DoesNotFollowSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.go")
	writeFile(t, target, "package a")
	link := filepath.Join(dir, "link.go")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("symlinks unsupported")
	}

	w, err := New()
	require.NoError(t, err)

	ch, err := w.Walk(context.Background(), Options{Root: dir, Extensions: []string{".go"}}, nil)
	require.NoError(t, err)

	paths, _ := collect(t, ch)
	require.Len(t, paths, 1)
	assert.Equal(t, "real.go", filepath.Base(paths[0]))
}

func TestWalk_RespectsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "vendor/\n")
	writeFile(t, filepath.Join(dir, "vendor", "dep.go"), "package dep")
	writeFile(t, filepath.Join(dir, "main.go"), "package main")

	w, err := New()
	require.NoError(t, err)

	ch, err := w.Walk(context.Background(), Options{Root: dir, Extensions: []string{".go"}, RespectGitignore: true}, nil)
	require.NoError(t, err)

	paths, _ := collect(t, ch)
	require.Len(t, paths, 1)
	assert.Equal(t, "main.go", filepath.Base(paths[0]))
}

func TestWalk_EmptyProjectYieldsNoFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := New()
	require.NoError(t, err)

	ch, err := w.Walk(context.Background(), Options{Root: dir, Extensions: []string{".go"}}, nil)
	require.NoError(t, err)

	paths, errs := collect(t, ch)
	assert.Empty(t, paths)
	assert.Empty(t, errs)
}
