package indexlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesLogFileUnderHomeContextLogs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	l, err := New("/work/myproject")
	require.NoError(t, err)
	defer l.Close()

	assert.True(t, strings.Contains(l.Path(), filepath.Join(".context", "logs")))
	assert.True(t, strings.HasPrefix(filepath.Base(l.Path()), "index-myproject-"))
}

func TestLog_WritesOneJSONLineWithFields(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	l, err := New("/work/myproject")
	require.NoError(t, err)

	require.NoError(t, l.Info("started", map[string]any{"files": 3}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "info", e.Level)
	assert.Equal(t, "started", e.Message)
	assert.Equal(t, "/work/myproject", e.Project)
}

func TestPrune_RemovesFilesOlderThanRetention(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := DefaultLogDir()
	require.NoError(t, os.MkdirAll(dir, 0755))

	oldPath := filepath.Join(dir, "index-old-20200101T000000Z.log")
	require.NoError(t, os.WriteFile(oldPath, []byte("{}\n"), 0644))
	old := time.Now().AddDate(0, 0, -RetentionDays-1)
	require.NoError(t, os.Chtimes(oldPath, old, old))

	newPath := filepath.Join(dir, "index-new-20250101T000000Z.log")
	require.NoError(t, os.WriteFile(newPath, []byte("{}\n"), 0644))

	require.NoError(t, Prune())

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestLog_MultipleEventsAppendSeparateLines(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	l, err := New("/work/proj")
	require.NoError(t, err)
	require.NoError(t, l.Info("one", nil))
	require.NoError(t, l.Warn("two", nil))
	require.NoError(t, l.Close())

	f, err := os.Open(l.Path())
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	assert.Equal(t, 2, count)
}
