package signal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

func writeSignalFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileSource(t *testing.T) {
	t.Run("reads signals in order and ends with EOF", func(t *testing.T) {
		path := writeSignalFile(t, `{"stream":"s1","kind":"motion_score","timestamp":"2026-08-29T10:00:00Z","value":0.5,"confidence":1}
{"stream":"s1","kind":"posture","timestamp":"2026-08-29T10:00:01Z","posture":"ON_FLOOR","confidence":0.9}
`)
		src, err := NewFileSource(path, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		first, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, event.KindMotionScore, first.Kind)
		assert.Equal(t, 0.5, first.Value)
		assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), first.Timestamp)

		second, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, event.KindPosture, second.Kind)
		assert.Equal(t, event.PostureOnFloor, second.Posture)

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("blank lines skipped", func(t *testing.T) {
		path := writeSignalFile(t, `
{"kind":"motion_score","timestamp":"2026-08-29T10:00:00Z","value":0.5,"confidence":1}

`)
		src, err := NewFileSource(path, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		sig, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, event.KindMotionScore, sig.Kind)

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("malformed line reported as rejected signal", func(t *testing.T) {
		path := writeSignalFile(t, "not json at all\n")
		src, err := NewFileSource(path, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, event.ErrSignalRejected)
	})

	t.Run("stream default applied when absent", func(t *testing.T) {
		path := writeSignalFile(t, `{"kind":"motion_score","timestamp":"2026-08-29T10:00:00Z","value":0.5,"confidence":1}
`)
		src, err := NewFileSource(path, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		sig, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "stream-0", sig.Stream)
	})

	t.Run("canceled context wins", func(t *testing.T) {
		path := writeSignalFile(t, `{"kind":"motion_score","timestamp":"2026-08-29T10:00:00Z","value":0.5,"confidence":1}
`)
		src, err := NewFileSource(path, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = src.Next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing file errors on open", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.jsonl"), "stream-0")
		assert.Error(t, err)
	})
}

func TestSpoolSource(t *testing.T) {
	t.Run("startup backlog read in name order", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "0002.json"),
			[]byte(`{"kind":"motion_score","timestamp":"2026-08-29T10:00:01Z","value":0.2,"confidence":1}`), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "0001.json"),
			[]byte(`{"kind":"motion_score","timestamp":"2026-08-29T10:00:00Z","value":0.1,"confidence":1}`), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

		src, err := NewSpoolSource(dir, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		first, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.1, first.Value)

		second, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.2, second.Value)
	})

	t.Run("new files picked up by the watcher", func(t *testing.T) {
		dir := t.TempDir()
		src, err := NewSpoolSource(dir, "stream-0")
		require.NoError(t, err)
		defer src.Close()

		go func() {
			time.Sleep(50 * time.Millisecond)
			// Write-then-rename so the watcher only ever sees complete files.
			tmp := filepath.Join(dir, "0001.tmp")
			os.WriteFile(tmp, []byte(`{"kind":"posture","timestamp":"2026-08-29T10:00:00Z","posture":"STANDING","confidence":0.9}`), 0644)
			os.Rename(tmp, filepath.Join(dir, "0001.json"))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sig, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, event.KindPosture, sig.Kind)
		assert.Equal(t, "stream-0", sig.Stream)
	})

	t.Run("missing directory errors", func(t *testing.T) {
		_, err := NewSpoolSource(filepath.Join(t.TempDir(), "missing"), "stream-0")
		assert.Error(t, err)
	})
}
