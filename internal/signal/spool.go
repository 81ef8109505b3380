package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// SpoolSource watches a spool directory for JSON signal files dropped by
// an external adapter, one signal per file. Files already present at
// startup are read first, in name order, then the watcher takes over.
type SpoolSource struct {
	dir     string
	stream  string
	watcher *fsnotify.Watcher
	backlog []string
}

// NewSpoolSource starts watching dir.
func NewSpoolSource(dir, stream string) (*SpoolSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create spool watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch spool directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("read spool directory: %w", err)
	}
	var backlog []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			backlog = append(backlog, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(backlog)

	return &SpoolSource{
		dir:     dir,
		stream:  stream,
		watcher: watcher,
		backlog: backlog,
	}, nil
}

// Next implements Source.
func (s *SpoolSource) Next(ctx context.Context) (event.Signal, error) {
	for {
		if len(s.backlog) > 0 {
			path := s.backlog[0]
			s.backlog = s.backlog[1:]
			return s.read(path)
		}

		select {
		case <-ctx.Done():
			return event.Signal{}, ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return event.Signal{}, fmt.Errorf("spool watcher closed")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			return s.read(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return event.Signal{}, fmt.Errorf("spool watcher closed")
			}
			return event.Signal{}, fmt.Errorf("spool watcher: %w", err)
		}
	}
}

func (s *SpoolSource) read(path string) (event.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return event.Signal{}, fmt.Errorf("%w: read spool file %s: %v", event.ErrSignalRejected, path, err)
	}
	var sig event.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return event.Signal{}, fmt.Errorf("%w: decode spool file %s: %v", event.ErrSignalRejected, path, err)
	}
	if sig.Stream == "" {
		sig.Stream = s.stream
	}
	return sig, nil
}

// Close implements Source.
func (s *SpoolSource) Close() error { return s.watcher.Close() }
