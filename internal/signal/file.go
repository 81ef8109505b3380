package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// FileSource reads JSONL signals from a file, one signal per line. Used
// for simulations and offline sessions; a new FileSource over the same
// file restarts the sequence from the beginning.
type FileSource struct {
	f       *os.File
	scanner *bufio.Scanner
	stream  string
}

// NewFileSource opens the JSONL file. stream overrides the stream field
// of signals that do not carry one.
func NewFileSource(path, stream string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal file: %w", err)
	}
	return &FileSource{
		f:       f,
		scanner: bufio.NewScanner(f),
		stream:  stream,
	}, nil
}

// Next implements Source. Blank lines are skipped; a malformed line is
// returned as-is so the classifier can reject it with a diagnostic rather
// than the source silently swallowing it.
func (s *FileSource) Next(ctx context.Context) (event.Signal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return event.Signal{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return event.Signal{}, fmt.Errorf("read signal file: %w", err)
			}
			return event.Signal{}, io.EOF
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sig event.Signal
		if err := json.Unmarshal(line, &sig); err != nil {
			return event.Signal{}, fmt.Errorf("%w: decode signal: %v", event.ErrSignalRejected, err)
		}
		if sig.Stream == "" {
			sig.Stream = s.stream
		}
		return sig, nil
	}
}

// Close implements Source.
func (s *FileSource) Close() error { return s.f.Close() }
