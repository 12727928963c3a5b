// Package transport moves events into the engine and alerts out of it. Two
// sources exist: newline-delimited JSON files for replay and fixtures, and a
// NATS subject for live streaming.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/metrics"
)

// FileReader reads normalized events from an NDJSON stream. Blank lines and
// lines starting with '#' are skipped, so fixture files can carry comments.
type FileReader struct {
	r   *bufio.Scanner
	log *logging.Logger
}

// NewFileReader wraps an io.Reader of newline-delimited event JSON.
func NewFileReader(r io.Reader, log *logging.Logger) *FileReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &FileReader{r: sc, log: log}
}

// OpenFile opens path for reading as an event stream.
func OpenFile(path string, log *logging.Logger) (*FileReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return NewFileReader(f, log), f, nil
}

// Next returns the next parseable event. Malformed lines are counted and
// skipped. io.EOF signals end of stream.
func (fr *FileReader) Next() (event.Event, error) {
	for fr.r.Scan() {
		line := strings.TrimSpace(fr.r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := event.Parse([]byte(line))
		if err != nil {
			metrics.EventsMalformed.Inc()
			fr.log.Debug("skipping malformed event line", logging.Error(err))
			continue
		}
		return e, nil
	}
	if err := fr.r.Err(); err != nil {
		return event.Event{}, fmt.Errorf("failed to read event stream: %w", err)
	}
	return event.Event{}, io.EOF
}
