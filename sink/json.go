package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"synwatch/event"
)

// JSON writes one Record per line.
type JSON struct {
	enc    *json.Encoder
	closer io.Closer
}

// NewJSON writes to w; w is not closed by Close.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// OpenJSON appends to path, or writes to stdout for "" and "-".
func OpenJSON(path string) (*JSON, error) {
	if path == "" || path == "-" {
		return NewJSON(os.Stdout), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json sink %s: %w", path, err)
	}
	return &JSON{enc: json.NewEncoder(f), closer: f}, nil
}

func (j *JSON) Name() string { return "json" }

func (j *JSON) Write(ev event.Handshake) error {
	return j.enc.Encode(NewRecord(ev))
}

func (j *JSON) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
