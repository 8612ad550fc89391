package sink

import (
	"bufio"
	"io"
	"sync"

	"synwatch/event"
	"synwatch/ui"
)

// Console prints one aligned line per event.
type Console struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: bufio.NewWriter(w)}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Write(ev event.Handshake) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.WriteString(ui.FormatEventLine(ev)); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Flush()
}
