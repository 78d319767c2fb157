package localstate

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrCorruptCursor is returned by Load when the cursor file exists but does
// not hold a non-negative decimal integer.
var ErrCorruptCursor = errors.New("corrupt cursor file")

// Cursor is the id of the highest command the client has fully processed,
// stored as a decimal string in a single file.
type Cursor struct {
	path string
}

func NewCursor(path string) *Cursor {
	return &Cursor{path: path}
}

func (c *Cursor) Path() string { return c.path }

// Load returns nil when no cursor has been saved yet. An empty file is
// treated the same as a missing one.
func (c *Cursor) Load() (*int64, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cursor %s: %w", c.path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %s holds %q", ErrCorruptCursor, c.path, text)
	}
	return &v, nil
}

// Save atomically replaces the stored cursor.
func (c *Cursor) Save(id int64) error {
	if id < 0 {
		return fmt.Errorf("cursor must be non-negative, got %d", id)
	}
	return WriteFileAtomic(c.path, []byte(strconv.FormatInt(id, 10)), 0o644)
}
