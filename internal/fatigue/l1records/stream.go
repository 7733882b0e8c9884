package l1records

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidCursor is returned when a cursor does not address the start of
// a record line in the stream.
var ErrInvalidCursor = errors.New("cursor does not address a record")

// Cursor is the byte offset of the start of a record line. It is opaque to
// callers beyond being captured from a Reader and handed back to Seek.
type Cursor int64

// Start addresses the first line of a stream.
const Start Cursor = 0

// Reader yields Records from a line-oriented source in file order. The
// source must be positioned at offset zero when the Reader is created.
type Reader struct {
	src       io.ReadSeeker
	br        *bufio.Reader
	schema    Schema
	pos       int64
	malformed int
}

// NewReader wraps src. Lines are parsed under schema.
func NewReader(src io.ReadSeeker, schema Schema) *Reader {
	return &Reader{
		src:    src,
		br:     bufio.NewReader(src),
		schema: schema,
	}
}

// Schema reports the layout the reader parses.
func (r *Reader) Schema() Schema { return r.schema }

// Malformed returns the number of non-blank lines skipped so far.
func (r *Reader) Malformed() int { return r.malformed }

// Next returns the next well-formed record and the cursor of its line.
// Malformed lines are skipped. At the end of the stream Next returns io.EOF.
func (r *Reader) Next() (Record, Cursor, error) {
	for {
		start := r.pos
		line, err := r.br.ReadString('\n')
		r.pos += int64(len(line))
		if err != nil && err != io.EOF {
			return Record{}, 0, err
		}
		if line == "" {
			return Record{}, 0, io.EOF
		}

		if rec, ok := ParseLine(line, r.schema); ok {
			return rec, Cursor(start), nil
		}
		if strings.TrimSpace(line) != "" {
			r.malformed++
		}
		if err == io.EOF {
			return Record{}, 0, io.EOF
		}
	}
}

// Seek repositions the reader so the next call to Next reads the line
// starting at c.
func (r *Reader) Seek(c Cursor) error {
	if c < 0 {
		return fmt.Errorf("seek to %d: %w", c, ErrInvalidCursor)
	}
	if _, err := r.src.Seek(int64(c), io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", c, err)
	}
	r.br.Reset(r.src)
	r.pos = int64(c)
	return nil
}

// ReadAt seeks to c and returns the record that starts there. It fails with
// ErrInvalidCursor when c is past the end or does not begin a record line.
func (r *Reader) ReadAt(c Cursor) (Record, error) {
	if err := r.Seek(c); err != nil {
		return Record{}, err
	}
	rec, got, err := r.Next()
	if err == io.EOF {
		return Record{}, fmt.Errorf("read at %d: %w", c, ErrInvalidCursor)
	}
	if err != nil {
		return Record{}, err
	}
	if got != c {
		return Record{}, fmt.Errorf("read at %d: next record starts at %d: %w", c, got, ErrInvalidCursor)
	}
	return rec, nil
}

// Writer appends records as newline-terminated lines.
type Writer struct {
	bw    *bufio.Writer
	count int
}

// NewWriter returns a buffered record writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write appends rec using its source tokens.
func (w *Writer) Write(rec Record) error {
	if _, err := w.bw.WriteString(rec.String()); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }
