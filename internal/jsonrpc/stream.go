package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Reader splits a byte stream into lines. Lines have no length limit.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. A final line that
// lacks a newline is still returned; io.EOF follows on the next call.
func (r *Reader) ReadLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if len(line) > 0 {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return bytes.TrimRight(line, "\r\n"), err
	}
	return nil, err
}

// Writer emits one JSON value per line and flushes after each.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{bw: bw, enc: enc}
}

// Write encodes v followed by a newline and flushes.
func (w *Writer) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	return w.bw.Flush()
}
