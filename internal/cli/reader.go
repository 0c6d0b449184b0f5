package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader provides context-aware line input.
type NonBlockingReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewNonBlockingReader creates a reader over r.
func NewNonBlockingReader(r io.Reader) *NonBlockingReader {
	return &NonBlockingReader{reader: bufio.NewReader(r)}
}

// readBytes reads through delim. A canceled context returns ErrInputCancelled
// immediately; the pending read finishes in the background.
func (r *NonBlockingReader) readBytes(ctx context.Context, delim byte) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ErrInputCancelled
	}

	type result struct {
		err   error
		value []byte
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadBytes(delim)
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrInputCancelled
	case res := <-resultCh:
		return res.value, res.err
	}
}

// ReadLine reads a line and trims surrounding whitespace. A final line without
// a newline is returned without error.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	line, err := r.readBytes(ctx, '\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimSpace(string(line)), nil
}

// ReadSecret reads a line into a caller-owned buffer. The caller must zero it.
func (r *NonBlockingReader) ReadSecret(ctx context.Context) ([]byte, error) {
	line, err := r.readBytes(ctx, '\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		clear(line)
		return nil, err
	}
	return bytes.TrimSpace(line), nil
}
