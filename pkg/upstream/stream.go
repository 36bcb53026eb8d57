package upstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
)

// maxLineSize bounds one SSE line; large tool-call deltas fit well within
// this.
const maxLineSize = 1024 * 1024

// Stream is a lazy, finite, non-restartable sequence of upstream response
// chunks. Once the first chunk has been handed to the caller, the stream
// is committed: a later failure terminates it and is never replaced by a
// different candidate's output.
type Stream struct {
	// Candidate is the upstream serving this stream.
	Candidate routing.Candidate

	body    io.ReadCloser
	scanner *bufio.Scanner

	// first is the pre-read commit chunk, returned by the initial Recv.
	first *Chunk

	onFinish   func(kind metrics.OutcomeKind)
	finishOnce sync.Once

	closed bool
}

// NewStream wraps a raw SSE body as a Stream. Chunks are parsed lazily;
// Recv returns io.EOF at the [DONE] marker or at body end. No outcome is
// recorded; the executor attaches recording through its own construction.
func NewStream(candidate routing.Candidate, body io.ReadCloser) *Stream {
	return newStream(candidate, body, newSSEScanner(body), nil, nil)
}

// newStream wraps an upstream SSE body. The first chunk must already have
// been read by the executor (it is the failover commit point).
func newStream(candidate routing.Candidate, body io.ReadCloser, scanner *bufio.Scanner, first *Chunk, onFinish func(metrics.OutcomeKind)) *Stream {
	return &Stream{
		Candidate: candidate,
		body:      body,
		scanner:   scanner,
		first:     first,
		onFinish:  onFinish,
	}
}

// Recv returns the next chunk.
//
// Returns io.EOF at normal end of stream. Cancellation of ctx stops the
// relay immediately, releases the upstream connection, and records the
// attempt as cancelled rather than errored.
func (s *Stream) Recv(ctx context.Context) (*Chunk, error) {
	if s.closed {
		return nil, io.EOF
	}

	if s.first != nil {
		chunk := s.first
		s.first = nil
		return chunk, nil
	}

	select {
	case <-ctx.Done():
		s.finish(metrics.OutcomeCancelled)
		s.Close()
		return nil, ctx.Err()
	default:
	}

	chunk, err := readChunk(s.scanner)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.finish(metrics.OutcomeSuccess)
		} else if errors.Is(err, context.Canceled) {
			s.finish(metrics.OutcomeCancelled)
		} else {
			s.finish(metrics.OutcomeError)
			err = fmt.Errorf("%w: %w", ErrStreamStarted, err)
		}
		s.Close()
		return nil, err
	}
	return chunk, nil
}

// Close releases the upstream connection. A stream abandoned before EOF
// is recorded as cancelled.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.finish(metrics.OutcomeCancelled)
	return s.body.Close()
}

func (s *Stream) finish(kind metrics.OutcomeKind) {
	s.finishOnce.Do(func() {
		if s.onFinish != nil {
			s.onFinish(kind)
		}
	})
}

// newSSEScanner builds a line scanner over an SSE body with a bounded
// buffer.
func newSSEScanner(body io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return scanner
}

// readChunk reads the next SSE data event. Returns io.EOF at the [DONE]
// marker or stream end; non-data lines (comments, event names) are
// skipped.
func readChunk(scanner *bufio.Scanner) (*Chunk, error) {
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil, io.EOF
		}
		return &Chunk{Data: []byte(data)}, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
