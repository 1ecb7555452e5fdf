// Package backwardio implements a line scanner that reads a file from its end
// towards its start.
package backwardio

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var maxTok = bufio.MaxScanTokenSize

// Scanner yields the delimited tokens of a seekable reader in reverse order.
// A single delimiter at the very end of the input does not produce an empty
// token.
type Scanner struct {
	r     io.ReadSeeker
	delim byte

	buf []byte // unconsumed input, ending where the last token started
	off int64  // input offset of buf[0]
	tok []byte
	err error

	started bool
	split   bool // buf is preceded by a delimiter at buf[-1]
	done    bool
}

// NewScanner creates a Scanner splitting r into lines.
func NewScanner(r io.ReadSeeker) *Scanner {
	return &Scanner{r: r, delim: '\n'}
}

// Scan advances to the previous token. It returns false at the start of the
// input or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}

	if !s.started {
		end, err := s.r.Seek(0, io.SeekEnd)
		if err != nil {
			s.err = errors.Wrap(err, "failed to find end of file")
			return false
		}

		s.off = end
		s.started = true

		if err := s.fill(); err != nil {
			s.err = err
			return false
		}

		if n := len(s.buf); n > 0 && s.buf[n-1] == s.delim {
			s.buf = s.buf[:n-1]
		}
	}

	for {
		if i := bytes.LastIndexByte(s.buf, s.delim); i >= 0 {
			s.tok = s.buf[i+1:]
			s.buf = s.buf[:i]
			s.split = true

			if len(s.tok) > maxTok {
				s.err = bufio.ErrTooLong
				return false
			}

			return true
		}

		if s.off == 0 {
			s.done = true

			if len(s.buf) == 0 && !s.split {
				return false
			}

			s.tok = s.buf
			s.buf = nil
			return true
		}

		if len(s.buf) > maxTok {
			s.err = bufio.ErrTooLong
			return false
		}

		if err := s.fill(); err != nil {
			s.err = err
			return false
		}
	}
}

// Bytes returns the current token. It is only valid until the next Scan.
func (s *Scanner) Bytes() []byte { return s.tok }

// Text returns a copy of the current token.
func (s *Scanner) Text() string { return string(s.tok) }

// Err returns the first error encountered, or nil if the scanner simply
// reached the start of the input.
func (s *Scanner) Err() error { return s.err }

// fill prepends the chunk before the unconsumed input to buf.
func (s *Scanner) fill() error {
	n := int64(maxTok)
	if n > s.off {
		n = s.off
	}

	start := s.off - n

	if _, err := s.r.Seek(start, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek backwards")
	}

	chunk := make([]byte, int(n)+len(s.buf))

	if _, err := io.ReadFull(s.r, chunk[:n]); err != nil {
		return errors.Wrap(err, "failed to read seeked chunk")
	}

	copy(chunk[n:], s.buf)

	s.buf = chunk
	s.off = start

	return nil
}

// LastLine returns the last line of r that is not blank. io.EOF is returned if
// there is none.
func LastLine(r io.ReadSeeker) ([]byte, error) {
	s := NewScanner(r)

	for s.Scan() {
		if line := bytes.TrimSpace(s.Bytes()); len(line) > 0 {
			return append([]byte(nil), line...), nil
		}
	}

	if err := s.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}
