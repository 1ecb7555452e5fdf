package ffi

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// appendField appends one field in the journald native protocol encoding. A
// field whose value holds a newline is written as the name, a newline, the
// value length as a little-endian uint64 and the raw value; everything else is
// written as-is. Either form is followed by a newline.
func appendField(dst, field []byte) ([]byte, error) {
	eq := bytes.IndexByte(field, '=')
	if eq <= 0 {
		return dst, errors.Wrapf(unix.EINVAL, "field %q is not KEY=VALUE", truncate(field))
	}

	name, value := field[:eq], field[eq+1:]

	if bytes.IndexByte(value, '\n') == -1 {
		dst = append(dst, field...)
		return append(dst, '\n'), nil
	}

	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(value)))

	dst = append(dst, name...)
	dst = append(dst, '\n')
	dst = append(dst, size[:]...)
	dst = append(dst, value...)
	return append(dst, '\n'), nil
}

// encodeEntry encodes a whole entry into a single datagram payload.
func encodeEntry(fields [][]byte) ([]byte, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(unix.EINVAL, "entry has no fields")
	}

	size := 0
	for _, f := range fields {
		size += len(f) + 9
	}

	buf := make([]byte, 0, size)

	for _, f := range fields {
		var err error
		if buf, err = appendField(buf, f); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

func truncate(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
