package coff

import "fmt"

// Concat joins buffers into one newly allocated slice.
func Concat(bufs ...[]byte) []byte {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// Slice copies data[offset:offset+size] into a new slice.
func Slice(data []byte, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset > len(data) || size > len(data)-offset {
		return nil, fmt.Errorf("%w: 范围 [%d, %d) 超出 %d 字节", ErrMalformedRecord, offset, offset+size, len(data))
	}
	out := make([]byte, size)
	copy(out, data[offset:])
	return out, nil
}
