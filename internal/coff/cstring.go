package coff

import (
	"bytes"
	"fmt"
	"io"
)

// ReadCString reads a null-terminated string at the given offset.
func ReadCString(r io.ReaderAt, offset int64) (string, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)

	for {
		_, err := r.ReadAt(b, offset)
		if err != nil {
			return "", fmt.Errorf("%w: 字符串在偏移 %d 处未终止", ErrMalformedRecord, offset)
		}
		if b[0] == 0 {
			break
		}
		buf.WriteByte(b[0])
		offset++
	}

	return buf.String(), nil
}

// SplitCStrings splits a blob of NUL-terminated strings. The blob must end
// with a terminator; want < 0 accepts any count.
func SplitCStrings(data []byte, want int) ([]string, error) {
	var out []string
	r := bytes.NewReader(data)
	for offset := int64(0); offset < int64(len(data)); {
		s, err := ReadCString(r, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		offset += int64(len(s)) + 1
	}
	if want >= 0 && len(out) != want {
		return nil, fmt.Errorf("%w: 字符串数量 %d (应为 %d)", ErrMalformedRecord, len(out), want)
	}
	return out, nil
}
