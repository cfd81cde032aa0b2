package archive

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/lunixbochs/struc"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// Signature starts every archive.
const Signature = "!<arch>\n"

// HeaderSize is the size of a member header.
const HeaderSize = 60

// Special member names.
const (
	LinkerMemberName    = "/"
	LongNamesMemberName = "//"
)

// memberMode is written to every header. Linkers ignore it; ar tools
// expect an octal file mode.
const memberMode = "100666"

// maxShortName is the longest member name stored inline; the 16th byte
// holds the '/' terminator.
const maxShortName = 15

var headerEnd = [2]byte{0x60, 0x0A}

// MemberHeader represents IMAGE_ARCHIVE_MEMBER_HEADER. Every field is
// ASCII, left-justified and padded with spaces.
type MemberHeader struct {
	Name    [16]byte `struc:"[16]byte"`
	Date    [12]byte `struc:"[12]byte"`
	UserID  [6]byte  `struc:"[6]byte"`
	GroupID [6]byte  `struc:"[6]byte"`
	Mode    [8]byte  `struc:"[8]byte"`
	Size    [10]byte `struc:"[10]byte"`
	End     [2]byte  `struc:"[2]byte"`
}

// NewMemberHeader builds a header for a member whose name field is name
// ("/", "//", "foo.dll/" or "/123") and whose data is size bytes long.
func NewMemberHeader(name string, size int) (*MemberHeader, error) {
	h := new(MemberHeader)
	if !putField(h.Name[:], name) {
		return nil, fmt.Errorf("%w: 成员名称字段 %q", coff.ErrNameTooLong, name)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: 成员大小 %d", coff.ErrFieldOverflow, size)
	}
	if !putField(h.Size[:], strconv.Itoa(size)) {
		return nil, fmt.Errorf("%w: 成员大小 %d 超出10位", coff.ErrFieldOverflow, size)
	}
	putField(h.Date[:], "-1")
	putField(h.UserID[:], "")
	putField(h.GroupID[:], "")
	putField(h.Mode[:], memberMode)
	h.End = headerEnd
	return h, nil
}

// putField writes s left-justified into field and pads it with spaces.
// It reports false if s does not fit.
func putField(field []byte, s string) bool {
	if len(s) > len(field) {
		return false
	}
	n := copy(field, s)
	for i := n; i < len(field); i++ {
		field[i] = ' '
	}
	return true
}

// Bytes encodes the header.
func (h *MemberHeader) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, h); err != nil {
		return nil, fmt.Errorf("%w: %v", coff.ErrMalformedRecord, err)
	}
	if buf.Len() != HeaderSize {
		return nil, fmt.Errorf("%w: 成员头长度 %d", coff.ErrMalformedRecord, buf.Len())
	}
	return buf.Bytes(), nil
}

// DecodeMemberHeader decodes exactly HeaderSize bytes. The End marker and
// the Size field are validated.
func DecodeMemberHeader(data []byte) (*MemberHeader, error) {
	if len(data) != HeaderSize {
		return nil, fmt.Errorf("%w: 成员头长度 %d 字节 (应为 %d)", coff.ErrMalformedRecord, len(data), HeaderSize)
	}
	h := new(MemberHeader)
	if err := struc.Unpack(bytes.NewReader(data), h); err != nil {
		return nil, fmt.Errorf("%w: %v", coff.ErrMalformedRecord, err)
	}
	if h.End != headerEnd {
		return nil, fmt.Errorf("%w: 成员头结束标记 % X", coff.ErrMalformedRecord, h.End[:])
	}
	if _, err := h.MemberSize(); err != nil {
		return nil, err
	}
	return h, nil
}

// NameField returns the raw name field without space padding.
func (h *MemberHeader) NameField() string {
	return strings.TrimRight(string(h.Name[:]), " ")
}

// MemberSize parses the Size field: decimal digits followed only by spaces.
func (h *MemberHeader) MemberSize() (int, error) {
	return parseDecimal(h.Size[:])
}

func parseDecimal(field []byte) (int, error) {
	n, digits := 0, 0
	for digits < len(field) && field[digits] >= '0' && field[digits] <= '9' {
		n = n*10 + int(field[digits]-'0')
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: 数值字段 %q 不是十进制数", coff.ErrMalformedRecord, field)
	}
	for _, c := range field[digits:] {
		if c != ' ' {
			return 0, fmt.Errorf("%w: 数值字段 %q 含非法字符", coff.ErrMalformedRecord, field)
		}
	}
	return n, nil
}

// shortNameField returns the inline encoding of name, or false if name
// must go to the long-names member.
func shortNameField(name string) (string, bool) {
	if len(name) > maxShortName {
		return "", false
	}
	return name + "/", true
}

// longNameField returns the name field referencing offset in the long-names member.
func longNameField(offset int) (string, error) {
	field := "/" + strconv.Itoa(offset)
	if len(field) > 16 {
		return "", fmt.Errorf("%w: 长名称偏移 %d", coff.ErrNameTooLong, offset)
	}
	return field, nil
}
