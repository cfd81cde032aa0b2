package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// ErrFinalized is returned when a member is added after the archive was written.
var ErrFinalized = errors.New("归档已写出, 不能再添加成员")

// padByte fills odd-sized member data up to an even length.
const padByte = 0x0A

type member struct {
	name    string
	symbols []string
	data    []byte
}

// symbolEntry pairs a symbol name with the member that defines it.
type symbolEntry struct {
	name  string
	owner *member
}

// Builder accumulates members and writes them as one archive.
//
// Members can be added until the first call to Bytes or WriteTo. Writing
// again produces the same bytes.
type Builder struct {
	members   []*member
	finalized bool
}

// NewBuilder creates an empty archive builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len returns the number of members added so far.
func (b *Builder) Len() int {
	return len(b.members)
}

// AddMember appends a member with the given data that defines symbols.
// Several members may share a name.
func (b *Builder) AddMember(name string, symbols []string, data []byte) error {
	if b.finalized {
		return ErrFinalized
	}
	if err := checkName(name); err != nil {
		return fmt.Errorf("成员名称: %w", err)
	}
	for _, s := range symbols {
		if err := checkName(s); err != nil {
			return fmt.Errorf("成员 %s 的符号: %w", name, err)
		}
	}

	b.members = append(b.members, &member{
		name:    name,
		symbols: append([]string(nil), symbols...),
		data:    data,
	})
	return nil
}

// AddObject serializes obj and appends it, exposing its exported symbols.
func (b *Builder) AddObject(name string, obj *coff.ObjectFile) error {
	if b.finalized {
		return ErrFinalized
	}
	data, err := obj.Bytes()
	if err != nil {
		return fmt.Errorf("序列化对象 %s 失败: %w", name, err)
	}
	return b.AddMember(name, obj.ExportedSymbols(), data)
}

// AddImport appends a short import record. The member is named after the DLL.
func (b *Builder) AddImport(rec coff.ImportRecord) error {
	if b.finalized {
		return ErrFinalized
	}
	data, err := rec.Bytes()
	if err != nil {
		return fmt.Errorf("生成导入记录 %s!%s 失败: %w", rec.DLL, rec.Name, err)
	}
	return b.AddMember(rec.DLL, rec.Symbols(), data)
}

func checkName(name string) error {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: %q", coff.ErrInvalidName, name)
	}
	return nil
}

// layout is the result of the sizing pass.
type layout struct {
	nameFields []string // per member
	longNames  []byte
	symbols    []symbolEntry
	sorted     []symbolEntry
	firstSize  int
	secondSize int
	offsets    []uint32 // absolute header offset per member
	index      map[*member]int
}

// paddedSize returns the on-disk size of a member with size data bytes.
func paddedSize(size int) int {
	return HeaderSize + size + size%2
}

func (b *Builder) layout() (*layout, error) {
	l := &layout{
		nameFields: make([]string, len(b.members)),
		offsets:    make([]uint32, len(b.members)),
		index:      make(map[*member]int, len(b.members)),
	}

	if len(b.members) > 0xFFFF {
		return nil, fmt.Errorf("%w: 成员数量 %d 超出16位索引", coff.ErrFieldOverflow, len(b.members))
	}

	// Long names, each stored once in order of first reference.
	longOffsets := make(map[string]int)
	for i, m := range b.members {
		if field, ok := shortNameField(m.name); ok {
			l.nameFields[i] = field
			continue
		}
		offset, seen := longOffsets[m.name]
		if !seen {
			offset = len(l.longNames)
			longOffsets[m.name] = offset
			l.longNames = append(l.longNames, m.name...)
			l.longNames = append(l.longNames, 0)
		}
		field, err := longNameField(offset)
		if err != nil {
			return nil, err
		}
		l.nameFields[i] = field
	}

	stringTableSize := 0
	for _, m := range b.members {
		for _, s := range m.symbols {
			l.symbols = append(l.symbols, symbolEntry{name: s, owner: m})
			stringTableSize += len(s) + 1
		}
	}

	l.sorted = append([]symbolEntry(nil), l.symbols...)
	sort.SliceStable(l.sorted, func(i, j int) bool {
		return l.sorted[i].name < l.sorted[j].name
	})

	l.firstSize = 4 + 4*len(l.symbols) + stringTableSize
	l.secondSize = 4 + 4*len(b.members) + 4 + 2*len(l.symbols) + stringTableSize

	bias := len(Signature) + paddedSize(l.firstSize) + paddedSize(l.secondSize)
	if len(l.longNames) > 0 {
		bias += paddedSize(len(l.longNames))
	}

	offset := uint64(bias)
	for i, m := range b.members {
		if offset > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: 成员 %s 偏移 %d 超出32位", coff.ErrFieldOverflow, m.name, offset)
		}
		l.offsets[i] = uint32(offset)
		l.index[m] = i + 1
		offset += uint64(paddedSize(len(m.data)))
	}

	return l, nil
}

// owner returns the 1-based member index of a symbol.
func (l *layout) owner(s symbolEntry) (int, error) {
	idx, ok := l.index[s.owner]
	if !ok {
		return 0, fmt.Errorf("%w: %q", coff.ErrUnresolvedSymbolOwner, s.name)
	}
	return idx, nil
}

// firstLinkerMember encodes the symbol table in insertion order with
// big-endian offsets.
func (l *layout) firstLinkerMember() ([]byte, error) {
	buf := make([]byte, 0, l.firstSize)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(l.symbols)))
	for _, s := range l.symbols {
		idx, err := l.owner(s)
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, l.offsets[idx-1])
	}
	return appendNames(buf, l.symbols), nil
}

// secondLinkerMember encodes the member offsets and the name-sorted
// symbol table, little-endian.
func (l *layout) secondLinkerMember() ([]byte, error) {
	buf := make([]byte, 0, l.secondSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(l.offsets)))
	for _, off := range l.offsets {
		buf = binary.LittleEndian.AppendUint32(buf, off)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(l.sorted)))
	for _, s := range l.sorted {
		idx, err := l.owner(s)
		if err != nil {
			return nil, err
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(idx))
	}
	return appendNames(buf, l.sorted), nil
}

func appendNames(buf []byte, symbols []symbolEntry) []byte {
	for _, s := range symbols {
		buf = append(buf, s.name...)
		buf = append(buf, 0)
	}
	return buf
}

// Bytes lays out and serializes the archive. No output is produced unless
// the whole layout succeeds.
func (b *Builder) Bytes() ([]byte, error) {
	b.finalized = true

	l, err := b.layout()
	if err != nil {
		return nil, err
	}

	first, err := l.firstLinkerMember()
	if err != nil {
		return nil, err
	}
	second, err := l.secondLinkerMember()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(Signature)

	if err := writeMember(&buf, LinkerMemberName, first); err != nil {
		return nil, fmt.Errorf("写入第一链接器成员失败: %w", err)
	}
	if err := writeMember(&buf, LinkerMemberName, second); err != nil {
		return nil, fmt.Errorf("写入第二链接器成员失败: %w", err)
	}
	if len(l.longNames) > 0 {
		if err := writeMember(&buf, LongNamesMemberName, l.longNames); err != nil {
			return nil, fmt.Errorf("写入长名称成员失败: %w", err)
		}
	}

	for i, m := range b.members {
		if uint32(buf.Len()) != l.offsets[i] {
			return nil, fmt.Errorf("%w: 成员 %s 偏移 %d, 布局为 %d", coff.ErrLayoutMismatch, m.name, buf.Len(), l.offsets[i])
		}
		if err := writeMember(&buf, l.nameFields[i], m.data); err != nil {
			return nil, fmt.Errorf("写入成员 %s 失败: %w", m.name, err)
		}
	}

	return buf.Bytes(), nil
}

// WriteTo writes the archive to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	data, err := b.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func writeMember(buf *bytes.Buffer, nameField string, data []byte) error {
	h, err := NewMemberHeader(nameField, len(data))
	if err != nil {
		return err
	}
	header, err := h.Bytes()
	if err != nil {
		return err
	}
	buf.Write(header)
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(padByte)
	}
	return nil
}
