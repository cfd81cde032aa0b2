package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// Member is one data member of a parsed archive.
type Member struct {
	Name    string
	Offset  uint32 // file offset of the member header
	Data    []byte
	Symbols []string // in second linker member order

	// Import is set when the member is a short import record.
	Import *coff.ImportRecord
}

// Symbol is a symbol table entry. Member is the 1-based member index.
type Symbol struct {
	Name   string
	Member int
}

// File is a parsed archive.
type File struct {
	Members []*Member

	// FirstLinker lists symbols in the first linker member's order.
	FirstLinker []Symbol
	// SecondLinker lists symbols in the second linker member's sorted order.
	SecondLinker []Symbol

	LongNames []byte
}

// Open reads and parses the archive at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件: %w", err)
	}
	return Parse(data)
}

// Parse parses an archive held in memory.
func Parse(data []byte) (*File, error) {
	if !bytes.HasPrefix(data, []byte(Signature)) {
		return nil, fmt.Errorf("%w: 缺少归档签名", coff.ErrMalformedRecord)
	}

	var (
		f            File
		firstOffsets []uint32
		memberTable  []uint32
		indices      []uint16
		names        []string
	)

	offset := len(Signature)

	i := 0
	for ; offset < len(data); i++ {
		raw, err := coff.Slice(data, offset, HeaderSize)
		if err != nil {
			return nil, fmt.Errorf("%w: 偏移 %d 处成员头不完整", coff.ErrMalformedRecord, offset)
		}
		h, err := DecodeMemberHeader(raw)
		if err != nil {
			return nil, fmt.Errorf("偏移 %d 处成员头: %w", offset, err)
		}
		size, _ := h.MemberSize()
		if size > len(data)-offset-HeaderSize {
			return nil, fmt.Errorf("%w: 偏移 %d 处成员大小 %d 超出文件", coff.ErrMalformedRecord, offset, size)
		}
		body := data[offset+HeaderSize : offset+HeaderSize+size]

		name := h.NameField()
		switch {
		case i == 0:
			if name != LinkerMemberName {
				return nil, fmt.Errorf("%w: 缺少第一链接器成员", coff.ErrMalformedRecord)
			}
			if names, firstOffsets, err = parseFirstLinkerMember(body); err != nil {
				return nil, err
			}
			for _, n := range names {
				f.FirstLinker = append(f.FirstLinker, Symbol{Name: n})
			}
		case i == 1:
			if name != LinkerMemberName {
				return nil, fmt.Errorf("%w: 缺少第二链接器成员", coff.ErrMalformedRecord)
			}
			if memberTable, indices, names, err = parseSecondLinkerMember(body); err != nil {
				return nil, err
			}
			for j, n := range names {
				f.SecondLinker = append(f.SecondLinker, Symbol{Name: n, Member: int(indices[j])})
			}
		case i == 2 && name == LongNamesMemberName:
			f.LongNames = body
		default:
			m, err := f.newMember(name, uint32(offset), body)
			if err != nil {
				return nil, err
			}
			f.Members = append(f.Members, m)
		}

		offset += paddedSize(size)
	}

	if i < 2 {
		return nil, fmt.Errorf("%w: 缺少链接器成员", coff.ErrMalformedRecord)
	}
	if err := f.resolve(firstOffsets, memberTable); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) newMember(field string, offset uint32, data []byte) (*Member, error) {
	name, err := f.memberName(field)
	if err != nil {
		return nil, err
	}

	m := &Member{Name: name, Offset: offset, Data: data}
	if coff.IsImportRecord(data) {
		rec, err := coff.DecodeImportRecord(data)
		if err != nil {
			return nil, fmt.Errorf("成员 %s 的导入记录: %w", name, err)
		}
		m.Import = rec
	}
	return m, nil
}

// memberName resolves a name field, following "/<n>" into the long-names member.
func (f *File) memberName(field string) (string, error) {
	if strings.HasSuffix(field, "/") {
		return strings.TrimSuffix(field, "/"), nil
	}
	if !strings.HasPrefix(field, "/") {
		return field, nil
	}

	n, err := strconv.Atoi(field[1:])
	if err != nil || n < 0 || n >= len(f.LongNames) {
		return "", fmt.Errorf("%w: 长名称引用 %q", coff.ErrMalformedRecord, field)
	}
	return coff.ReadCString(bytes.NewReader(f.LongNames), int64(n))
}

// resolve checks both symbol tables against the members actually found and
// attributes symbols to members.
func (f *File) resolve(firstOffsets, memberTable []uint32) error {
	if len(memberTable) != len(f.Members) {
		return fmt.Errorf("%w: 第二链接器成员记录 %d 个成员, 实际 %d 个", coff.ErrMalformedRecord, len(memberTable), len(f.Members))
	}

	byOffset := make(map[uint32]int, len(f.Members))
	for i, m := range f.Members {
		if memberTable[i] != m.Offset {
			return fmt.Errorf("%w: 成员 %d 偏移 %d, 实际 %d", coff.ErrMalformedRecord, i+1, memberTable[i], m.Offset)
		}
		byOffset[m.Offset] = i + 1
	}

	for i, off := range firstOffsets {
		idx, ok := byOffset[off]
		if !ok {
			return fmt.Errorf("%w: 符号 %s 指向无效偏移 %d", coff.ErrMalformedRecord, f.FirstLinker[i].Name, off)
		}
		f.FirstLinker[i].Member = idx
	}

	for _, s := range f.SecondLinker {
		m := f.Members[s.Member-1]
		m.Symbols = append(m.Symbols, s.Name)
	}
	return nil
}

// Lookup returns the member defining symbol, searching the sorted table.
func (f *File) Lookup(symbol string) (*Member, bool) {
	i := sort.Search(len(f.SecondLinker), func(i int) bool {
		return f.SecondLinker[i].Name >= symbol
	})
	if i < len(f.SecondLinker) && f.SecondLinker[i].Name == symbol {
		return f.Members[f.SecondLinker[i].Member-1], true
	}
	return nil, false
}

func parseFirstLinkerMember(data []byte) ([]string, []uint32, error) {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, nil, fmt.Errorf("%w: 第一链接器成员过短", coff.ErrMalformedRecord)
	}
	if uint64(count)*4 > uint64(r.Len()) {
		return nil, nil, fmt.Errorf("%w: 第一链接器成员符号数 %d", coff.ErrMalformedRecord, count)
	}
	offsets := make([]uint32, count)
	if err := binary.Read(r, binary.BigEndian, offsets); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", coff.ErrMalformedRecord, err)
	}

	names, err := coff.SplitCStrings(data[len(data)-r.Len():], int(count))
	if err != nil {
		return nil, nil, fmt.Errorf("第一链接器成员: %w", err)
	}
	return names, offsets, nil
}

func parseSecondLinkerMember(data []byte) ([]uint32, []uint16, []string, error) {
	r := bytes.NewReader(data)

	var memberCount uint32
	if err := binary.Read(r, binary.LittleEndian, &memberCount); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: 第二链接器成员过短", coff.ErrMalformedRecord)
	}
	if uint64(memberCount)*4 > uint64(r.Len()) {
		return nil, nil, nil, fmt.Errorf("%w: 第二链接器成员成员数 %d", coff.ErrMalformedRecord, memberCount)
	}
	offsets := make([]uint32, memberCount)
	if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", coff.ErrMalformedRecord, err)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, nil, nil, fmt.Errorf("%w: 成员偏移未递增 (%d < %d)", coff.ErrMalformedRecord, offsets[i], offsets[i-1])
		}
	}

	var symbolCount uint32
	if err := binary.Read(r, binary.LittleEndian, &symbolCount); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: 第二链接器成员缺少符号数", coff.ErrMalformedRecord)
	}
	if uint64(symbolCount)*2 > uint64(r.Len()) {
		return nil, nil, nil, fmt.Errorf("%w: 第二链接器成员符号数 %d", coff.ErrMalformedRecord, symbolCount)
	}
	indices := make([]uint16, symbolCount)
	if err := binary.Read(r, binary.LittleEndian, indices); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", coff.ErrMalformedRecord, err)
	}
	for _, idx := range indices {
		if idx == 0 || uint32(idx) > memberCount {
			return nil, nil, nil, fmt.Errorf("%w: 成员索引 %d 超出范围", coff.ErrMalformedRecord, idx)
		}
	}

	names, err := coff.SplitCStrings(data[len(data)-r.Len():], int(symbolCount))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("第二链接器成员: %w", err)
	}
	return offsets, indices, names, nil
}
