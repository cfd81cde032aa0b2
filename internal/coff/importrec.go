package coff

import (
	"fmt"
	"strings"
)

// ImportType is IMPORT_OBJECT_TYPE.
type ImportType uint8

// Import types.
const (
	ImportCode ImportType = iota
	ImportData
	ImportConst
)

// NameType is IMPORT_OBJECT_NAME_TYPE.
type NameType uint8

// Name types.
const (
	NameOrdinal NameType = iota
	NameName
	NameNoPrefix
	NameUndecorate
	NameExportAs
)

const importObjectHeaderSig2 = 0xFFFF

var importTypeNames = []string{"code", "data", "const"}

var nameTypeNames = []string{"ordinal", "name", "name_no_prefix", "name_undecorate", "name_exportas"}

func (t ImportType) String() string {
	if int(t) < len(importTypeNames) {
		return importTypeNames[t]
	}
	return fmt.Sprintf("未知 (%d)", uint8(t))
}

func (t NameType) String() string {
	if int(t) < len(nameTypeNames) {
		return nameTypeNames[t]
	}
	return fmt.Sprintf("未知 (%d)", uint8(t))
}

// ParseImportType parses "code", "data" or "const".
func ParseImportType(s string) (ImportType, error) {
	for i, name := range importTypeNames {
		if strings.EqualFold(s, name) {
			return ImportType(i), nil
		}
	}
	return 0, fmt.Errorf("未知的导入类型: %q", s)
}

// ParseNameType parses a name type such as "name" or "ordinal".
func ParseNameType(s string) (NameType, error) {
	for i, name := range nameTypeNames {
		if strings.EqualFold(s, name) {
			return NameType(i), nil
		}
	}
	return 0, fmt.Errorf("未知的名称类型: %q", s)
}

// ImportRecord is a short import record: one imported symbol described
// without a full object file.
type ImportRecord struct {
	Machine  Machine
	Type     ImportType
	NameType NameType
	Ordinal  uint16 // ordinal for NameOrdinal, hint otherwise
	Name     string // exported symbol name
	DLL      string
}

// Symbols returns the names the record defines: the bare name and the
// __imp_ pointer alias.
func (r *ImportRecord) Symbols() []string {
	return []string{r.Name, ImportPointerPrefix + r.Name}
}

// Bytes encodes the header followed by the export name and DLL name, both
// NUL-terminated.
func (r *ImportRecord) Bytes() ([]byte, error) {
	if !r.Machine.Supported() {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnsupportedMachine, uint16(r.Machine))
	}
	if r.Name == "" || strings.IndexByte(r.Name, 0) >= 0 {
		return nil, fmt.Errorf("%w: 导出名称 %q", ErrInvalidName, r.Name)
	}
	if r.DLL == "" || strings.IndexByte(r.DLL, 0) >= 0 {
		return nil, fmt.Errorf("%w: DLL名称 %q", ErrInvalidName, r.DLL)
	}

	data := Concat([]byte(r.Name), []byte{0}, []byte(r.DLL), []byte{0})

	h := ImportHeader{
		Sig1:          uint16(MachineUnknown),
		Sig2:          importObjectHeaderSig2,
		Machine:       uint16(r.Machine),
		SizeOfData:    uint32(len(data)),
		OrdinalOrHint: r.Ordinal,
		Type:          uint16(r.Type)&0x3 | (uint16(r.NameType)&0x7)<<2,
	}
	header, err := h.Bytes()
	if err != nil {
		return nil, err
	}

	return Concat(header, data), nil
}

// IsImportRecord reports whether data starts with a short import header.
func IsImportRecord(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0 && data[1] == 0 &&
		data[2] == 0xFF && data[3] == 0xFF
}

// DecodeImportRecord decodes a short import record.
func DecodeImportRecord(data []byte) (*ImportRecord, error) {
	if len(data) < ImportHeaderSize {
		return nil, fmt.Errorf("%w: 短导入记录长度 %d", ErrMalformedRecord, len(data))
	}
	h, err := DecodeImportHeader(data[:ImportHeaderSize])
	if err != nil {
		return nil, err
	}
	if h.Sig1 != uint16(MachineUnknown) || h.Sig2 != importObjectHeaderSig2 {
		return nil, fmt.Errorf("%w: 短导入记录签名错误", ErrMalformedRecord)
	}

	body := data[ImportHeaderSize:]
	if uint64(h.SizeOfData) != uint64(len(body)) {
		return nil, fmt.Errorf("%w: SizeOfData %d, 实际 %d", ErrMalformedRecord, h.SizeOfData, len(body))
	}

	strs, err := SplitCStrings(body, 2)
	if err != nil {
		return nil, err
	}

	return &ImportRecord{
		Machine:  Machine(h.Machine),
		Type:     ImportType(h.Type & 0x3),
		NameType: NameType((h.Type >> 2) & 0x7),
		Ordinal:  h.OrdinalOrHint,
		Name:     strs[0],
		DLL:      strs[1],
	}, nil
}
