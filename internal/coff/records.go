package coff

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// On-disk record sizes. All records are packed with 1-byte alignment.
const (
	FileHeaderSize    = 20
	SectionHeaderSize = 40
	SymbolSize        = 18
	RelocationSize    = 10
	ImportHeaderSize  = 20
)

// FileHeader represents IMAGE_FILE_HEADER.
type FileHeader struct {
	Machine              uint16 `struc:"uint16,little"`
	NumberOfSections     uint16 `struc:"uint16,little"`
	TimeDateStamp        uint32 `struc:"uint32,little"`
	PointerToSymbolTable uint32 `struc:"uint32,little"`
	NumberOfSymbols      uint32 `struc:"uint32,little"`
	SizeOfOptionalHeader uint16 `struc:"uint16,little"`
	Characteristics      uint16 `struc:"uint16,little"`
}

// SectionHeader represents IMAGE_SECTION_HEADER.
type SectionHeader struct {
	Name                 [8]byte `struc:"[8]byte"`
	VirtualSize          uint32  `struc:"uint32,little"`
	VirtualAddress       uint32  `struc:"uint32,little"`
	SizeOfRawData        uint32  `struc:"uint32,little"`
	PointerToRawData     uint32  `struc:"uint32,little"`
	PointerToRelocations uint32  `struc:"uint32,little"`
	PointerToLinenumbers uint32  `struc:"uint32,little"`
	NumberOfRelocations  uint16  `struc:"uint16,little"`
	NumberOfLinenumbers  uint16  `struc:"uint16,little"`
	Characteristics      uint32  `struc:"uint32,little"`
}

// SymbolRecord represents IMAGE_SYMBOL.
//
// Type is kept as one 16-bit value; TypeMSB and TypeLSB split it into the
// complex type (high byte) and base type (low byte).
type SymbolRecord struct {
	Name               [8]byte `struc:"[8]byte"`
	Value              uint32  `struc:"uint32,little"`
	SectionNumber      int16   `struc:"int16,little"`
	Type               uint16  `struc:"uint16,little"`
	StorageClass       uint8   `struc:"uint8"`
	NumberOfAuxSymbols uint8   `struc:"uint8"`
}

// RelocationRecord represents IMAGE_RELOCATION.
type RelocationRecord struct {
	VirtualAddress   uint32 `struc:"uint32,little"`
	SymbolTableIndex uint32 `struc:"uint32,little"`
	Type             uint16 `struc:"uint16,little"`
}

// ImportHeader represents IMPORT_OBJECT_HEADER, the header of a short
// import record.
type ImportHeader struct {
	Sig1          uint16 `struc:"uint16,little"`
	Sig2          uint16 `struc:"uint16,little"`
	Version       uint16 `struc:"uint16,little"`
	Machine       uint16 `struc:"uint16,little"`
	TimeDateStamp uint32 `struc:"uint32,little"`
	SizeOfData    uint32 `struc:"uint32,little"`
	OrdinalOrHint uint16 `struc:"uint16,little"`
	Type          uint16 `struc:"uint16,little"`
}

// Bytes encodes the file header.
func (h *FileHeader) Bytes() ([]byte, error) {
	return encodeRecord(h, FileHeaderSize)
}

// DecodeFileHeader decodes exactly FileHeaderSize bytes.
func DecodeFileHeader(data []byte) (*FileHeader, error) {
	h := new(FileHeader)
	if err := decodeRecord(data, FileHeaderSize, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Bytes encodes the section header.
func (h *SectionHeader) Bytes() ([]byte, error) {
	return encodeRecord(h, SectionHeaderSize)
}

// SectionName returns the section name without NUL padding.
func (h *SectionHeader) SectionName() string {
	return string(bytes.TrimRight(h.Name[:], "\x00"))
}

// DecodeSectionHeader decodes exactly SectionHeaderSize bytes.
func DecodeSectionHeader(data []byte) (*SectionHeader, error) {
	h := new(SectionHeader)
	if err := decodeRecord(data, SectionHeaderSize, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Bytes encodes the symbol record.
func (s *SymbolRecord) Bytes() ([]byte, error) {
	return encodeRecord(s, SymbolSize)
}

// TypeMSB returns the complex type byte.
func (s *SymbolRecord) TypeMSB() uint8 {
	return uint8(s.Type >> 8)
}

// TypeLSB returns the base type byte.
func (s *SymbolRecord) TypeLSB() uint8 {
	return uint8(s.Type)
}

// SetType combines the complex and base type bytes into Type.
func (s *SymbolRecord) SetType(msb, lsb uint8) {
	s.Type = uint16(msb)<<8 | uint16(lsb)
}

// SetShortName stores name inline. It returns false if name does not fit
// into the 8-byte field.
func (s *SymbolRecord) SetShortName(name string) bool {
	if len(name) > len(s.Name) {
		return false
	}
	s.Name = [8]byte{}
	copy(s.Name[:], name)
	return true
}

// SetNameOffset points the symbol name at a string table offset.
func (s *SymbolRecord) SetNameOffset(offset uint32) {
	binary.LittleEndian.PutUint32(s.Name[0:4], 0)
	binary.LittleEndian.PutUint32(s.Name[4:8], offset)
}

// NameOffset returns the string table offset if the name is stored there.
func (s *SymbolRecord) NameOffset() (uint32, bool) {
	if binary.LittleEndian.Uint32(s.Name[0:4]) != 0 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(s.Name[4:8]), true
}

// ShortName returns the inline name without NUL padding.
func (s *SymbolRecord) ShortName() string {
	return string(bytes.TrimRight(s.Name[:], "\x00"))
}

// DecodeSymbol decodes exactly SymbolSize bytes.
func DecodeSymbol(data []byte) (*SymbolRecord, error) {
	s := new(SymbolRecord)
	if err := decodeRecord(data, SymbolSize, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Bytes encodes the relocation record.
func (r *RelocationRecord) Bytes() ([]byte, error) {
	return encodeRecord(r, RelocationSize)
}

// DecodeRelocation decodes exactly RelocationSize bytes.
func DecodeRelocation(data []byte) (*RelocationRecord, error) {
	r := new(RelocationRecord)
	if err := decodeRecord(data, RelocationSize, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Bytes encodes the import header.
func (h *ImportHeader) Bytes() ([]byte, error) {
	return encodeRecord(h, ImportHeaderSize)
}

// DecodeImportHeader decodes exactly ImportHeaderSize bytes.
func DecodeImportHeader(data []byte) (*ImportHeader, error) {
	h := new(ImportHeader)
	if err := decodeRecord(data, ImportHeaderSize, h); err != nil {
		return nil, err
	}
	return h, nil
}

func encodeRecord(v interface{}, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if buf.Len() != size {
		return nil, fmt.Errorf("%w: 编码长度 %d 字节 (应为 %d)", ErrMalformedRecord, buf.Len(), size)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte, size int, v interface{}) error {
	if len(data) != size {
		return fmt.Errorf("%w: 长度 %d 字节 (应为 %d)", ErrMalformedRecord, len(data), size)
	}
	if err := struc.Unpack(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
