package coff

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Section alignment flags.
const (
	IMAGE_SCN_ALIGN_1BYTES = 0x00100000
	IMAGE_SCN_ALIGN_2BYTES = 0x00200000
	IMAGE_SCN_ALIGN_4BYTES = 0x00300000
	IMAGE_SCN_ALIGN_8BYTES = 0x00400000
)

// Symbol storage classes.
const (
	IMAGE_SYM_CLASS_EXTERNAL = 0x02
	IMAGE_SYM_CLASS_STATIC   = 0x03
	IMAGE_SYM_CLASS_SECTION  = 0x68
)

// Symbol type bytes.
const (
	IMAGE_SYM_TYPE_NULL      = 0
	IMAGE_SYM_DTYPE_NULL     = 0
	IMAGE_SYM_DTYPE_FUNCTION = 2
)

// IdataCharacteristics are the contents/permission flags of every .idata$N section.
const IdataCharacteristics = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE

// timeDateStampUnset is written instead of a real timestamp so output is reproducible.
const timeDateStampUnset = 0xFFFFFFFF

// Section is one section of an object file under construction.
type Section struct {
	Name            string
	Characteristics uint32
	Data            []byte
	Relocations     []RelocationRecord
}

// ObjectFile accumulates sections and symbols of a single COFF object.
// File offsets are derived from the accumulated content whenever they are
// needed, so they can never drift from what Bytes writes.
type ObjectFile struct {
	machine         Machine
	characteristics uint16
	sections        []*Section
	symbols         []SymbolRecord
	stringTable     []string
	exports         []string
}

// NewObjectFile creates an empty object file for machine.
func NewObjectFile(machine Machine) (*ObjectFile, error) {
	characteristics, err := machine.Characteristics()
	if err != nil {
		return nil, err
	}
	return &ObjectFile{
		machine:         machine,
		characteristics: characteristics,
	}, nil
}

// Machine returns the target machine.
func (o *ObjectFile) Machine() Machine {
	return o.machine
}

// AddSection appends a section and returns its 1-based section number.
// align is one of the IMAGE_SCN_ALIGN_* flags and is merged into the
// .idata characteristics.
func (o *ObjectFile) AddSection(name string, align uint32, data []byte, relocs []RelocationRecord) (int16, error) {
	if len(name) > 8 {
		return 0, fmt.Errorf("%w: 节区名称 %q 超过8字节", ErrNameTooLong, name)
	}
	if len(relocs) > 0xFFFF {
		return 0, fmt.Errorf("%w: 节区 %s 重定位数量 %d", ErrFieldOverflow, name, len(relocs))
	}
	if len(o.sections) >= 0x7FFF {
		return 0, fmt.Errorf("%w: 节区数量过多", ErrFieldOverflow)
	}

	o.sections = append(o.sections, &Section{
		Name:            name,
		Characteristics: IdataCharacteristics | align,
		Data:            data,
		Relocations:     relocs,
	})
	return int16(len(o.sections)), nil
}

// AddSymbol appends a symbol. Names longer than 8 bytes go to the string
// table. External symbols defined in a section are recorded as exports.
func (o *ObjectFile) AddSymbol(name string, value uint32, sectionNumber int16, typeMSB, typeLSB, storageClass uint8) error {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: 符号名称 %q", ErrInvalidName, name)
	}

	var sym SymbolRecord
	if !sym.SetShortName(name) {
		sym.SetNameOffset(o.stringTableSize())
		o.stringTable = append(o.stringTable, name)
	}
	sym.Value = value
	sym.SectionNumber = sectionNumber
	sym.SetType(typeMSB, typeLSB)
	sym.StorageClass = storageClass

	o.symbols = append(o.symbols, sym)

	if storageClass == IMAGE_SYM_CLASS_EXTERNAL && sectionNumber > 0 {
		o.exports = append(o.exports, name)
	}
	return nil
}

// ExportedSymbols returns the external symbols this object defines, in the
// order they were added.
func (o *ObjectFile) ExportedSymbols() []string {
	return append([]string(nil), o.exports...)
}

// NumberOfSections returns the section count.
func (o *ObjectFile) NumberOfSections() int {
	return len(o.sections)
}

// NumberOfSymbols returns the symbol count.
func (o *ObjectFile) NumberOfSymbols() int {
	return len(o.symbols)
}

// SectionHeaders returns the section headers with raw-data and relocation
// pointers laid out for the current content.
func (o *ObjectFile) SectionHeaders() []SectionHeader {
	headers, _ := o.layout()
	return headers
}

// SymbolTableOffset returns the file offset of the symbol table, which
// always follows every section's data and relocations.
func (o *ObjectFile) SymbolTableOffset() uint32 {
	_, offset := o.layout()
	return offset
}

// FileHeader returns the file header for the current content.
func (o *ObjectFile) FileHeader() FileHeader {
	return FileHeader{
		Machine:              uint16(o.machine),
		NumberOfSections:     uint16(len(o.sections)),
		TimeDateStamp:        timeDateStampUnset,
		PointerToSymbolTable: o.SymbolTableOffset(),
		NumberOfSymbols:      uint32(len(o.symbols)),
		Characteristics:      o.characteristics,
	}
}

// layout computes section headers and the symbol table offset.
func (o *ObjectFile) layout() ([]SectionHeader, uint32) {
	headers := make([]SectionHeader, len(o.sections))
	offset := uint32(FileHeaderSize + SectionHeaderSize*len(o.sections))

	for i, s := range o.sections {
		h := &headers[i]
		copy(h.Name[:], s.Name)
		h.SizeOfRawData = uint32(len(s.Data))
		h.NumberOfRelocations = uint16(len(s.Relocations))
		h.Characteristics = s.Characteristics

		if len(s.Data) > 0 {
			h.PointerToRawData = offset
			offset += uint32(len(s.Data))
		}
		if len(s.Relocations) > 0 {
			h.PointerToRelocations = offset
			offset += uint32(len(s.Relocations) * RelocationSize)
		}
	}

	return headers, offset
}

// stringTableSize returns the string table size including its 4-byte length field.
func (o *ObjectFile) stringTableSize() uint32 {
	size := uint32(4)
	for _, s := range o.stringTable {
		size += uint32(len(s)) + 1
	}
	return size
}

// Bytes serializes the object: file header, section headers, section data
// and relocations, symbol table, string table.
func (o *ObjectFile) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	fh := o.FileHeader()
	if err := writeRecord(&buf, &fh); err != nil {
		return nil, fmt.Errorf("写入文件头失败: %w", err)
	}

	headers, _ := o.layout()
	for i := range headers {
		if err := writeRecord(&buf, &headers[i]); err != nil {
			return nil, fmt.Errorf("写入节区头失败: %w", err)
		}
	}

	for _, s := range o.sections {
		buf.Write(s.Data)
		for i := range s.Relocations {
			if err := writeRecord(&buf, &s.Relocations[i]); err != nil {
				return nil, fmt.Errorf("写入重定位失败: %w", err)
			}
		}
	}

	for i := range o.symbols {
		if err := writeRecord(&buf, &o.symbols[i]); err != nil {
			return nil, fmt.Errorf("写入符号失败: %w", err)
		}
	}

	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, o.stringTableSize())
	buf.Write(size)
	for _, s := range o.stringTable {
		buf.WriteString(s)
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// WriteTo writes the serialized object to w.
func (o *ObjectFile) WriteTo(w io.Writer) (int64, error) {
	data, err := o.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// record is any fixed-layout record with an encoder.
type record interface {
	Bytes() ([]byte, error)
}

func writeRecord(buf *bytes.Buffer, r record) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
