package coff

import (
	"bytes"
	"debug/pe"
	"fmt"
)

// ObjectInfo contains information read back from a COFF object file.
type ObjectInfo struct {
	Machine         Machine
	Characteristics uint16
	Sections        []SectionInfo
	Symbols         []SymbolInfo
}

// SectionInfo contains information about an object section.
type SectionInfo struct {
	Name            string
	Size            uint32
	Characteristics uint32
	Permissions     string
	Relocations     []RelocationInfo
}

// RelocationInfo describes one relocation of a section.
type RelocationInfo struct {
	VirtualAddress   uint32
	SymbolTableIndex uint32
	Type             uint16
	TypeName         string
}

// SymbolInfo describes one symbol table entry.
type SymbolInfo struct {
	Name          string
	Value         uint32
	SectionNumber int16
	StorageClass  uint8
}

// Inspect parses an object file with debug/pe.
func Inspect(data []byte) (*ObjectInfo, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解析COFF对象失败: %w", err)
	}
	defer f.Close()

	info := &ObjectInfo{
		Machine:         Machine(f.Machine),
		Characteristics: f.Characteristics,
	}

	for _, s := range f.Sections {
		section := SectionInfo{
			Name:            s.Name,
			Size:            s.Size,
			Characteristics: s.Characteristics,
			Permissions:     getSectionPermissions(s.Characteristics),
		}
		for _, r := range s.Relocs {
			section.Relocations = append(section.Relocations, RelocationInfo{
				VirtualAddress:   r.VirtualAddress,
				SymbolTableIndex: r.SymbolTableIndex,
				Type:             r.Type,
				TypeName:         RelocationTypeName(info.Machine, r.Type),
			})
		}
		info.Sections = append(info.Sections, section)
	}

	for _, sym := range f.Symbols {
		info.Symbols = append(info.Symbols, SymbolInfo{
			Name:          sym.Name,
			Value:         sym.Value,
			SectionNumber: sym.SectionNumber,
			StorageClass:  sym.StorageClass,
		})
	}

	return info, nil
}

func getSectionPermissions(c uint32) string {
	var perms [3]rune
	perms[0] = '-'
	perms[1] = '-'
	perms[2] = '-'

	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}

	return string(perms[:])
}
