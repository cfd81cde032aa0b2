package coff

import (
	"fmt"
	"strings"
)

// Well-known symbol names of import libraries.
const (
	NullImportDescriptorName = "__NULL_IMPORT_DESCRIPTOR"
	ImportDescriptorPrefix   = "__IMPORT_DESCRIPTOR_"
	NullThunkDataSuffix      = "_NULL_THUNK_DATA"
	ImportPointerPrefix      = "__imp_"
)

// ImportDescriptorSize is sizeof(IMAGE_IMPORT_DESCRIPTOR).
const ImportDescriptorSize = 20

// Field offsets inside IMAGE_IMPORT_DESCRIPTOR.
const (
	descOriginalFirstThunk = 0x00
	descName               = 0x0C
	descFirstThunk         = 0x10
)

// DLLShortName strips the extension from a DLL name: "KERNEL32.dll" -> "KERNEL32".
func DLLShortName(dllName string) string {
	i := strings.LastIndexByte(dllName, '.')
	if i < 0 || i == len(dllName)-1 || strings.ContainsAny(dllName[i:], `/\`) {
		return dllName
	}
	return dllName[:i]
}

// ImportStubSymbols returns the two symbols an import stub object exports:
// the import descriptor and the null thunk sentinel.
func ImportStubSymbols(dllName string) []string {
	short := DLLShortName(dllName)
	return []string{
		ImportDescriptorPrefix + short,
		"\x7F" + short + NullThunkDataSuffix,
	}
}

// NewNullImportDescriptor builds the object holding the all-zero import
// descriptor that terminates the descriptor array.
func NewNullImportDescriptor(machine Machine) (*ObjectFile, error) {
	obj, err := NewObjectFile(machine)
	if err != nil {
		return nil, err
	}

	idata3, err := obj.AddSection(".idata$3", IMAGE_SCN_ALIGN_4BYTES, make([]byte, ImportDescriptorSize), nil)
	if err != nil {
		return nil, err
	}

	if err := obj.AddSymbol(NullImportDescriptorName, 0, idata3,
		IMAGE_SYM_TYPE_NULL, IMAGE_SYM_DTYPE_NULL, IMAGE_SYM_CLASS_EXTERNAL); err != nil {
		return nil, err
	}

	return obj, nil
}

// NewImportStub builds the import descriptor object for one DLL.
//
// Sections: .idata$2 (descriptor, 3 relocations), .idata$6 (DLL name),
// .idata$5 (IAT terminator), .idata$4 (INT terminator).
func NewImportStub(machine Machine, dllName string) (*ObjectFile, error) {
	if dllName == "" || strings.IndexByte(dllName, 0) >= 0 {
		return nil, fmt.Errorf("%w: DLL名称 %q", ErrInvalidName, dllName)
	}

	relocType, err := machine.RelocationType()
	if err != nil {
		return nil, err
	}
	ptrSize, err := machine.PointerSize()
	if err != nil {
		return nil, err
	}

	obj, err := NewObjectFile(machine)
	if err != nil {
		return nil, err
	}

	// Symbol table indices the relocations refer to.
	const (
		symIdata6 = 2
		symIdata4 = 3
		symIdata5 = 4
	)
	relocs := []RelocationRecord{
		{VirtualAddress: descName, SymbolTableIndex: symIdata6, Type: relocType},
		{VirtualAddress: descOriginalFirstThunk, SymbolTableIndex: symIdata4, Type: relocType},
		{VirtualAddress: descFirstThunk, SymbolTableIndex: symIdata5, Type: relocType},
	}

	// DLL name, NUL-terminated and padded to even length.
	name := []byte(dllName)
	if len(name)%2 == 0 {
		name = append(name, 0, 0)
	} else {
		name = append(name, 0)
	}

	sections := []struct {
		name   string
		align  uint32
		data   []byte
		relocs []RelocationRecord
	}{
		{".idata$2", IMAGE_SCN_ALIGN_4BYTES, make([]byte, ImportDescriptorSize), relocs},
		{".idata$6", IMAGE_SCN_ALIGN_2BYTES, name, nil},
		{".idata$5", IMAGE_SCN_ALIGN_4BYTES, make([]byte, ptrSize), nil},
		{".idata$4", IMAGE_SCN_ALIGN_4BYTES, make([]byte, ptrSize), nil},
	}
	numbers := make([]int16, len(sections))
	for i, s := range sections {
		if numbers[i], err = obj.AddSection(s.name, s.align, s.data, s.relocs); err != nil {
			return nil, err
		}
	}
	idata2, idata6, idata5, idata4 := numbers[0], numbers[1], numbers[2], numbers[3]

	names := ImportStubSymbols(dllName)
	symbols := []struct {
		name    string
		value   uint32
		section int16
		class   uint8
	}{
		{names[0], 0, idata2, IMAGE_SYM_CLASS_EXTERNAL},
		{".idata$2", IdataCharacteristics, idata2, IMAGE_SYM_CLASS_SECTION},
		{".idata$6", 0, idata6, IMAGE_SYM_CLASS_STATIC},
		{".idata$4", IdataCharacteristics, idata4, IMAGE_SYM_CLASS_SECTION},
		{".idata$5", IdataCharacteristics, idata5, IMAGE_SYM_CLASS_SECTION},
		{NullImportDescriptorName, 0, 0, IMAGE_SYM_CLASS_EXTERNAL},
		{names[1], 0, idata5, IMAGE_SYM_CLASS_EXTERNAL},
	}
	for _, s := range symbols {
		if err := obj.AddSymbol(s.name, s.value, s.section,
			IMAGE_SYM_TYPE_NULL, IMAGE_SYM_DTYPE_NULL, s.class); err != nil {
			return nil, err
		}
	}

	return obj, nil
}
