package implib

import (
	"fmt"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// NullDescriptorMember is the member name of the null import descriptor object.
const NullDescriptorMember = "PEImplib"

// Export is one symbol exported by a DLL.
type Export struct {
	Name     string
	Type     coff.ImportType
	NameType coff.NameType
	Ordinal  uint16 // ordinal for NameOrdinal, hint otherwise
}

// DLL lists the exports imported from one DLL.
type DLL struct {
	Name    string
	Exports []Export
}

// Symbols returns every symbol the import library defines for the DLL.
func (d *DLL) Symbols() []string {
	syms := coff.ImportStubSymbols(d.Name)
	for _, e := range d.Exports {
		syms = append(syms, e.Name, coff.ImportPointerPrefix+e.Name)
	}
	return syms
}

// Assemble adds the members of an import library for dlls to a new
// archive builder: the null import descriptor, then for each DLL its
// import stub followed by one short import record per export.
func Assemble(machine coff.Machine, dlls []DLL) (*archive.Builder, error) {
	if !machine.Supported() {
		return nil, fmt.Errorf("%w: 0x%X", coff.ErrUnsupportedMachine, uint16(machine))
	}

	b := archive.NewBuilder()

	null, err := coff.NewNullImportDescriptor(machine)
	if err != nil {
		return nil, fmt.Errorf("生成空导入描述符失败: %w", err)
	}
	if err := b.AddObject(NullDescriptorMember, null); err != nil {
		return nil, err
	}

	for _, dll := range dlls {
		stub, err := coff.NewImportStub(machine, dll.Name)
		if err != nil {
			return nil, fmt.Errorf("生成 %s 导入存根失败: %w", dll.Name, err)
		}
		if err := b.AddObject(dll.Name, stub); err != nil {
			return nil, err
		}

		for _, e := range dll.Exports {
			rec := coff.ImportRecord{
				Machine:  machine,
				Type:     e.Type,
				NameType: e.NameType,
				Ordinal:  e.Ordinal,
				Name:     e.Name,
				DLL:      dll.Name,
			}
			if err := b.AddImport(rec); err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}

// Build returns the bytes of an import library for dlls.
func Build(machine coff.Machine, dlls []DLL) ([]byte, error) {
	b, err := Assemble(machine, dlls)
	if err != nil {
		return nil, err
	}
	return b.Bytes()
}
