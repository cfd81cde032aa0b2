package coff

import (
	"debug/pe"
	"fmt"
	"strings"
)

// Machine is an IMAGE_FILE_MACHINE_* value.
type Machine uint16

// Supported machines.
const (
	MachineUnknown Machine = pe.IMAGE_FILE_MACHINE_UNKNOWN
	MachineI386    Machine = pe.IMAGE_FILE_MACHINE_I386
	MachineAMD64   Machine = pe.IMAGE_FILE_MACHINE_AMD64
	MachineARM64   Machine = pe.IMAGE_FILE_MACHINE_ARM64
	MachineARM     Machine = pe.IMAGE_FILE_MACHINE_ARM
	MachineARMNT   Machine = pe.IMAGE_FILE_MACHINE_ARMNT
)

// Relocation types that resolve to an RVA without the image base.
const (
	IMAGE_REL_I386_DIR32NB   = 0x0007
	IMAGE_REL_AMD64_ADDR32NB = 0x0003
	IMAGE_REL_ARM_ADDR32NB   = 0x0002
	IMAGE_REL_ARM64_ADDR32NB = 0x0002
)

// machineInfo holds everything that depends on the target architecture.
type machineInfo struct {
	name        string
	pointerSize uint32
	relocType   uint16
	is32Bit     bool
}

var machines = map[Machine]machineInfo{
	MachineI386:  {name: "x86", pointerSize: 4, relocType: IMAGE_REL_I386_DIR32NB, is32Bit: true},
	MachineAMD64: {name: "x64", pointerSize: 8, relocType: IMAGE_REL_AMD64_ADDR32NB},
	MachineARM64: {name: "ARM64", pointerSize: 8, relocType: IMAGE_REL_ARM64_ADDR32NB},
	MachineARM:   {name: "ARM", pointerSize: 4, relocType: IMAGE_REL_ARM_ADDR32NB, is32Bit: true},
	MachineARMNT: {name: "ARMNT", pointerSize: 4, relocType: IMAGE_REL_ARM_ADDR32NB, is32Bit: true},
}

var machineNames = map[string]Machine{
	"x86":     MachineI386,
	"i386":    MachineI386,
	"x64":     MachineAMD64,
	"amd64":   MachineAMD64,
	"x86_64":  MachineAMD64,
	"arm64":   MachineARM64,
	"aarch64": MachineARM64,
	"arm":     MachineARM,
	"arm32":   MachineARM,
	"armnt":   MachineARMNT,
	"thumb":   MachineARMNT,
}

// ParseMachine maps an architecture name such as "x64" or "ARM64" to its
// machine type.
func ParseMachine(name string) (Machine, error) {
	m, ok := machineNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return MachineUnknown, fmt.Errorf("%w: %q", ErrUnsupportedMachine, name)
	}
	return m, nil
}

// Supported reports whether import stubs can be generated for m.
func (m Machine) Supported() bool {
	_, ok := machines[m]
	return ok
}

// PointerSize returns the size of a thunk entry in bytes.
func (m Machine) PointerSize() (uint32, error) {
	info, err := m.info()
	if err != nil {
		return 0, err
	}
	return info.pointerSize, nil
}

// RelocationType returns the "address, no base" relocation code for m.
func (m Machine) RelocationType() (uint16, error) {
	info, err := m.info()
	if err != nil {
		return 0, err
	}
	return info.relocType, nil
}

// Characteristics returns the file header flags used for objects built for m.
func (m Machine) Characteristics() (uint16, error) {
	info, err := m.info()
	if err != nil {
		return 0, err
	}
	c := uint16(pe.IMAGE_FILE_DEBUG_STRIPPED)
	if info.is32Bit {
		c |= pe.IMAGE_FILE_32BIT_MACHINE
	}
	return c, nil
}

func (m Machine) String() string {
	if info, ok := machines[m]; ok {
		return info.name
	}
	return fmt.Sprintf("未知 (0x%X)", uint16(m))
}

func (m Machine) info() (machineInfo, error) {
	info, ok := machines[m]
	if !ok {
		return machineInfo{}, fmt.Errorf("%w: 0x%X", ErrUnsupportedMachine, uint16(m))
	}
	return info, nil
}
