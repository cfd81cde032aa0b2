package coff

import "fmt"

// Per-machine relocation type names, as used by dumpbin.
var relocationTypeNames = map[Machine]map[uint16]string{
	MachineI386: {
		0x0000: "ABSOLUTE",
		0x0006: "DIR32",
		0x0007: "DIR32NB",
		0x000A: "SECTION",
		0x000B: "SECREL",
		0x0014: "REL32",
	},
	MachineAMD64: {
		0x0000: "ABSOLUTE",
		0x0001: "ADDR64",
		0x0002: "ADDR32",
		0x0003: "ADDR32NB",
		0x0004: "REL32",
		0x000A: "SECTION",
		0x000B: "SECREL",
	},
	MachineARM64: {
		0x0000: "ABSOLUTE",
		0x0001: "ADDR32",
		0x0002: "ADDR32NB",
		0x0003: "BRANCH26",
		0x000E: "ADDR64",
	},
	MachineARM: {
		0x0000: "ABSOLUTE",
		0x0001: "ADDR32",
		0x0002: "ADDR32NB",
		0x0003: "BRANCH24",
		0x000F: "SECREL",
	},
}

// RelocationTypeName returns the name of a relocation type for machine.
func RelocationTypeName(machine Machine, relocType uint16) string {
	if machine == MachineARMNT {
		machine = MachineARM
	}
	if name, ok := relocationTypeNames[machine][relocType]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", relocType)
}
