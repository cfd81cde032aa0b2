package implib

import (
	"errors"
	"strings"
	"testing"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

func TestParseDef(t *testing.T) {
	src := `; kernel32 subset
LIBRARY "KERNEL32"
EXPORTS
    Sleep
    ExitProcess = KERNEL32.ExitProcess
    GetLastError @12
    HeapAlloc=RtlAllocateHeap @ 20 NONAME
    g_Data DATA
    MaxPath @7 CONSTANT ; trailing comment
    Hidden PRIVATE
`
	dll, err := ParseDef(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseDef() error = %v", err)
	}
	if dll.Name != "KERNEL32.dll" {
		t.Errorf("Name = %q, want KERNEL32.dll", dll.Name)
	}

	want := []Export{
		{Name: "Sleep", Type: coff.ImportCode, NameType: coff.NameName},
		{Name: "ExitProcess", Type: coff.ImportCode, NameType: coff.NameName},
		{Name: "GetLastError", Type: coff.ImportCode, NameType: coff.NameName, Ordinal: 12},
		{Name: "HeapAlloc", Type: coff.ImportCode, NameType: coff.NameOrdinal, Ordinal: 20},
		{Name: "g_Data", Type: coff.ImportData, NameType: coff.NameName},
		{Name: "MaxPath", Type: coff.ImportConst, NameType: coff.NameName, Ordinal: 7},
	}
	if len(dll.Exports) != len(want) {
		t.Fatalf("exports = %+v, want %d entries", dll.Exports, len(want))
	}
	for i := range want {
		if dll.Exports[i] != want[i] {
			t.Errorf("export %d = %+v, want %+v", i, dll.Exports[i], want[i])
		}
	}
}

func TestParseExportInternalName(t *testing.T) {
	tests := []string{
		"HeapAlloc=RtlAllocateHeap @20",
		"HeapAlloc = RtlAllocateHeap @20",
		"HeapAlloc =RtlAllocateHeap @20",
		"HeapAlloc= RtlAllocateHeap @20",
		"HeapAlloc\t=\tRtlAllocateHeap\t@20",
	}
	want := Export{Name: "HeapAlloc", Type: coff.ImportCode, NameType: coff.NameName, Ordinal: 20}

	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			got, private, err := ParseExport(line)
			if err != nil {
				t.Fatalf("ParseExport() error = %v", err)
			}
			if private || got != want {
				t.Errorf("ParseExport() = %+v, %v, want %+v", got, private, want)
			}
		})
	}

	if _, _, err := ParseExport("HeapAlloc="); !errors.Is(err, ErrDefSyntax) {
		t.Errorf("ParseExport(HeapAlloc=) error = %v, want ErrDefSyntax", err)
	}
}

func TestParseDefLibraryName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"LIBRARY user32\nEXPORTS f", "user32.dll"},
		{"library mydriver.sys\nexports f", "mydriver.sys"},
		{"LIBRARY\tcomctl32.dll BASE=0x10000000\nEXPORTS f", "comctl32.dll"},
		{"NAME app.exe\nLIBRARY x\nEXPORTS f", "x.dll"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			dll, err := ParseDef(strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("ParseDef() error = %v", err)
			}
			if dll.Name != tt.want {
				t.Errorf("Name = %q, want %q", dll.Name, tt.want)
			}
		})
	}
}

func TestParseDefErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line string
	}{
		{"missing library", "EXPORTS\n  f\n", ""},
		{"export outside section", "LIBRARY a\nfoo\n", "第 2 行"},
		{"bad ordinal", "LIBRARY a\nEXPORTS\n  f @x\n", "第 3 行"},
		{"ordinal overflow", "LIBRARY a\nEXPORTS\n  f @70000\n", "第 3 行"},
		{"noname without ordinal", "LIBRARY a\nEXPORTS\n\n  f NONAME\n", "第 4 行"},
		{"unknown attribute", "LIBRARY a\nEXPORTS f FAST\n", "第 2 行"},
		{"library without name", "LIBRARY\n", "第 1 行"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDef(strings.NewReader(tt.src))
			if !errors.Is(err, ErrDefSyntax) {
				t.Fatalf("ParseDef() error = %v, want ErrDefSyntax", err)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("ParseDef() error = %q, want line %q", err, tt.line)
			}
		})
	}
}

func TestParseImportArg(t *testing.T) {
	dll, err := ParseImportArg("KERNEL32.dll:Sleep, GetTickCount @3 ,, g_x DATA,secret PRIVATE")
	if err != nil {
		t.Fatalf("ParseImportArg() error = %v", err)
	}
	if dll.Name != "KERNEL32.dll" {
		t.Errorf("Name = %q", dll.Name)
	}
	names := make([]string, len(dll.Exports))
	for i, e := range dll.Exports {
		names[i] = e.Name
	}
	if strings.Join(names, ",") != "Sleep,GetTickCount,g_x" {
		t.Errorf("exports = %q", names)
	}
	if dll.Exports[1].Ordinal != 3 || dll.Exports[2].Type != coff.ImportData {
		t.Errorf("exports = %+v", dll.Exports)
	}

	for _, arg := range []string{"KERNEL32.dll", ":Sleep", "KERNEL32.dll:", "a.dll:f @"} {
		if _, err := ParseImportArg(arg); !errors.Is(err, ErrDefSyntax) {
			t.Errorf("ParseImportArg(%q) error = %v, want ErrDefSyntax", arg, err)
		}
	}
}
