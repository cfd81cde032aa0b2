package implib

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

func TestBuildKernel32(t *testing.T) {
	dlls := []DLL{{
		Name:    "KERNEL32.dll",
		Exports: []Export{{Name: "Sleep", Type: coff.ImportCode, NameType: coff.NameName}},
	}}

	data, err := Build(coff.MachineAMD64, dlls)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("!<arch>\n")) {
		t.Errorf("signature = %q", data[:8])
	}
	if len(data)%2 != 0 {
		t.Errorf("archive length %d is odd", len(data))
	}

	f, err := archive.Parse(data)
	if err != nil {
		t.Fatalf("archive.Parse() error = %v", err)
	}

	wantMembers := []string{NullDescriptorMember, "KERNEL32.dll", "KERNEL32.dll"}
	if len(f.Members) != len(wantMembers) {
		t.Fatalf("members = %d, want %d", len(f.Members), len(wantMembers))
	}
	for i, want := range wantMembers {
		if f.Members[i].Name != want {
			t.Errorf("member %d = %q, want %q", i, f.Members[i].Name, want)
		}
	}

	var got []string
	for _, s := range f.SecondLinker {
		got = append(got, s.Name)
	}
	want := []string{
		"Sleep",
		"__IMPORT_DESCRIPTOR_KERNEL32",
		"__NULL_IMPORT_DESCRIPTOR",
		"__imp_Sleep",
		"\x7FKERNEL32_NULL_THUNK_DATA",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("symbols = %q, want %q", got, want)
	}

	owners := map[string]int{
		"__NULL_IMPORT_DESCRIPTOR":     0,
		"__IMPORT_DESCRIPTOR_KERNEL32": 1,
		"\x7FKERNEL32_NULL_THUNK_DATA": 1,
		"Sleep":                        2,
		"__imp_Sleep":                  2,
	}
	for sym, idx := range owners {
		m, ok := f.Lookup(sym)
		if !ok || m != f.Members[idx] {
			t.Errorf("Lookup(%q) = member %v, want member %d", sym, m, idx)
		}
	}

	rec := f.Members[2].Import
	if rec == nil {
		t.Fatal("member 3 is not a short import record")
	}
	wantRec := coff.ImportRecord{Machine: coff.MachineAMD64, Type: coff.ImportCode, NameType: coff.NameName, Name: "Sleep", DLL: "KERNEL32.dll"}
	if *rec != wantRec {
		t.Errorf("import record = %+v, want %+v", *rec, wantRec)
	}

	for _, m := range f.Members[:2] {
		info, err := coff.Inspect(m.Data)
		if err != nil {
			t.Errorf("member %s: Inspect() error = %v", m.Name, err)
			continue
		}
		if info.Machine != coff.MachineAMD64 {
			t.Errorf("member %s: machine = %v", m.Name, info.Machine)
		}
	}
}

func TestBuildLongDLLName(t *testing.T) {
	long := "ABCDEFGHIJKLMNOP.dll"
	if len(long) != 20 {
		t.Fatalf("test name is %d bytes", len(long))
	}

	data, err := Build(coff.MachineI386, []DLL{{
		Name:    long,
		Exports: []Export{{Name: "_foo@4", NameType: coff.NameUndecorate}, {Name: "bar", Type: coff.ImportData}},
	}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	f, err := archive.Parse(data)
	if err != nil {
		t.Fatalf("archive.Parse() error = %v", err)
	}
	if string(f.LongNames) != long+"\x00" {
		t.Errorf("long names = %q", f.LongNames)
	}

	for _, m := range f.Members[1:] {
		if m.Name != long {
			t.Errorf("member name = %q, want %q", m.Name, long)
		}
		field := string(data[m.Offset : m.Offset+16])
		if field != "/0"+strings.Repeat(" ", 14) {
			t.Errorf("name field = %q, want \"/0\"", field)
		}
	}
	if f.Members[3].Import.Type != coff.ImportData {
		t.Errorf("bar type = %v, want data", f.Members[3].Import.Type)
	}
}

func TestBuildMultipleDLLs(t *testing.T) {
	dlls := []DLL{
		{Name: "USER32.dll", Exports: []Export{{Name: "MessageBoxW"}, {Name: "MessageBoxA"}}},
		{Name: "KERNEL32.dll", Exports: []Export{{Name: "ExitProcess"}}},
		{Name: "ws2_32.dll", Exports: []Export{{Name: "WSAStartup", NameType: coff.NameOrdinal, Ordinal: 115}}},
	}

	data, err := Build(coff.MachineARM64, dlls)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f, err := archive.Parse(data)
	if err != nil {
		t.Fatalf("archive.Parse() error = %v", err)
	}

	// null descriptor + (stub + exports) per DLL
	if want := 1 + 3 + 2 + 2; len(f.Members) != want {
		t.Errorf("members = %d, want %d", len(f.Members), want)
	}

	var want []string
	want = append(want, coff.NullImportDescriptorName)
	for i := range dlls {
		want = append(want, dlls[i].Symbols()...)
	}
	sort.Strings(want)

	var got []string
	for _, s := range f.SecondLinker {
		got = append(got, s.Name)
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("symbols = %q, want %q", got, want)
	}

	m, ok := f.Lookup("WSAStartup")
	if !ok || m.Import.Ordinal != 115 || m.Import.NameType != coff.NameOrdinal {
		t.Errorf("WSAStartup record = %+v", m)
	}
}

func TestBuildUnsupportedMachine(t *testing.T) {
	dlls := []DLL{{Name: "KERNEL32.dll", Exports: []Export{{Name: "Sleep"}}}}

	for _, m := range []coff.Machine{coff.MachineUnknown, coff.Machine(0x01F0)} {
		data, err := Build(m, dlls)
		if !errors.Is(err, coff.ErrUnsupportedMachine) {
			t.Errorf("Build(0x%X) error = %v, want ErrUnsupportedMachine", uint16(m), err)
		}
		if data != nil {
			t.Errorf("Build(0x%X) returned %d bytes", uint16(m), len(data))
		}
	}

	if _, err := coff.ParseMachine("UNKNOWN"); !errors.Is(err, coff.ErrUnsupportedMachine) {
		t.Errorf("ParseMachine(UNKNOWN) error = %v", err)
	}
}

func TestBuildInvalidNames(t *testing.T) {
	tests := []struct {
		name string
		dll  DLL
	}{
		{"empty DLL", DLL{Name: "", Exports: []Export{{Name: "f"}}}},
		{"empty export", DLL{Name: "a.dll", Exports: []Export{{Name: ""}}}},
		{"NUL in export", DLL{Name: "a.dll", Exports: []Export{{Name: "f\x00g"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(coff.MachineAMD64, []DLL{tt.dll})
			if !errors.Is(err, coff.ErrInvalidName) {
				t.Errorf("Build() error = %v, want ErrInvalidName", err)
			}
			if coff.IsDefect(err) {
				t.Error("invalid input reported as defect")
			}
		})
	}
}

func TestParseMachines(t *testing.T) {
	got, err := ParseMachines("x64, arm64,X64")
	if err != nil {
		t.Fatalf("ParseMachines() error = %v", err)
	}
	if len(got) != 2 || got[0] != coff.MachineAMD64 || got[1] != coff.MachineARM64 {
		t.Errorf("ParseMachines() = %v", got)
	}

	for _, list := range []string{"", " , ", "x64,mips"} {
		if _, err := ParseMachines(list); !errors.Is(err, coff.ErrUnsupportedMachine) {
			t.Errorf("ParseMachines(%q) error = %v", list, err)
		}
	}
}
