package archive

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

func TestParse(t *testing.T) {
	f, err := Parse(buildSample(t))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(f.Members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(f.Members))
	}
	members := []struct {
		name    string
		offset  uint32
		data    []byte
		symbols []string
	}{
		{"a.obj", 198, []byte{1, 2, 3}, []string{"alpha", "zeta"}},
		{"b.obj", 262, []byte{4, 5, 6, 7}, []string{"beta"}},
	}
	for i, want := range members {
		m := f.Members[i]
		if m.Name != want.name || m.Offset != want.offset {
			t.Errorf("member %d = %s@%d, want %s@%d", i, m.Name, m.Offset, want.name, want.offset)
		}
		if !reflect.DeepEqual(m.Data, want.data) {
			t.Errorf("member %d data = %v, want %v", i, m.Data, want.data)
		}
		if !reflect.DeepEqual(m.Symbols, want.symbols) {
			t.Errorf("member %d symbols = %v, want %v", i, m.Symbols, want.symbols)
		}
		if m.Import != nil {
			t.Errorf("member %d decoded as import record", i)
		}
	}

	first := []Symbol{{"zeta", 1}, {"alpha", 1}, {"beta", 2}}
	if !reflect.DeepEqual(f.FirstLinker, first) {
		t.Errorf("FirstLinker = %v, want %v", f.FirstLinker, first)
	}
	second := []Symbol{{"alpha", 1}, {"beta", 2}, {"zeta", 1}}
	if !reflect.DeepEqual(f.SecondLinker, second) {
		t.Errorf("SecondLinker = %v, want %v", f.SecondLinker, second)
	}
	if f.LongNames != nil {
		t.Errorf("LongNames = %q, want none", f.LongNames)
	}
}

func TestLookup(t *testing.T) {
	f, err := Parse(buildSample(t))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		symbol string
		member string
		found  bool
	}{
		{"alpha", "a.obj", true},
		{"beta", "b.obj", true},
		{"zeta", "a.obj", true},
		{"gamma", "", false},
		{"Alpha", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			m, ok := f.Lookup(tt.symbol)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.symbol, ok, tt.found)
			}
			if ok && m.Name != tt.member {
				t.Errorf("Lookup(%q) = %s, want %s", tt.symbol, m.Name, tt.member)
			}
		})
	}
}

func TestParseLongNamesAndImports(t *testing.T) {
	const long = "a_very_long_member_name.obj"

	b := NewBuilder()
	if err := b.AddMember(long, []string{"sym"}, []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	rec := coff.ImportRecord{
		Machine:  coff.MachineAMD64,
		Type:     coff.ImportCode,
		NameType: coff.NameName,
		Name:     "ExitProcess",
		DLL:      "KERNEL32.dll",
	}
	if err := b.AddImport(rec); err != nil {
		t.Fatal(err)
	}
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.LongNames) == 0 {
		t.Error("long-names member not found")
	}
	if len(f.Members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(f.Members))
	}
	if f.Members[0].Name != long {
		t.Errorf("member name = %q, want %q", f.Members[0].Name, long)
	}

	m := f.Members[1]
	if m.Name != "KERNEL32.dll" || m.Import == nil {
		t.Fatalf("member = %s, import = %v", m.Name, m.Import)
	}
	if *m.Import != rec {
		t.Errorf("Import = %+v, want %+v", *m.Import, rec)
	}
	want := []string{"ExitProcess", "__imp_ExitProcess"}
	if !reflect.DeepEqual(m.Symbols, want) {
		t.Errorf("Symbols = %v, want %v", m.Symbols, want)
	}
}

func TestParseObjectMembers(t *testing.T) {
	null, err := coff.NewNullImportDescriptor(coff.MachineAMD64)
	if err != nil {
		t.Fatal(err)
	}
	stub, err := coff.NewImportStub(coff.MachineAMD64, "USER32.dll")
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	if err := b.AddObject("PEImplib", null); err != nil {
		t.Fatal(err)
	}
	if err := b.AddObject("USER32.dll", stub); err != nil {
		t.Fatal(err)
	}
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(f.Members))
	}
	for _, sym := range []string{"__NULL_IMPORT_DESCRIPTOR", "__IMPORT_DESCRIPTOR_USER32", "\x7FUSER32_NULL_THUNK_DATA"} {
		if _, ok := f.Lookup(sym); !ok {
			t.Errorf("Lookup(%q) not found", sym)
		}
	}
}

func TestParseZeroMode(t *testing.T) {
	data := buildSample(t)

	// Other librarians write the mode as "0"; rewrite every header that way.
	for _, off := range []int{8, 100, 198, 262} {
		copy(data[off+40:off+48], "0       ")
	}

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Members) != 2 || f.Members[1].Name != "b.obj" {
		t.Errorf("Members = %+v", f.Members)
	}
}

func TestParseMalformed(t *testing.T) {
	// Offsets into buildSample's output.
	const (
		firstHeader = 8
		firstData   = firstHeader + HeaderSize
		secondData  = firstData + 32 + HeaderSize
		aOffset     = 198
		bOffset     = 262
	)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad signature", func(d []byte) []byte {
			d[0] = '?'
			return d
		}},
		{"signature only", func(d []byte) []byte {
			return d[:len(Signature)]
		}},
		{"bad end marker", func(d []byte) []byte {
			d[firstHeader+58] = 'X'
			return d
		}},
		{"non-decimal size", func(d []byte) []byte {
			d[firstHeader+48] = 'x'
			return d
		}},
		{"first member not linker", func(d []byte) []byte {
			d[firstHeader] = 'x'
			return d
		}},
		{"first linker offset unknown", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[firstData+4:], aOffset+2)
			return d
		}},
		{"member offsets decreasing", func(d []byte) []byte {
			binary.LittleEndian.PutUint32(d[secondData+4:], bOffset)
			binary.LittleEndian.PutUint32(d[secondData+8:], aOffset)
			return d
		}},
		{"member index zero", func(d []byte) []byte {
			binary.LittleEndian.PutUint16(d[secondData+16:], 0)
			return d
		}},
		{"member index out of range", func(d []byte) []byte {
			binary.LittleEndian.PutUint16(d[secondData+16:], 3)
			return d
		}},
		{"truncated member", func(d []byte) []byte {
			return d[:len(d)-2]
		}},
		{"truncated header", func(d []byte) []byte {
			return d[:bOffset+30]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(buildSample(t))
			_, err := Parse(data)
			if !errors.Is(err, coff.ErrMalformedRecord) {
				t.Errorf("Parse() error = %v, want %v", err, coff.ErrMalformedRecord)
			}
		})
	}
}
