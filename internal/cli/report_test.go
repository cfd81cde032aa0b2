package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/coff"
	"github.com/ZacharyZcR/PEImplib/internal/implib"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSize(tt.bytes); got != tt.want {
				t.Errorf("formatSize(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestReporterPrint(t *testing.T) {
	color.NoColor = true

	data, err := implib.Build(coff.MachineAMD64, []implib.DLL{{
		Name:    "KERNEL32.dll",
		Exports: []implib.Export{{Name: "Sleep", NameType: coff.NameName}, {Name: "Beep", NameType: coff.NameOrdinal, Ordinal: 9}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f, err := archive.Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	r := NewReporter("kernel32.lib", f, int64(len(data)))
	r.SetOutput(&buf)
	r.SetVerbose(true)
	r.Print()

	out := buf.String()
	for _, want := range []string{
		"kernel32.lib",
		"【成员列表】(共 4 个)",
		"【符号表】(共 7 个)",
		"x64  code  name  Sleep",
		"@9",
		`\x7FKERNEL32_NULL_THUNK_DATA`,
		".idata$2",
		"ADDR32NB",
		"RW-",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report does not contain %q", want)
		}
	}
	if strings.Contains(out, "\x7F") {
		t.Error("report contains a raw DEL byte")
	}
}
