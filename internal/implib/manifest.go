package implib

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// Manifest describes import libraries to build.
//
//	machine: x64,arm64
//	output: kernel32.lib
//	dlls:
//	  - name: KERNEL32.dll
//	    exports:
//	      - name: Sleep
//	      - {name: GetLastError, ordinal: 12}
//	  - def: user32.def
type Manifest struct {
	Machine string        `yaml:"machine"`
	Output  string        `yaml:"output"`
	DLLs    []ManifestDLL `yaml:"dlls"`

	dir string
}

// ManifestDLL is a DLL entry. Exports may be listed inline, read from a
// .def file relative to the manifest, or both.
type ManifestDLL struct {
	Name    string           `yaml:"name"`
	Def     string           `yaml:"def"`
	Exports []ManifestExport `yaml:"exports"`
}

// ManifestExport is an export entry. Type defaults to code and NameType to name.
type ManifestExport struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	NameType string `yaml:"name_type"`
	Ordinal  uint16 `yaml:"ordinal"`
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取清单文件: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes a YAML manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("解析清单失败: %w", err)
	}
	return &m, nil
}

// Machines parses the machine list. It is empty if no machine is given.
func (m *Manifest) Machines() ([]coff.Machine, error) {
	if strings.TrimSpace(m.Machine) == "" {
		return nil, nil
	}
	return ParseMachines(m.Machine)
}

// Libraries converts the DLL entries.
func (m *Manifest) Libraries() ([]DLL, error) {
	var dlls []DLL
	for i, md := range m.DLLs {
		dll, err := m.library(md)
		if err != nil {
			return nil, fmt.Errorf("dlls[%d]: %w", i, err)
		}
		dlls = append(dlls, *dll)
	}
	return dlls, nil
}

func (m *Manifest) library(md ManifestDLL) (*DLL, error) {
	dll := &DLL{Name: md.Name}

	if md.Def != "" {
		path := md.Def
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("无法打开模块定义文件: %w", err)
		}
		def, err := ParseDef(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", md.Def, err)
		}
		if dll.Name == "" {
			dll.Name = def.Name
		}
		dll.Exports = append(dll.Exports, def.Exports...)
	}

	if dll.Name == "" {
		return nil, fmt.Errorf("%w: 缺少 DLL 名称", coff.ErrInvalidName)
	}

	for _, me := range md.Exports {
		e := Export{Name: me.Name, Ordinal: me.Ordinal, NameType: coff.NameName}
		if me.Type != "" {
			t, err := coff.ParseImportType(me.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", me.Name, err)
			}
			e.Type = t
		}
		if me.NameType != "" {
			nt, err := coff.ParseNameType(me.NameType)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", me.Name, err)
			}
			e.NameType = nt
		}
		dll.Exports = append(dll.Exports, e)
	}

	return dll, nil
}

// ParseMachines parses a comma-separated machine list such as "x64,arm64".
// Duplicates are dropped.
func ParseMachines(list string) ([]coff.Machine, error) {
	var machines []coff.Machine
	seen := make(map[coff.Machine]bool)
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		m, err := coff.ParseMachine(name)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			machines = append(machines, m)
		}
	}
	if len(machines) == 0 {
		return nil, fmt.Errorf("%w: 未指定机器类型", coff.ErrUnsupportedMachine)
	}
	return machines, nil
}
