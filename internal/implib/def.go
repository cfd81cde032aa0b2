package implib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// ErrDefSyntax marks a malformed module-definition file or export list.
var ErrDefSyntax = errors.New("模块定义语法错误")

// ParseDef reads a module-definition (.def) file: a LIBRARY statement and
// an EXPORTS section. Other statements are ignored.
func ParseDef(r io.Reader) (*DLL, error) {
	var (
		dll       DLL
		inExports bool
		lineNo    int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		keyword := strings.Fields(line)[0]
		rest := strings.TrimSpace(line[len(keyword):])

		switch strings.ToUpper(keyword) {
		case "LIBRARY":
			inExports = false
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				return nil, fmt.Errorf("%w: 第 %d 行: LIBRARY 缺少名称", ErrDefSyntax, lineNo)
			}
			dll.Name = libraryName(unquote(fields[0]))
		case "EXPORTS":
			inExports = true
			if rest != "" {
				if err := dll.addExportLine(rest); err != nil {
					return nil, fmt.Errorf("第 %d 行: %w", lineNo, err)
				}
			}
		case "NAME", "DESCRIPTION", "VERSION", "HEAPSIZE", "STACKSIZE", "SECTIONS", "STUB":
			inExports = false
		default:
			if !inExports {
				return nil, fmt.Errorf("%w: 第 %d 行: 未知语句 %q", ErrDefSyntax, lineNo, keyword)
			}
			if err := dll.addExportLine(line); err != nil {
				return nil, fmt.Errorf("第 %d 行: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取模块定义失败: %w", err)
	}

	if dll.Name == "" {
		return nil, fmt.Errorf("%w: 缺少 LIBRARY 语句", ErrDefSyntax)
	}
	return &dll, nil
}

func (d *DLL) addExportLine(line string) error {
	e, private, err := ParseExport(line)
	if err != nil {
		return err
	}
	if !private {
		d.Exports = append(d.Exports, e)
	}
	return nil
}

// ParseExport parses one export entry:
//
//	name[=internal] [@ordinal [NONAME]] [DATA] [CONSTANT] [PRIVATE]
//
// private reports whether the entry is marked PRIVATE and must not be
// put into the import library.
func ParseExport(line string) (e Export, private bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return e, false, fmt.Errorf("%w: 空的导出项", ErrDefSyntax)
	}

	name, internal, hasInternal := strings.Cut(fields[0], "=")
	e.Name = unquote(name)
	if e.Name == "" {
		return e, false, fmt.Errorf("%w: 导出名称为空", ErrDefSyntax)
	}
	fields = fields[1:]
	// "name= internal", "name = internal" and "name =internal"
	switch {
	case hasInternal && internal == "":
		if len(fields) == 0 {
			return e, false, fmt.Errorf("%w: %s 缺少内部名称", ErrDefSyntax, e.Name)
		}
		fields = fields[1:]
	case !hasInternal && len(fields) >= 2 && fields[0] == "=":
		fields = fields[2:]
	case !hasInternal && len(fields) >= 1 && len(fields[0]) > 1 && fields[0][0] == '=':
		fields = fields[1:]
	}

	e.Type = coff.ImportCode
	e.NameType = coff.NameName
	noName, hasOrdinal := false, false

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "@"):
			s := f[1:]
			if s == "" && i+1 < len(fields) {
				i++
				s = fields[i]
			}
			n, err := strconv.ParseUint(s, 10, 16)
			if err != nil {
				return e, false, fmt.Errorf("%w: 无效序号 %q", ErrDefSyntax, s)
			}
			e.Ordinal = uint16(n)
			hasOrdinal = true
		case strings.EqualFold(f, "NONAME"):
			noName = true
		case strings.EqualFold(f, "DATA"):
			e.Type = coff.ImportData
		case strings.EqualFold(f, "CONSTANT"):
			e.Type = coff.ImportConst
		case strings.EqualFold(f, "PRIVATE"):
			private = true
		default:
			return e, false, fmt.Errorf("%w: 未知属性 %q", ErrDefSyntax, f)
		}
	}

	if noName {
		if !hasOrdinal {
			return e, false, fmt.Errorf("%w: %s 使用 NONAME 但没有序号", ErrDefSyntax, e.Name)
		}
		e.NameType = coff.NameOrdinal
	}
	return e, private, nil
}

// ParseImportArg parses "DLL:export1,export2,...", where each export uses
// the ParseExport syntax. PRIVATE exports are dropped.
func ParseImportArg(arg string) (*DLL, error) {
	name, list, ok := strings.Cut(arg, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %q 应为 DLL:导出1,导出2", ErrDefSyntax, arg)
	}

	dll := &DLL{Name: name}
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		if err := dll.addExportLine(item); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if len(dll.Exports) == 0 {
		return nil, fmt.Errorf("%w: %s 没有导出项", ErrDefSyntax, name)
	}
	return dll, nil
}

// libraryName appends ".dll" when the name has no extension.
func libraryName(name string) string {
	if path.Ext(name) == "" {
		return name + ".dll"
	}
	return name
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
