// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/coff"
)

// Reporter formats and prints the contents of an import library.
type Reporter struct {
	file    *archive.File
	path    string
	size    int64
	out     io.Writer
	verbose bool
}

// NewReporter creates a new reporter for a parsed archive of size bytes.
func NewReporter(path string, file *archive.File, size int64) *Reporter {
	return &Reporter{file: file, path: path, size: size, out: os.Stdout}
}

// SetVerbose enables verbose mode (all symbols and object sections).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetOutput redirects the report.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// Print outputs the complete report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printMembers()
	r.printSymbols()
	if r.verbose {
		r.printObjects()
	}
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(r.out, "\n╔════════════════════════════════════════╗")
	cyan.Fprintln(r.out, "║          PEImplib 导入库报告           ║")
	cyan.Fprintln(r.out, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintln(r.out, "\n【基本信息】")

	imports := 0
	for _, m := range r.file.Members {
		if m.Import != nil {
			imports++
		}
	}

	fmt.Fprintf(r.out, "  %-20s: %s\n", "文件路径", r.path)
	fmt.Fprintf(r.out, "  %-20s: %s\n", "文件大小", formatSize(r.size))
	fmt.Fprintf(r.out, "  %-20s: %d\n", "成员数量", len(r.file.Members))
	fmt.Fprintf(r.out, "  %-20s: %d\n", "短导入记录", imports)
	fmt.Fprintf(r.out, "  %-20s: %d\n", "符号数量", len(r.file.SecondLinker))
	if len(r.file.LongNames) > 0 {
		fmt.Fprintf(r.out, "  %-20s: %s\n", "长名称表", formatSize(int64(len(r.file.LongNames))))
	}
}

func (r *Reporter) printMembers() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【成员列表】(共 %d 个)\n", len(r.file.Members))

	if len(r.file.Members) == 0 {
		fmt.Fprintln(r.out, "  未发现成员")
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 100))
	fmt.Fprintf(r.out, "  %-5s %-12s %-10s %-8s %s\n", "序号", "偏移", "大小", "类型", "名称")
	fmt.Fprintln(r.out, strings.Repeat("-", 100))

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for i, m := range r.file.Members {
		kind := "对象"
		if m.Import != nil {
			kind = "导入"
		}
		fmt.Fprintf(r.out, "  %-5d 0x%08X   %-10s %-8s ", i+1, m.Offset, formatSize(int64(len(m.Data))), kind)
		green.Fprintln(r.out, m.Name)

		if rec := m.Import; rec != nil {
			gray.Fprintf(r.out, "        %s  %s  %s  %s",
				rec.Machine, rec.Type, rec.NameType, DisplayName(rec.Name))
			if rec.Ordinal != 0 {
				gray.Fprintf(r.out, "  @%d", rec.Ordinal)
			}
			fmt.Fprintln(r.out)
		}
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 100))
}

func (r *Reporter) printSymbols() {
	symbols := r.file.SecondLinker

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【符号表】(共 %d 个)\n", len(symbols))

	if len(symbols) == 0 {
		fmt.Fprintln(r.out, "  未发现符号")
		return
	}

	maxDisplay := 20
	if r.verbose {
		maxDisplay = len(symbols)
	}

	displayCount := len(symbols)
	if displayCount > maxDisplay {
		displayCount = maxDisplay
	}

	for i := 0; i < displayCount; i++ {
		s := symbols[i]
		fmt.Fprintf(r.out, "  %3d. %-40s -> #%d\n", i+1, DisplayName(s.Name), s.Member)
	}

	if len(symbols) > maxDisplay {
		gray := color.New(color.FgHiBlack)
		gray.Fprintf(r.out, "  ... (还有 %d 个符号)\n", len(symbols)-maxDisplay)
	}
	fmt.Fprintln(r.out)
}

// printObjects lists sections and relocations of every object member.
func (r *Reporter) printObjects() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintln(r.out, "\n【对象成员】")

	for i, m := range r.file.Members {
		if m.Import != nil {
			continue
		}

		green := color.New(color.FgGreen)
		green.Fprintf(r.out, "  #%d %s\n", i+1, m.Name)

		info, err := coff.Inspect(m.Data)
		if err != nil {
			red := color.New(color.FgRed)
			red.Fprintf(r.out, "     无法解析: %v\n", err)
			continue
		}

		fmt.Fprintf(r.out, "     机器类型: %s, 特征: 0x%04X\n", info.Machine, info.Characteristics)
		for _, s := range info.Sections {
			fmt.Fprintf(r.out, "     %-10s %-10s %s  0x%08X\n", s.Name, formatSize(int64(s.Size)), s.Permissions, s.Characteristics)
			for _, rel := range s.Relocations {
				target := fmt.Sprintf("#%d", rel.SymbolTableIndex)
				if int(rel.SymbolTableIndex) < len(info.Symbols) {
					target = DisplayName(info.Symbols[rel.SymbolTableIndex].Name)
				}
				fmt.Fprintf(r.out, "         +0x%02X %-10s %s\n", rel.VirtualAddress, rel.TypeName, target)
			}
		}
	}
	fmt.Fprintln(r.out)
}

// DisplayName makes symbol names printable; the null thunk symbols start
// with a DEL byte.
func DisplayName(name string) string {
	return strings.ReplaceAll(name, "\x7F", `\x7F`)
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
