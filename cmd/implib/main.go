// Package main provides the PEImplib CLI tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/cli"
	"github.com/ZacharyZcR/PEImplib/internal/config"
)

// stringList is a flag that may be given several times.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, " ")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var defaults = config.Load()

var (
	// Build flags.
	machineList  = flag.String("machine", defaults.Machine, "目标架构，多个用逗号分隔 (x86, x64, ARM, ARMNT, ARM64)")
	outputPath   = flag.String("o", "", "输出的导入库路径 (.lib)")
	manifestPath = flag.String("manifest", "", "YAML清单文件")
	createBackup = flag.Bool("backup", defaults.Backup, "覆盖前创建备份文件")
	noColor      = flag.Bool("no-color", defaults.NoColor, "禁用彩色输出")

	imports  stringList
	defFiles stringList

	// Dump flags.
	dumpPath = flag.String("dump", "", "查看已有导入库的内容")
	verbose  = flag.Bool("v", false, "详细模式：显示所有符号和对象节区")
)

func init() {
	flag.Var(&imports, "import", "导入的DLL和函数 (格式: DLL:Func1,Func2,...)，可重复")
	flag.Var(&defFiles, "def", "模块定义文件 (.def)，可重复")
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	var err error
	switch {
	case *dumpPath != "":
		err = dumpLibrary(*dumpPath)
	case len(imports) > 0 || len(defFiles) > 0 || *manifestPath != "":
		err = buildLibraries()
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func dumpLibrary(path string) error {
	cyan := color.New(color.FgCyan)
	_, _ = cyan.Printf("正在读取导入库 %s...\n", path)

	f, err := archive.Open(path)
	if err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	reporter := cli.NewReporter(path, f, st.Size())
	reporter.SetVerbose(*verbose)
	reporter.Print()
	return nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nPEImplib - Windows导入库生成工具")

	fmt.Println("\n生成模式用法:")
	fmt.Println("  implib [选项] -import DLL:Func1,Func2,...")
	fmt.Println("\n生成选项:")
	fmt.Println("  -machine <架构>       目标架构，多个用逗号分隔（默认: $IMPLIB_MACHINE 或 x64）")
	fmt.Println("                        支持: x86, x64, ARM, ARMNT, ARM64")
	fmt.Println("  -o <路径>             输出文件（默认: $IMPLIB_OUTPUT_DIR 下的 <DLL名>.lib）")
	fmt.Println("                        多个架构时自动添加 _<架构> 后缀")
	fmt.Println("  -import <导入>        导入的DLL和函数，可重复")
	fmt.Println("                        函数写法: 名称[@序号 [NONAME]] [DATA] [CONSTANT]")
	fmt.Println("  -def <文件>           从模块定义文件 (.def) 读取导出，可重复")
	fmt.Println("  -manifest <文件>      从YAML清单读取架构、输出和DLL")
	fmt.Println("  -backup               覆盖前创建备份（默认: true，$IMPLIB_BACKUP）")
	fmt.Println("  -no-color             禁用彩色输出（$NO_COLOR, $IMPLIB_NO_COLOR）")

	fmt.Println("\n查看模式用法:")
	fmt.Println("  implib [-v] -dump <导入库路径>")
	fmt.Println("\n查看选项:")
	fmt.Println("  -v                    显示全部符号以及对象成员的节区和重定位")

	fmt.Println("\n示例:")
	fmt.Println("  # 生成 x64 导入库")
	fmt.Println("  implib -import KERNEL32.dll:Sleep,ExitProcess -o kernel32.lib")
	fmt.Println("\n  # 按序号导入，同时生成多个架构")
	fmt.Println("  implib -machine x86,x64,ARM64 -import \"ws2_32.dll:WSAStartup @115 NONAME\"")
	fmt.Println("\n  # 从模块定义文件和清单生成")
	fmt.Println("  implib -def user32.def -o user32.lib")
	fmt.Println("  implib -manifest libs.yaml")
	fmt.Println("\n  # 查看导入库")
	fmt.Println("  implib -dump kernel32.lib")
	fmt.Println("  implib -v -dump kernel32.lib")
	fmt.Println()
}
