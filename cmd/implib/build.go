package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/ZacharyZcR/PEImplib/internal/coff"
	"github.com/ZacharyZcR/PEImplib/internal/implib"
)

// buildJob is one import library to write.
type buildJob struct {
	machine coff.Machine
	path    string
	data    []byte
}

func buildLibraries() error {
	machines, output, dlls, err := collectInputs()
	if err != nil {
		return err
	}

	if output == "" {
		output = filepath.Join(defaults.OutputDir, defaultOutputName(dlls))
	}

	cyan := color.New(color.FgCyan)
	names := make([]string, len(machines))
	for i, m := range machines {
		names[i] = m.String()
	}
	_, _ = cyan.Printf("正在生成导入库 (%d 个DLL, 架构: %s)...\n", len(dlls), strings.Join(names, ", "))

	jobs := make([]*buildJob, len(machines))
	var g errgroup.Group
	for i, m := range machines {
		job := &buildJob{machine: m, path: machineOutputPath(output, m, len(machines) > 1)}
		jobs[i] = job
		g.Go(func() error {
			data, err := implib.Build(job.machine, dlls)
			if err != nil {
				return fmt.Errorf("%s: %w", job.machine, err)
			}
			job.data = data
			return nil
		})
	}
	// Nothing is written unless every build succeeded.
	if err := g.Wait(); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	for _, job := range jobs {
		if err := writeLibrary(job.path, job.data); err != nil {
			return err
		}
		_, _ = green.Printf("✓ 已生成 %s (%s, %d 字节)\n", job.path, job.machine, len(job.data))
	}
	return nil
}

// collectInputs merges the manifest, .def files and -import arguments.
// Flags given on the command line take precedence over the manifest.
func collectInputs() ([]coff.Machine, string, []implib.DLL, error) {
	var (
		dlls     []implib.DLL
		machines []coff.Machine
		output   = *outputPath
	)

	if *manifestPath != "" {
		m, err := implib.LoadManifest(*manifestPath)
		if err != nil {
			return nil, "", nil, err
		}
		libs, err := m.Libraries()
		if err != nil {
			return nil, "", nil, fmt.Errorf("%s: %w", *manifestPath, err)
		}
		dlls = append(dlls, libs...)

		if !flagSet("machine") {
			if machines, err = m.Machines(); err != nil {
				return nil, "", nil, err
			}
		}
		if output == "" {
			output = m.Output
		}
	}

	for _, path := range defFiles {
		dll, err := readDef(path)
		if err != nil {
			return nil, "", nil, err
		}
		dlls = append(dlls, *dll)
	}

	for _, arg := range imports {
		dll, err := implib.ParseImportArg(arg)
		if err != nil {
			return nil, "", nil, err
		}
		dlls = append(dlls, *dll)
	}

	if len(dlls) == 0 {
		return nil, "", nil, fmt.Errorf("必须指定至少一个DLL (-import, -def 或 -manifest)")
	}

	if len(machines) == 0 {
		var err error
		if machines, err = implib.ParseMachines(*machineList); err != nil {
			return nil, "", nil, err
		}
	}

	return machines, output, dlls, nil
}

func readDef(path string) (*implib.DLL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开模块定义文件: %w", err)
	}
	defer func() { _ = f.Close() }()

	dll, err := implib.ParseDef(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dll, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// defaultOutputName names the library after the only DLL, e.g.
// KERNEL32.dll -> kernel32.lib.
func defaultOutputName(dlls []implib.DLL) string {
	if len(dlls) == 1 {
		return strings.ToLower(coff.DLLShortName(filepath.Base(dlls[0].Name))) + ".lib"
	}
	return "imports.lib"
}

// machineOutputPath appends _<machine> before the extension when several
// machines are built.
func machineOutputPath(path string, m coff.Machine, multi bool) string {
	if !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strings.ToLower(m.String()) + ext
}

func writeLibrary(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	if err := createBackupIfNeeded(path); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0666); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}

func createBackupIfNeeded(path string) error {
	if !*createBackup {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	backupPath := path + ".bak"
	if err := copyFile(path, backupPath); err != nil {
		return fmt.Errorf("创建备份失败: %w", err)
	}

	green := color.New(color.FgGreen)
	_, _ = green.Printf("✓ 已创建备份: %s\n", backupPath)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0666)
}
