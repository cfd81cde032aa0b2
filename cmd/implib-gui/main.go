// Package main provides the PEImplib GUI application.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEImplib/internal/archive"
	"github.com/ZacharyZcR/PEImplib/internal/cli"
	"github.com/ZacharyZcR/PEImplib/internal/coff"
	"github.com/ZacharyZcR/PEImplib/internal/config"
	"github.com/ZacharyZcR/PEImplib/internal/implib"
)

var machineChoices = []string{"x86", "x64", "ARM", "ARMNT", "ARM64"}

func main() {
	// The report is rendered into a text widget.
	color.NoColor = true
	defaults := config.Load()

	myApp := app.New()
	myWindow := myApp.NewWindow("PEImplib - 导入库生成工具")
	myWindow.Resize(fyne.NewSize(900, 700))

	machineSelect := widget.NewSelect(machineChoices, nil)
	machineSelect.SetSelected(defaultMachine(defaults.Machine))

	dllEntry := widget.NewEntry()
	dllEntry.SetPlaceHolder("KERNEL32.dll")

	exportsEntry := widget.NewMultiLineEntry()
	exportsEntry.SetPlaceHolder("每行一个导出函数, 例如:\nSleep\nGetLastError @12\nWSAStartup @115 NONAME\ng_Data DATA")
	exportsEntry.SetMinRowsVisible(8)

	outputEntry := widget.NewEntry()
	outputEntry.SetPlaceHolder("输出路径 (.lib)")

	reportOutput := widget.NewMultiLineEntry()
	reportOutput.SetPlaceHolder("导入库内容将显示在这里...")
	reportOutput.Disable()

	statusLabel := widget.NewLabel("就绪")

	saveButton := widget.NewButton("另存为", func() {
		d := dialog.NewFileSave(func(file fyne.URIWriteCloser, err error) {
			if err != nil || file == nil {
				return
			}
			_ = file.Close()
			outputEntry.SetText(file.URI().Path())
		}, myWindow)
		if dllEntry.Text != "" {
			d.SetFileName(strings.ToLower(coff.DLLShortName(dllEntry.Text)) + ".lib")
		}
		d.Show()
	})

	buildButton := widget.NewButton("生成", func() {
		if dllEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请输入DLL名称"), myWindow)
			return
		}
		if outputEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请选择输出路径"), myWindow)
			return
		}

		machineName, dllName, exportText, output := machineSelect.Selected, dllEntry.Text, exportsEntry.Text, outputEntry.Text
		statusLabel.SetText("正在生成...")
		go func() {
			report, err := buildLibrary(machineName, dllName, exportText, output)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, myWindow)
					statusLabel.SetText("生成失败")
					return
				}
				reportOutput.SetText(report)
				dialog.ShowInformation("成功", fmt.Sprintf("已生成 %s", output), myWindow)
				statusLabel.SetText("生成完成")
			})
		}()
	})

	inspectButton := widget.NewButton("查看", func() {
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			path := file.URI().Path()
			_ = file.Close()

			statusLabel.SetText("正在读取...")
			go func() {
				report, err := inspectLibrary(path)
				fyne.Do(func() {
					if err != nil {
						dialog.ShowError(err, myWindow)
						statusLabel.SetText("读取失败")
						return
					}
					reportOutput.SetText(report)
					statusLabel.SetText("读取完成")
				})
			}()
		}, myWindow)
	})

	// Layout
	form := container.NewVBox(
		container.NewGridWithColumns(2,
			widget.NewLabel("目标架构:"),
			machineSelect,
		),
		container.NewGridWithColumns(2,
			widget.NewLabel("DLL名称:"),
			dllEntry,
		),
		widget.NewLabel("导出函数:"),
		exportsEntry,
		container.NewBorder(nil, nil, widget.NewLabel("输出路径:"), saveButton, outputEntry),
		container.NewGridWithColumns(2, buildButton, inspectButton),
		widget.NewSeparator(),
	)

	mainContent := container.NewBorder(
		form,
		container.NewVBox(
			widget.NewSeparator(),
			statusLabel,
		),
		nil,
		nil,
		container.NewVScroll(reportOutput),
	)

	myWindow.SetContent(mainContent)
	myWindow.ShowAndRun()
}

// defaultMachine picks the first configured machine that the selector offers.
func defaultMachine(list string) string {
	for _, name := range strings.Split(list, ",") {
		m, err := coff.ParseMachine(name)
		if err == nil {
			return m.String()
		}
	}
	return "x64"
}

func buildLibrary(machineName, dllName, exportText, output string) (string, error) {
	machine, err := coff.ParseMachine(machineName)
	if err != nil {
		return "", err
	}

	dll := implib.DLL{Name: strings.TrimSpace(dllName)}
	for i, line := range strings.Split(exportText, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, private, err := implib.ParseExport(line)
		if err != nil {
			return "", fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		if !private {
			dll.Exports = append(dll.Exports, e)
		}
	}
	if len(dll.Exports) == 0 {
		return "", fmt.Errorf("请至少输入一个导出函数")
	}

	data, err := implib.Build(machine, []implib.DLL{dll})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(output, data, 0666); err != nil {
		return "", fmt.Errorf("写入 %s 失败: %w", output, err)
	}

	return inspectLibrary(output)
}

func inspectLibrary(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("无法读取文件: %w", err)
	}
	f, err := archive.Parse(data)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	reporter := cli.NewReporter(path, f, int64(len(data)))
	reporter.SetOutput(&out)
	reporter.SetVerbose(true)
	reporter.Print()
	return out.String(), nil
}
