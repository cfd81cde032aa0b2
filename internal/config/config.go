// Package config reads tool defaults from the environment.
package config

import (
	"github.com/xyproto/env/v2"
)

// Environment variable names.
const (
	EnvMachine   = "IMPLIB_MACHINE"
	EnvOutputDir = "IMPLIB_OUTPUT_DIR"
	EnvBackup    = "IMPLIB_BACKUP"
	EnvNoColor   = "IMPLIB_NO_COLOR"
)

// Defaults holds the values used when a flag is not given.
type Defaults struct {
	Machine   string // comma-separated machine list
	OutputDir string
	Backup    bool
	NoColor   bool
}

// Load reads the defaults from the current environment.
func Load() Defaults {
	env.Load()
	d := Defaults{
		Machine:   env.Str(EnvMachine, "x64"),
		OutputDir: env.Str(EnvOutputDir, "."),
		Backup:    true,
		NoColor:   env.Bool(EnvNoColor) || env.Str("NO_COLOR") != "",
	}
	if env.Str(EnvBackup) != "" {
		d.Backup = env.Bool(EnvBackup)
	}
	return d
}
