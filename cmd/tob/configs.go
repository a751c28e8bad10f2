package main

import (
	"fmt"
	"io"
	"os"

	"github.com/scott-cotton/cli"

	"github.com/mattn/go-isatty"

	"github.com/signadot/tob-format/go-tob/dump"
)

// docForm names an input or output representation of a document.
type docForm int

const (
	formWire docForm = iota
	formJSON
	formYAML
	formDump
)

func parseForm(v string) (docForm, error) {
	switch v {
	case "tob", "t", "wire", "w":
		return formWire, nil
	case "json", "j":
		return formJSON, nil
	case "yaml", "y":
		return formYAML, nil
	case "dump", "d":
		return formDump, nil
	}
	return 0, fmt.Errorf("unknown format %q", v)
}

type MainConfig struct {
	Color  bool `cli:"name=color desc='render dumps with color'"`
	MaxBin int  `cli:"name=maxbin desc='shown bytes of binary payloads in dumps'"`

	J bool `cli:"name=j aliases=json desc='do i/o in json'"`
	Y bool `cli:"name=y aliases=yaml desc='do i/o in yaml'"`

	InForm, OutForm *docForm

	Out      string
	CloseOut func() error

	Main *cli.Command
}

func (cfg *MainConfig) formFunc(fps ...**docForm) cli.FuncOpt {
	return cli.FuncOpt(func(_ *cli.Context, v string) (any, error) {
		f, err := parseForm(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		for _, fp := range fps {
			*fp = &f
		}
		return f, nil
	})
}

func (cfg *MainConfig) inForm() docForm {
	f := formWire
	switch {
	case cfg.J:
		f = formJSON
	case cfg.Y:
		f = formYAML
	}
	if cfg.InForm != nil {
		f = *cfg.InForm
	}
	return f
}

func (cfg *MainConfig) outForm() docForm {
	f := formDump
	switch {
	case cfg.J:
		f = formJSON
	case cfg.Y:
		f = formYAML
	}
	if cfg.OutForm != nil {
		f = *cfg.OutForm
	}
	return f
}

func (cfg *MainConfig) dumpOpts(w io.Writer) *dump.Options {
	opts := &dump.Options{MaxBin: cfg.MaxBin}
	if cfg.Color {
		opts.Colors = dump.NewColors()
		return opts
	}
	f, ok := w.(*os.File)
	if !ok {
		return opts
	}
	if isatty.IsTerminal(f.Fd()) {
		opts.Colors = dump.NewColors()
	}
	return opts
}

type DumpConfig struct {
	*MainConfig
	Dump *cli.Command
}

type ConvertConfig struct {
	*MainConfig
	Convert *cli.Command
}

type DiffConfig struct {
	*MainConfig
	Diff *cli.Command
}

type PatchConfig struct {
	*MainConfig
	Merge bool `cli:"name=merge desc='apply as a merge patch'"`

	Patch *cli.Command
}

type GetConfig struct {
	*MainConfig
	Get *cli.Command
}

type ValidConfig struct {
	*MainConfig
	Quiet bool `cli:"name=q aliases=quiet desc='no per-file output, only the exit code'"`

	Valid *cli.Command
}
