package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scott-cotton/cli"

	tob "github.com/signadot/tob-format/go-tob"
	"github.com/signadot/tob-format/go-tob/dump"
)

func tobMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	defer func() {
		if cfg.CloseOut != nil {
			cfg.CloseOut()
		}
	}()
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	if count(cfg.J, cfg.Y) > 1 {
		return fmt.Errorf("%w: must specify at most one of -j[son] -y[aml]", cli.ErrUsage)
	}
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	sub := cfg.Main.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err = sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}

func count(vs ...bool) int {
	ttl := 0
	for _, v := range vs {
		if v {
			ttl++
		}
	}
	return ttl
}

func (cfg *MainConfig) outOpt(cc *cli.Context, a string) (any, error) {
	cfg.Out = a
	if a == "-" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.Out, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	cc.Out = f
	cfg.CloseOut = f.Close
	return nil, nil
}

// readArg reads one input, with "-" naming stdin.
func readArg(cc *cli.Context, arg string) ([]byte, error) {
	var r io.Reader
	if arg == "-" {
		r = cc.In
	} else {
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", arg, err)
		}
		defer f.Close()
		r = f
	}
	return io.ReadAll(r)
}

func orStdin(args []string) []string {
	if len(args) == 0 {
		return []string{"-"}
	}
	return args
}

// readWire reads one input and brings it to the wire form per the
// input format flags.
func readWire(cfg *MainConfig, cc *cli.Context, arg string) ([]byte, error) {
	raw, err := readArg(cc, arg)
	if err != nil {
		return nil, err
	}
	switch cfg.inForm() {
	case formJSON:
		return tob.FromJSON(raw)
	case formYAML:
		return tob.FromYAML(raw)
	case formDump:
		return nil, fmt.Errorf("%w: cannot read the dump format", cli.ErrUsage)
	}
	return raw, nil
}

// writeWire renders one wire-form document per the output format flags.
func writeWire(cfg *MainConfig, cc *cli.Context, data []byte) error {
	switch cfg.outForm() {
	case formJSON:
		p, err := tob.ToJSON(data)
		if err != nil {
			return err
		}
		p = append(p, '\n')
		_, err = cc.Out.Write(p)
		return err
	case formYAML:
		p, err := tob.ToYAML(data)
		if err != nil {
			return err
		}
		_, err = cc.Out.Write(p)
		return err
	case formDump:
		return dump.Dump(data, cc.Out, cfg.dumpOpts(cc.Out))
	}
	_, err := cc.Out.Write(data)
	return err
}

func dumpCmd(cfg *DumpConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Dump.Parse(cc, args)
	if err != nil {
		return err
	}
	for _, arg := range orStdin(args) {
		data, err := readWire(cfg.MainConfig, cc, arg)
		if err != nil {
			return err
		}
		if err := dump.Dump(data, cc.Out, cfg.dumpOpts(cc.Out)); err != nil {
			return fmt.Errorf("error dumping %s: %w", arg, err)
		}
	}
	return nil
}

func convert(cfg *ConvertConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Convert.Parse(cc, args)
	if err != nil {
		return err
	}
	outForm := cfg.outForm()
	if cfg.OutForm == nil && !cfg.J && !cfg.Y {
		// dump is a view, not a conversion target
		outForm = formWire
		cfg.OutForm = &outForm
	}
	for _, arg := range orStdin(args) {
		data, err := readWire(cfg.MainConfig, cc, arg)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", arg, err)
		}
		if err := writeWire(cfg.MainConfig, cc, data); err != nil {
			return fmt.Errorf("error writing %s: %w", arg, err)
		}
	}
	return nil
}

func diff(cfg *DiffConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Diff.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: diff takes exactly two documents", cli.ErrUsage)
	}
	from, err := readWire(cfg.MainConfig, cc, args[0])
	if err != nil {
		return err
	}
	to, err := readWire(cfg.MainConfig, cc, args[1])
	if err != nil {
		return err
	}
	out, err := tob.Diff(from, to)
	if err != nil {
		return err
	}
	if out == "" {
		return nil
	}
	if _, err := io.WriteString(cc.Out, out); err != nil {
		return err
	}
	return cli.ExitCodeErr(1)
}

func patch(cfg *PatchConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Patch.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: patch requires a patch document", cli.ErrUsage)
	}
	patchDoc, err := readWire(cfg.MainConfig, cc, args[0])
	if err != nil {
		return err
	}
	for _, arg := range orStdin(args[1:]) {
		data, err := readWire(cfg.MainConfig, cc, arg)
		if err != nil {
			return err
		}
		var out []byte
		if cfg.Merge {
			out, err = tob.MergePatch(data, patchDoc)
		} else {
			out, err = tob.Patch(data, patchDoc)
		}
		if err != nil {
			return fmt.Errorf("error patching %s: %w", arg, err)
		}
		if err := writeWire(cfg.MainConfig, cc, out); err != nil {
			return err
		}
	}
	return nil
}

func get(cfg *GetConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Get.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: get requires an expression", cli.ErrUsage)
	}
	code := args[0]
	for _, arg := range orStdin(args[1:]) {
		data, err := readWire(cfg.MainConfig, cc, arg)
		if err != nil {
			return err
		}
		out, err := tob.QueryEncode(data, code)
		if err != nil {
			return fmt.Errorf("error querying %s: %w", arg, err)
		}
		if err := writeWire(cfg.MainConfig, cc, out); err != nil {
			return err
		}
	}
	return nil
}

func valid(cfg *ValidConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Valid.Parse(cc, args)
	if err != nil {
		return err
	}
	bad := 0
	for _, arg := range orStdin(args) {
		data, err := readArg(cc, arg)
		if err != nil {
			return err
		}
		ok := tob.Valid(data)
		if !ok {
			bad++
		}
		if cfg.Quiet {
			continue
		}
		verdict := "ok"
		if !ok {
			verdict = "invalid"
		}
		fmt.Fprintf(cc.Out, "%s: %s\n", arg, verdict)
	}
	if bad > 0 {
		return cli.ExitCodeErr(1)
	}
	return nil
}
