package main

import (
	"github.com/scott-cotton/cli"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	sOpts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	opts := append(sOpts, []*cli.Opt{
		&cli.Opt{
			Name:        "o",
			Description: "output file (default stdout)",
			Type:        cli.NamedFuncOpt(cfg.outOpt, "(filepath)"),
		},
		&cli.Opt{
			Name:        "I",
			Aliases:     []string{"ifmt"},
			Description: "input format: tob/t, json/j, yaml/y",
			Type:        cli.NamedFuncOpt(cfg.formFunc(&cfg.InForm), "(format)"),
		}, &cli.Opt{
			Name:        "O",
			Aliases:     []string{"ofmt"},
			Description: "output format: tob/t, json/j, yaml/y, dump/d",
			Type:        cli.NamedFuncOpt(cfg.formFunc(&cfg.OutForm), "(format)"),
		}}...)

	return cli.NewCommandAt(&cfg.Main, "tob").
		WithSynopsis("tob [opts] command [opts]").
		WithDescription("tob is a tool for working with tagged binary object documents.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return tobMain(cfg, cc, args)
		}).
		WithSubs(
			DumpCommand(cfg),
			ConvertCommand(cfg),
			DiffCommand(cfg),
			PatchCommand(cfg),
			GetCommand(cfg),
			ValidCommand(cfg))
}

func DumpCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DumpConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("dump").
		WithAliases("d", "du").
		WithSynopsis("dump [files]").
		WithDescription("render encoded documents readably, in color on a terminal").
		WithRun(func(cc *cli.Context, args []string) error {
			return dumpCmd(cfg, cc, args)
		})
	cfg.Dump = cmd
	return cmd
}

func ConvertCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ConvertConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("convert").
		WithAliases("c", "co").
		WithSynopsis("convert [-I fmt] [-O fmt] [files]").
		WithDescription("convert documents between the wire form, json and yaml").
		WithRun(func(cc *cli.Context, args []string) error {
			return convert(cfg, cc, args)
		})
	cfg.Convert = cmd
	return cmd
}

func DiffCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DiffConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("diff").
		WithAliases("di").
		WithSynopsis("diff a b").
		WithDescription("diff two documents by their readable forms").
		WithRun(func(cc *cli.Context, args []string) error {
			return diff(cfg, cc, args)
		})
	cfg.Diff = cmd
	return cmd
}

func PatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &PatchConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("patch").
		WithAliases("p", "pa").
		WithSynopsis("patch [-merge] <patchfile> [files]").
		WithDescription("apply a patch document to documents").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return patch(cfg, cc, args)
		})
	cfg.Patch = cmd
	return cmd
}

func GetCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &GetConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("get").
		WithAliases("g", "ge").
		WithSynopsis("get <expr> [files]").
		WithDescription("evaluate an expression against documents").
		WithRun(func(cc *cli.Context, args []string) error {
			return get(cfg, cc, args)
		})
	cfg.Get = cmd
	return cmd
}

func ValidCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ValidConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("valid").
		WithAliases("v", "va").
		WithSynopsis("valid [-q] [files]").
		WithDescription("check documents for well-formedness").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return valid(cfg, cc, args)
		})
	cfg.Valid = cmd
	return cmd
}
