package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/cbinding/engine"
	"github.com/wippyai/cbinding/invoke"
	"github.com/wippyai/cbinding/library"
)

func main() {
	var (
		declFile    = flag.String("decl", "", "Path to declaration file (YAML or JSON)")
		target      = flag.String("target", "", "Data model: lp64, llp64, ilp32, wasm32 (default from file or host)")
		lib         = flag.String("lib", "", "Library for every declaration (.wasm uses the wasm backend)")
		list        = flag.Bool("list", false, "Print type layouts and declared symbols")
		funcName    = flag.String("func", "", "Function to call")
		argList     = flag.String("args", "", "Comma-separated call arguments")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Log backend activity to stderr")
	)
	flag.Parse()

	if *declFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: cinspect -decl <file.yaml> [-target name] [-lib path] -list")
		fmt.Fprintln(os.Stderr, "       cinspect -decl <file.yaml> -func name [-args a,b,...]")
		fmt.Fprintln(os.Stderr, "       cinspect -decl <file.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			defer logger.Sync()
			engine.SetLogger(logger)
			library.SetLogger(logger)
			invoke.SetLogger(logger)
		}
	}

	opts := options{declFile: *declFile, target: *target, lib: *lib}
	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *funcName, *argList, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, funcName, argList string, listOnly bool) error {
	ctx := context.Background()

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	for _, w := range multierr.Errors(s.warnings) {
		fmt.Fprintf(os.Stderr, "skipped: %v\n", w)
	}

	p := &printer{w: os.Stdout, styled: term.IsTerminal(int(os.Stdout.Fd()))}
	if listOnly || funcName == "" {
		p.list(s.set)
		return nil
	}

	result, err := s.call(ctx, funcName, splitArgs(argList))
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	p.printf("%s = %s\n", p.render(funcStyle, funcName), p.render(resultStyle, result))
	return nil
}
