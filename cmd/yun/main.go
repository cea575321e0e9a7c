// Yun CLI - assembles and runs YASN programs.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/yunvm/yun/compiler"
	"github.com/yunvm/yun/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	disassemble := flag.Bool("d", false, "Disassemble instead of running")
	dumpTokens := flag.Bool("t", false, "Print the token stream instead of running")
	verbose := flag.Bool("v", false, "Verbose logging")
	configPath := flag.String("config", "", "Config file (default yun.toml if present)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: yun [options] INPUT\n\n")
		fmt.Fprintf(os.Stderr, "Assembles the YASN program in INPUT and executes its main function.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  yun prog.yasn         # Assemble and run\n")
		fmt.Fprintf(os.Stderr, "  yun -d prog.yasn      # Show the assembled unit\n")
		fmt.Fprintf(os.Stderr, "  yun -t prog.yasn      # Show the token stream\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fail(err)
	}

	source, err := os.ReadFile(input)
	if err != nil {
		fail(err)
	}

	if *dumpTokens {
		tokens, err := compiler.NewLexer(string(source)).Scan()
		if err != nil {
			fail(err)
		}
		for _, t := range tokens {
			fmt.Println(t)
		}
		return
	}

	unit, err := assemble(cfg, input, source)
	if err != nil {
		fail(err)
	}

	if *disassemble {
		fmt.Print(unit.Disassemble())
		return
	}

	machine := vm.NewVM(unit,
		vm.WithRegisterFileSize(cfg.Registers),
		vm.WithHeapSize(cfg.Heap),
		vm.WithTrace(cfg.Trace),
	)
	if err := machine.Run(); err != nil {
		fail(err)
	}
}

// assemble turns source into a unit, going through the cache when one is
// configured.
func assemble(cfg Config, input string, source []byte) (*vm.ExecutionUnit, error) {
	unitName := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	var store *vm.UnitStore
	if cfg.Cache != "" {
		var err error
		if store, err = vm.OpenUnitStore(cfg.Cache); err != nil {
			return nil, err
		}
		defer store.Close()

		if unit, err := store.Get(source); err == nil && unit != nil {
			return unit, nil
		}
	}

	unit, err := compiler.Compile(unitName, string(source))
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Put(source, unit); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: caching unit: %v\n", err)
		}
	}
	return unit, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
