// Package preprocessor turns Go packages into a control-flow automaton: it
// loads the packages, builds SSA and translates every function reachable from
// the entry function.
package preprocessor

import (
	"errors"
	"fmt"
	"go/token"

	"github.com/o2lab/parbam/cfa"
	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

var ErrNoMain = errors.New("entry function not found")

type Options struct {
	// Entry is the name of the entry function in a main package.
	Entry string
	// TargetFunctions are the functions whose calls are error locations.
	TargetFunctions []string
	// PanicIsTarget makes every panic an error location.
	PanicIsTarget bool
}

// Program is the result of preprocessing.
type Program struct {
	Graph     *cfa.Graph
	Entry     *cfa.Function
	Fset      *token.FileSet
	Functions map[*ssa.Function]*cfa.Function
}

// Load loads the packages matching patterns relative to dir and builds the
// automaton of the program rooted at the entry function.
func Load(dir string, patterns []string, opts Options) (*Program, error) {
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	log.Infof("Loading packages %s", patterns)
	initial, err := packages.Load(&packages.Config{
		Mode: packages.LoadAllSyntax,
		Dir:  dir,
	}, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if packages.PrintErrors(initial) > 0 {
		return nil, errors.New("packages contain errors")
	}
	if len(initial) == 0 {
		return nil, errors.New("package list empty")
	}
	for _, pkg := range initial {
		log.Debug(pkg.ID, pkg.GoFiles)
	}

	log.Infoln("Packages loaded. Building SSA...")
	prog, pkgs := ssautil.Packages(initial, 0)
	prog.Build()
	log.Infof("SSA built for %d packages", len(pkgs))

	entry := entryFunction(pkgs, opts.Entry)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMain, opts.Entry)
	}
	return Build(prog, entry, opts)
}

func entryFunction(pkgs []*ssa.Package, name string) *ssa.Function {
	for _, pkg := range pkgs {
		if pkg == nil || pkg.Pkg.Name() != "main" {
			continue
		}
		if fn := pkg.Func(name); fn != nil {
			return fn
		}
	}
	return nil
}

// Build translates entry and every function with a body it statically calls.
func Build(prog *ssa.Program, entry *ssa.Function, opts Options) (*Program, error) {
	if entry.Blocks == nil {
		return nil, fmt.Errorf("%w: %s has no body", ErrNoMain, entry)
	}
	targets := make(map[string]bool, len(opts.TargetFunctions))
	for _, name := range opts.TargetFunctions {
		targets[name] = true
	}
	b := &builder{
		fset:      prog.Fset,
		graph:     cfa.New(),
		functions: make(map[*ssa.Function]*cfa.Function),
		targets:   targets,
		panics:    opts.PanicIsTarget,
	}

	reachable := reachableFunctions(prog, entry, func(fn *ssa.Function) bool {
		return !targets[fn.Name()]
	})
	for _, fn := range reachable {
		b.functions[fn] = b.graph.AddFunction(fn.String())
	}
	for _, fn := range reachable {
		b.function(fn)
	}
	log.Infof("Built automaton with %d functions and %d nodes", len(reachable), len(b.graph.Nodes()))
	return &Program{
		Graph:     b.graph,
		Entry:     b.functions[entry],
		Fset:      prog.Fset,
		Functions: b.functions,
	}, nil
}
