// Package verifier checks whether a program can reach an error location,
// wiring the front end, the block partitioning and the location domain into
// the analyzer.
package verifier

import (
	"context"
	"fmt"
	"go/token"
	"time"

	"github.com/o2lab/parbam/analyzer"
	"github.com/o2lab/parbam/block"
	"github.com/o2lab/parbam/cfa"
	"github.com/o2lab/parbam/config"
	"github.com/o2lab/parbam/location"
	"github.com/o2lab/parbam/preprocessor"
	"github.com/o2lab/parbam/stats"
	log "github.com/sirupsen/logrus"
)

type Report struct {
	Verdict analyzer.Verdict
	// Target is the error location reached, if any.
	Target         token.Position
	TargetFunction string
	// Reason names the call that makes the location an error location.
	Reason string
	// CallDepth is the number of pending calls at the target.
	CallDepth int

	Functions int
	Blocks    int
	Nodes     int
	Summaries int
	Stats     stats.Snapshot
	Elapsed   time.Duration
}

func (r Report) String() string {
	if r.Verdict == analyzer.TargetFound {
		return fmt.Sprintf("%s: %s in %s (%s)", r.Verdict, r.Target, r.TargetFunction, r.Reason)
	}
	return r.Verdict.String()
}

// Verify loads the packages matching patterns in dir and checks the program.
func Verify(ctx context.Context, cfg config.Config, dir string, patterns []string, opts ...analyzer.Option) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	prog, err := preprocessor.Load(dir, patterns, preprocessor.Options{
		Entry:           cfg.Entry,
		TargetFunctions: cfg.TargetFunctions,
		PanicIsTarget:   cfg.PanicIsTarget,
	})
	if err != nil {
		return Report{}, err
	}
	return Check(ctx, cfg, prog.Graph, prog.Entry, opts...)
}

// Check analyzes the automaton g starting at entry. Options are applied after
// the ones derived from cfg.
func Check(ctx context.Context, cfg config.Config, g *cfa.Graph, entry *cfa.Function, opts ...analyzer.Option) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	order, _ := cfg.Order()
	limit, _ := cfg.Duration()
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	part, err := block.FunctionPartitioning(g, entry, cfg.MinBlockSize)
	if err != nil {
		return Report{}, err
	}
	log.Infof("Partitioned %d functions into %d blocks", len(g.Functions()), len(part.Blocks()))

	a := analyzer.New[location.State, location.Precision](location.Domain{}, part, append([]analyzer.Option{
		analyzer.WithWorkers(cfg.Workers),
		analyzer.WithMissingBlockRetries(cfg.MissingBlockRetries),
		analyzer.WithOrder(order),
	}, opts...)...)
	s, p := location.Initial(entry.Entry)
	start := time.Now()
	res, err := a.Analyze(ctx, a.MainFrontier(s, p, order))
	report := Report{
		Verdict:   res.Verdict,
		Functions: len(g.Functions()),
		Blocks:    len(part.Blocks()),
		Nodes:     len(g.Nodes()),
		Summaries: len(res.Summaries),
		Stats:     res.Stats,
		Elapsed:   time.Since(start),
	}
	if err != nil {
		return report, err
	}
	if res.Verdict == analyzer.TargetFound {
		report.Target = res.Target.Node.Pos
		report.TargetFunction = res.Target.Node.Function.Name
		for _, e := range res.Target.Node.Entering {
			report.Reason = e.Label
		}
		report.CallDepth = res.Target.Depth()
	}
	return report, nil
}
