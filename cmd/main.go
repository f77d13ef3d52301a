// Command cmd runs the analyzer on generated call trees. It is used to
// observe scheduling and summary reuse on programs of a known shape.
package main

import (
	"context"
	"flag"

	"github.com/o2lab/parbam/analyzer"
	"github.com/o2lab/parbam/config"
	"github.com/o2lab/parbam/stats"
	"github.com/o2lab/parbam/synth"
	"github.com/o2lab/parbam/verifier"
	log "github.com/sirupsen/logrus"
)

func main() {
	depth := flag.Int("depth", 4, "Depth of the call tree.")
	fanout := flag.Int("fanout", 3, "Callees per function.")
	calls := flag.Int("calls", 2, "Calls of each callee.")
	target := flag.Bool("target", false, "Place an error location in the last leaf.")
	workers := flag.Int("workers", 0, "Concurrent jobs, 0 for one per CPU.")
	traversal := flag.String("traversal", "dfs", "Waitlist order: dfs or bfs.")
	rounds := flag.Int("rounds", 1, "Number of analyses to run.")
	debug := flag.Bool("debug", false, "Prints debug messages.")
	help := flag.Bool("help", false, "Show all command-line options.")
	flag.Parse()
	if *help {
		flag.PrintDefaults()
		return
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	o := synth.Options{Depth: *depth, Fanout: *fanout, Calls: *calls, Target: *target}
	cfg := config.Default()
	cfg.Workers = *workers
	cfg.Traversal = *traversal
	log.Infof("Call tree %s: %d functions", o, o.Functions())
	for i := 0; i < *rounds; i++ {
		g, main := synth.CallTree(o)
		st := stats.New(nil)
		report, err := verifier.Check(context.Background(), cfg, g, main, analyzer.WithStats(st))
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("Round %d: %s in %v", i, report, report.Elapsed)
		if i == *rounds-1 {
			st.Show()
		}
	}
}
