package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/logrusorgru/aurora"
	"github.com/o2lab/parbam/analyzer"
	"github.com/o2lab/parbam/config"
	"github.com/o2lab/parbam/stats"
	"github.com/o2lab/parbam/verifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "parbam"
	app.Usage = "check whether a Go program can reach an error location"
	app.ArgsUsage = "[packages]"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "load options from `FILE` (default ./" + config.FileName + " if present)"},
		cli.IntFlag{Name: "workers, j", Usage: "number of concurrent jobs, 0 for one per CPU"},
		cli.StringFlag{Name: "traversal", Usage: "waitlist order of block frontiers: dfs or bfs"},
		cli.StringFlag{Name: "time-limit", Usage: "abort the analysis after `DURATION`"},
		cli.StringFlag{Name: "dir", Value: ".", Usage: "directory the packages are loaded from"},
		cli.BoolFlag{Name: "debug", Usage: "print debug messages"},
		cli.BoolFlag{Name: "stats", Usage: "print analysis statistics"},
		cli.BoolFlag{Name: "no-color", Usage: "disable colored verdicts"},
		cli.StringFlag{Name: "metrics-addr", Usage: "serve prometheus metrics on `ADDR`"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	if c.Bool("debug") {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	st := stats.New(prometheus.DefaultRegisterer)
	if addr := c.String("metrics-addr"); addr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
		log.Infof("Serving metrics on %s/metrics", addr)
	}

	patterns := c.Args()
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := verifier.Verify(ctx, cfg, c.String("dir"), patterns, analyzer.WithStats(st))
	if err != nil {
		return err
	}
	au := aurora.NewAurora(!c.Bool("no-color"))
	switch report.Verdict {
	case analyzer.TargetFound:
		fmt.Println(au.BrightRed("UNSAFE"), "-", report.Reason, "reachable in", au.BrightGreen(report.TargetFunction), "at", au.Magenta(report.Target))
		log.Infof("Target is %d calls deep", report.CallDepth)
	case analyzer.NoTargetFound:
		fmt.Println(au.Green("SAFE"), "-", report.Verdict)
	default:
		fmt.Println(au.Yellow("UNKNOWN"), "-", report.Verdict)
	}
	log.Infof("%d functions, %d blocks, %d summaries in %v", report.Functions, report.Blocks, report.Summaries, report.Elapsed)
	if c.Bool("stats") {
		st.Show()
	}
	return nil
}

// loadConfig reads the config file, if any, and applies the flags on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.FileName); err == nil {
			path = config.FileName
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.DecodeYmlFile(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("traversal") {
		cfg.Traversal = c.String("traversal")
	}
	if c.IsSet("time-limit") {
		cfg.TimeLimit = c.String("time-limit")
	}
	return cfg, cfg.Validate()
}
