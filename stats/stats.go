package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const namespace = "parbam"

// Stats collects counters of one analysis run. All methods are safe for
// concurrent use; nothing here ever blocks the analysis.
type Stats struct {
	activeThreads     prometheus.Gauge
	activeThreadsHist prometheus.Histogram
	maxFrontiers      prometheus.Gauge
	executions        prometheus.Histogram
	frontiersCreated  prometheus.Counter
	cacheLookups      *prometheus.CounterVec
	missingBlocks     prometheus.Counter
	steps             prometheus.Counter
	jobs              prometheus.Counter
	suppressed        prometheus.Counter

	active       atomic.Int64
	maxActive    atomic.Int64
	maxFrontierN atomic.Int64
	created      atomic.Int64
	finished     atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	pending      atomic.Int64
	missing      atomic.Int64
	stepN        atomic.Int64
	jobN         atomic.Int64
	suppressedN  atomic.Int64
	maxExecs     atomic.Int64
}

// New creates the collectors and registers them with reg, if reg is not nil.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		activeThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_threads",
			Help:      "Number of executor jobs currently running",
		}),
		activeThreadsHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "active_threads_observed",
			Help:      "Number of running jobs observed whenever a job starts",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		maxFrontiers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_frontiers",
			Help:      "Maximum number of frontiers registered at the same time",
		}),
		executions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frontier_executions",
			Help:      "Number of jobs a frontier needed until it terminated",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		frontiersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frontiers_created_total",
			Help:      "Sub-frontiers created for missing blocks",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Block summary lookups by result (hit, miss, pending)",
		}, []string{"result"}),
		missingBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_blocks_total",
			Help:      "Missing-block signals handled by executors",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "States taken from waitlists",
		}),
		jobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Executor jobs run",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Jobs rejected or cancelled by a pool shutdown",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.activeThreads, s.activeThreadsHist, s.maxFrontiers, s.executions,
			s.frontiersCreated, s.cacheLookups, s.missingBlocks, s.steps, s.jobs, s.suppressed)
	}
	return s
}

// ThreadStarted records a job start and returns the number of running jobs.
func (s *Stats) ThreadStarted() int64 {
	n := s.active.Add(1)
	s.activeThreads.Inc()
	s.activeThreadsHist.Observe(float64(n))
	s.jobs.Inc()
	s.jobN.Add(1)
	storeMax(&s.maxActive, n)
	return n
}

func (s *Stats) ThreadFinished() {
	s.active.Add(-1)
	s.activeThreads.Dec()
}

// ObserveFrontiers records the current number of registered frontiers.
func (s *Stats) ObserveFrontiers(n int) {
	if storeMax(&s.maxFrontierN, int64(n)) {
		s.maxFrontiers.Set(float64(n))
	}
}

func (s *Stats) FrontierCreated() {
	s.created.Add(1)
	s.frontiersCreated.Inc()
}

// FrontierFinished records how many jobs a terminated frontier took.
func (s *Stats) FrontierFinished(executions int) {
	s.finished.Add(1)
	s.executions.Observe(float64(executions))
	storeMax(&s.maxExecs, int64(executions))
}

func (s *Stats) CacheHit() {
	s.hits.Add(1)
	s.cacheLookups.WithLabelValues("hit").Inc()
}

func (s *Stats) CacheMiss() {
	s.misses.Add(1)
	s.cacheLookups.WithLabelValues("miss").Inc()
}

// CachePending counts lookups that found a registered but unfinished entry.
func (s *Stats) CachePending() {
	s.pending.Add(1)
	s.cacheLookups.WithLabelValues("pending").Inc()
}

func (s *Stats) MissingBlock() {
	s.missing.Add(1)
	s.missingBlocks.Inc()
}

func (s *Stats) Step() {
	s.stepN.Add(1)
	s.steps.Inc()
}

func (s *Stats) Suppressed() {
	s.suppressedN.Add(1)
	s.suppressed.Inc()
}

type Snapshot struct {
	Jobs             int64
	MaxActiveThreads int64
	MaxFrontiers     int64
	FrontiersCreated int64
	FrontiersDone    int64
	MaxExecutions    int64
	CacheHits        int64
	CacheMisses      int64
	CachePending     int64
	MissingBlocks    int64
	Steps            int64
	Suppressed       int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Jobs:             s.jobN.Load(),
		MaxActiveThreads: s.maxActive.Load(),
		MaxFrontiers:     s.maxFrontierN.Load(),
		FrontiersCreated: s.created.Load(),
		FrontiersDone:    s.finished.Load(),
		MaxExecutions:    s.maxExecs.Load(),
		CacheHits:        s.hits.Load(),
		CacheMisses:      s.misses.Load(),
		CachePending:     s.pending.Load(),
		MissingBlocks:    s.missing.Load(),
		Steps:            s.stepN.Load(),
		Suppressed:       s.suppressedN.Load(),
	}
}

func (s *Stats) Show() {
	snap := s.Snapshot()
	log.Info("------ STATS ------")
	log.Infof("  %-28s:%10d", "Jobs", snap.Jobs)
	log.Infof("  %-28s:%10d", "Max active threads", snap.MaxActiveThreads)
	log.Infof("  %-28s:%10d", "Max registered frontiers", snap.MaxFrontiers)
	log.Infof("  %-28s:%10d", "Sub-frontiers created", snap.FrontiersCreated)
	log.Infof("  %-28s:%10d", "Frontiers terminated", snap.FrontiersDone)
	log.Infof("  %-28s:%10d", "Max jobs per frontier", snap.MaxExecutions)
	log.Infof("  %-28s:%10d", "Cache hits", snap.CacheHits)
	log.Infof("  %-28s:%10d", "Cache misses", snap.CacheMisses)
	log.Infof("  %-28s:%10d", "Cache pending", snap.CachePending)
	log.Infof("  %-28s:%10d", "Missing blocks", snap.MissingBlocks)
	log.Infof("  %-28s:%10d", "Waitlist pops", snap.Steps)
	log.Infof("  %-28s:%10d", "Suppressed jobs", snap.Suppressed)
	log.Info("-------------------")
}

func storeMax(v *atomic.Int64, n int64) bool {
	for {
		cur := v.Load()
		if n <= cur {
			return false
		}
		if v.CompareAndSwap(cur, n) {
			return true
		}
	}
}
