// Package explore runs the fixed-point loop over one frontier.
package explore

import (
	"context"
	"errors"
	"fmt"

	"github.com/o2lab/parbam/domain"
	"github.com/o2lab/parbam/frontier"
	"github.com/o2lab/parbam/stats"
	log "github.com/sirupsen/logrus"
)

type Status struct {
	TargetFound bool
}

type Algorithm[S, P comparable] struct {
	dom      domain.Domain[S, P]
	transfer *Transfer[S, P]
	stats    *stats.Stats
}

func New[S, P comparable](dom domain.Domain[S, P], t *Transfer[S, P], st *stats.Stats) *Algorithm[S, P] {
	return &Algorithm[S, P]{dom: dom, transfer: t, stats: st}
}

// Run explores fr until its waitlist is empty, a target state is added, or a
// state needs a block summary that is not available. In the last case the
// state is put back on the waitlist and a *MissingBlockError is returned.
func (a *Algorithm[S, P]) Run(ctx context.Context, fr *frontier.Frontier[S, P]) (Status, error) {
	for fr.HasWaiting() {
		if err := ctx.Err(); err != nil {
			return Status{}, err
		}
		s, p, _ := fr.Pop()
		a.stats.Step()

		adjusted, ap, err := a.dom.AdjustPrecision(s, p)
		if err != nil {
			return Status{}, fmt.Errorf("adjust precision of %v: %w", s, err)
		}
		switch {
		case adjusted != s:
			fr.Replace(s, adjusted, ap)
			fr.RemoveOnlyFromWaitlist(adjusted)
		case ap != p:
			fr.SetPrecision(s, ap)
		}

		succs, err := a.transfer.Successors(fr, adjusted, ap)
		if err != nil {
			var mb *MissingBlockError[S, P]
			if errors.As(err, &mb) {
				log.Debugf("%v: missing block %s for %v", fr, mb.Block, adjusted)
				fr.ReAddToWaitlist(adjusted)
				return Status{}, err
			}
			return Status{}, fmt.Errorf("successors of %v: %w", adjusted, err)
		}

		for _, succ := range succs {
			added, err := a.add(fr, succ, ap)
			if err != nil {
				return Status{}, err
			}
			if added && a.dom.IsTarget(succ) {
				log.Debugf("%v: target %v reached from %v", fr, succ, adjusted)
				return Status{TargetFound: true}, nil
			}
		}
	}
	return Status{}, nil
}

// add merges succ into the states at its location and adds it unless it is
// covered.
func (a *Algorithm[S, P]) add(fr *frontier.Frontier[S, P], succ S, p P) (bool, error) {
	loc := a.dom.Location(succ)
	for _, r := range append([]S(nil), fr.StatesAt(loc)...) {
		merged, err := a.dom.Merge(succ, r, p)
		if err != nil {
			return false, fmt.Errorf("merge %v into %v: %w", succ, r, err)
		}
		if merged != r {
			fr.Replace(r, merged, p)
		}
	}
	stop, err := a.dom.Stop(succ, fr.StatesAt(loc), p)
	if err != nil {
		return false, fmt.Errorf("stop %v: %w", succ, err)
	}
	if stop {
		return false, nil
	}
	fr.Add(succ, p)
	return true, nil
}
