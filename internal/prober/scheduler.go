// Package prober implements the probe lifecycle: creating probe records on
// the DHT, re-reading them on schedule, classifying the outcomes, and
// keeping the active population at its target size.
package prober

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"dhtprobe/internal/config"
	"dhtprobe/internal/dht"
	"dhtprobe/internal/model"
	"dhtprobe/internal/store"
)

// Scheduler runs maintenance cycles against one store and one daemon
// session. The process is expected to run one cycle per invocation, driven
// by an external timer; nothing here guards against two overlapping cycles
// writing the same store.
type Scheduler struct {
	Session dht.Session
	Store   store.Store
	Config  config.Config

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// CycleSummary describes what one maintenance cycle did.
type CycleSummary struct {
	Evaluated    int
	NewlyFailed  int
	Created      int
	CreateFailed int
	Active       int
	Total        int
}

// RunCycle executes one full maintenance cycle:
// load -> evaluate all due probes -> merge -> fill the population deficit
// -> merge -> save. Both the evaluation batch and the creation batch are
// fan-out/fan-in barriers: every member finishes before the cycle moves
// on, and one member's failure never affects its siblings.
//
// The store is written exactly once, at the very end. A cycle killed
// mid-flight loses only its in-flight batch; the previous snapshot stays
// intact.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleSummary, error) {
	clock := s.clock()

	records, err := s.Store.Load(ctx)
	if err != nil {
		return CycleSummary{}, err
	}

	now := clock()
	var due []string
	for key := range records {
		rec := records[key]
		if rec.Due(now) {
			due = append(due, key)
		}
	}

	summary := CycleSummary{Evaluated: len(due)}

	evaluated := make([]model.ProbeRecord, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit())
	for i, key := range due {
		rec := records[key]
		g.Go(func() error {
			evaluated[i] = Evaluate(gctx, s.Session, rec, clock)
			return nil
		})
	}
	// Evaluate converts every failure into record state, so Wait is purely
	// the batch barrier.
	_ = g.Wait()

	for _, rec := range evaluated {
		if !rec.Active() {
			summary.NewlyFailed++
			log.Printf("probe %s failed: %s", rec.RecordKey, rec.FailureReason)
		}
		records[rec.RecordKey] = rec
	}

	active := 0
	for key := range records {
		rec := records[key]
		if rec.Active() {
			active++
		}
	}
	deficit := s.Config.TargetPopulation - active
	if deficit < 0 {
		deficit = 0
	}

	created := make([]*model.ProbeRecord, deficit)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.limit())
	for i := 0; i < deficit; i++ {
		g.Go(func() error {
			rec, err := CreateProbe(gctx, s.Session, s.Config, clock)
			if err != nil {
				// A failed creation adds nothing; the deficit carries over
				// to the next cycle.
				log.Printf("probe creation failed: %v", err)
				return nil
			}
			created[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range created {
		if rec == nil {
			summary.CreateFailed++
			continue
		}
		records[rec.RecordKey] = *rec
		summary.Created++
	}

	if err := s.Store.Save(ctx, records); err != nil {
		return summary, err
	}

	for key := range records {
		rec := records[key]
		if rec.Active() {
			summary.Active++
		}
	}
	summary.Total = len(records)
	return summary, nil
}

func (s *Scheduler) clock() func() time.Time {
	if s.Now != nil {
		return s.Now
	}
	return time.Now
}

func (s *Scheduler) limit() int {
	if s.Config.ConcurrencyLimit > 0 {
		return s.Config.ConcurrencyLimit
	}
	return config.DefaultConcurrencyLimit
}
