// Package stats computes offline summaries over the persisted probe
// snapshot. It depends only on the snapshot schema, never on scheduler
// state.
package stats

import (
	"math"
	"sort"

	"dhtprobe/internal/model"
)

// Summary is a basic statistics snapshot over all probes.
type Summary struct {
	Total  int
	Active int
	Failed int

	Evaluations  int
	AvgDurationS float64
	P95DurationS float64
	MinDurationS float64
	MaxDurationS float64

	AvgPayloadB float64

	// Lifetimes groups observed record lifetimes by evaluation interval.
	Lifetimes map[int]LifetimeSummary
}

// LifetimeSummary aggregates record lifetimes for one evaluation interval.
type LifetimeSummary struct {
	Count  int
	MinH   float64
	MaxH   float64
	AvgH   float64
	Failed int
}

// Summarize computes summary statistics over a snapshot.
func Summarize(records map[string]model.ProbeRecord) Summary {
	s := Summary{
		Total:     len(records),
		Lifetimes: map[int]LifetimeSummary{},
	}
	if len(records) == 0 {
		return s
	}

	var durations []float64
	var sumPayload float64
	lifetimes := map[int][]float64{}
	lifetimeFailed := map[int]int{}

	for key := range records {
		rec := records[key]
		if rec.Active() {
			s.Active++
		} else {
			s.Failed++
		}
		sumPayload += float64(rec.PayloadSizeB)
		durations = append(durations, rec.EvaluationDurationsS...)

		if lifetime, ok := rec.Lifetime(); ok {
			h := rec.EvaluationIntervalH
			lifetimes[h] = append(lifetimes[h], lifetime)
			if !rec.Active() {
				lifetimeFailed[h]++
			}
		}
	}

	s.AvgPayloadB = sumPayload / float64(s.Total)
	s.Evaluations = len(durations)

	if len(durations) > 0 {
		sort.Float64s(durations)
		s.MinDurationS = durations[0]
		s.MaxDurationS = durations[len(durations)-1]
		var sum float64
		for _, d := range durations {
			sum += d
		}
		s.AvgDurationS = sum / float64(len(durations))
		s.P95DurationS = percentile(durations, 0.95)
	}

	for h, values := range lifetimes {
		ls := LifetimeSummary{
			Count:  len(values),
			MinH:   math.MaxFloat64,
			Failed: lifetimeFailed[h],
		}
		var sum float64
		for _, v := range values {
			vh := v / 3600
			sum += vh
			if vh < ls.MinH {
				ls.MinH = vh
			}
			if vh > ls.MaxH {
				ls.MaxH = vh
			}
		}
		ls.AvgH = sum / float64(ls.Count)
		s.Lifetimes[h] = ls
	}

	return s
}

// percentile expects values to be sorted ascending.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
