package model

import "time"

// ProbeRecord tracks one DHT record under test, from creation until its
// first failed read. The JSON field names are a stable contract: the
// offline analysis tooling reads the persisted snapshot directly.
type ProbeRecord struct {
	// RecordKey is assigned by the network layer at creation and never changes.
	RecordKey string `json:"record_key"`

	// PayloadSizeB is the length of the random payload written at creation.
	// Reads returning a different length terminate the probe.
	PayloadSizeB int `json:"payload_size_b"`

	// EvaluationIntervalH is the re-read cadence in hours, drawn from a fixed
	// set at creation.
	EvaluationIntervalH int `json:"evaluation_interval_h"`

	// NextEvaluationUnix is the scheduled time of the next read, in unix
	// seconds. Nil marks a terminally failed probe; it never becomes non-nil
	// again.
	NextEvaluationUnix *float64 `json:"next_evaluation_unixtime"`

	// EvaluationStartUnix and EvaluationDurationsS record every read attempt,
	// including the failing one. Always equal length, append-only.
	EvaluationStartUnix  []float64 `json:"evaluation_start_unixtimes"`
	EvaluationDurationsS []float64 `json:"evaluation_durations_s"`

	// FailureReason is set once, on the evaluation that terminated the probe.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Active reports whether the probe is still eligible for future evaluations.
func (r *ProbeRecord) Active() bool {
	return r.NextEvaluationUnix != nil
}

// Due reports whether the probe's next evaluation is scheduled before now.
func (r *ProbeRecord) Due(now time.Time) bool {
	return r.NextEvaluationUnix != nil && *r.NextEvaluationUnix < Unix(now)
}

// Terminate marks the probe as permanently failed. The first reason wins;
// termination is irreversible.
func (r *ProbeRecord) Terminate(reason string) {
	r.NextEvaluationUnix = nil
	if r.FailureReason == "" {
		r.FailureReason = reason
	}
}

// AppendEvaluation records one read attempt.
func (r *ProbeRecord) AppendEvaluation(start time.Time, duration time.Duration) {
	r.EvaluationStartUnix = append(r.EvaluationStartUnix, Unix(start))
	r.EvaluationDurationsS = append(r.EvaluationDurationsS, duration.Seconds())
}

// Lifetime returns the observed record lifetime in seconds: first evaluation
// start to the end of the last evaluation. Records with fewer than two
// evaluations have no measurable lifetime yet.
func (r *ProbeRecord) Lifetime() (float64, bool) {
	n := len(r.EvaluationStartUnix)
	if n < 2 || len(r.EvaluationDurationsS) != n {
		return 0, false
	}
	return r.EvaluationStartUnix[n-1] - r.EvaluationStartUnix[0] + r.EvaluationDurationsS[n-1], true
}

// Unix converts a time to fractional unix seconds, the unit used throughout
// the persisted snapshot.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
