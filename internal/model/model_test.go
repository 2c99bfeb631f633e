package model

import (
	"testing"
	"time"
)

func TestTerminate_FirstReasonWins(t *testing.T) {
	t.Parallel()

	next := 1000.0
	rec := ProbeRecord{RecordKey: "k", NextEvaluationUnix: &next}

	rec.Terminate("read failed: boom")
	if rec.Active() {
		t.Fatalf("record still active")
	}
	if rec.FailureReason != "read failed: boom" {
		t.Fatalf("reason=%q", rec.FailureReason)
	}

	rec.Terminate("second reason")
	if rec.FailureReason != "read failed: boom" {
		t.Fatalf("reason overwritten: %q", rec.FailureReason)
	}
	if rec.NextEvaluationUnix != nil {
		t.Fatalf("next evaluation resurrected")
	}
}

func TestDue(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	past := Unix(now) - 10
	future := Unix(now) + 10

	cases := []struct {
		name string
		next *float64
		want bool
	}{
		{"past", &past, true},
		{"future", &future, false},
		{"terminated", nil, false},
	}
	for _, tc := range cases {
		rec := ProbeRecord{NextEvaluationUnix: tc.next}
		if got := rec.Due(now); got != tc.want {
			t.Fatalf("%s: due=%v", tc.name, got)
		}
	}
}

func TestAppendEvaluation_KeepsHistoriesAligned(t *testing.T) {
	t.Parallel()

	var rec ProbeRecord
	start := time.Unix(1_700_000_000, 500_000_000)
	rec.AppendEvaluation(start, 1500*time.Millisecond)
	rec.AppendEvaluation(start.Add(time.Hour), 2*time.Second)

	if len(rec.EvaluationStartUnix) != len(rec.EvaluationDurationsS) {
		t.Fatalf("history lengths differ: %d vs %d",
			len(rec.EvaluationStartUnix), len(rec.EvaluationDurationsS))
	}
	if got := rec.EvaluationStartUnix[0]; got != 1_700_000_000.5 {
		t.Fatalf("start[0]=%v", got)
	}
	if got := rec.EvaluationDurationsS[0]; got != 1.5 {
		t.Fatalf("duration[0]=%v", got)
	}
}

func TestLifetime(t *testing.T) {
	t.Parallel()

	rec := ProbeRecord{
		EvaluationStartUnix:  []float64{100},
		EvaluationDurationsS: []float64{1},
	}
	if _, ok := rec.Lifetime(); ok {
		t.Fatalf("single evaluation should have no lifetime")
	}

	rec.EvaluationStartUnix = append(rec.EvaluationStartUnix, 7300)
	rec.EvaluationDurationsS = append(rec.EvaluationDurationsS, 2.5)
	lifetime, ok := rec.Lifetime()
	if !ok {
		t.Fatalf("expected lifetime")
	}
	if lifetime != 7202.5 {
		t.Fatalf("lifetime=%v", lifetime)
	}
}
