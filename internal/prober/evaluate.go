package prober

import (
	"context"
	"fmt"
	"time"

	"dhtprobe/internal/dht"
	"dhtprobe/internal/model"
)

// Evaluate runs exactly one read attempt for an active probe: open the
// record, read subkey 0 bypassing the daemon cache, close, and compare the
// returned length against the payload written at creation.
//
// On success the next evaluation advances by the probe's interval from its
// previous scheduled time, not from "now". A delayed cycle therefore does
// not shift the cadence.
//
// Evaluate never returns an error: any transport failure or size mismatch
// terminates the probe inside the returned record. The start/duration pair
// is appended either way.
func Evaluate(ctx context.Context, sess dht.Session, rec model.ProbeRecord, now func() time.Time) model.ProbeRecord {
	start := now()
	payload, err := fetchPayload(ctx, sess, rec.RecordKey)
	rec.AppendEvaluation(start, now().Sub(start))

	switch {
	case err != nil:
		rec.Terminate(fmt.Sprintf("read failed: %v", err))
	case len(payload) != rec.PayloadSizeB:
		rec.Terminate(fmt.Sprintf("payload size mismatch: got %d want %d", len(payload), rec.PayloadSizeB))
	default:
		next := *rec.NextEvaluationUnix + float64(rec.EvaluationIntervalH)*3600
		rec.NextEvaluationUnix = &next
	}
	return rec
}

// fetchPayload performs the single open/read/close sequence of an
// evaluation.
func fetchPayload(ctx context.Context, sess dht.Session, key string) ([]byte, error) {
	h, err := sess.OpenRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	payload, err := h.ReadSubkey(ctx, 0, true)
	if err != nil {
		_ = h.Close(ctx)
		return nil, err
	}
	if err := h.Close(ctx); err != nil {
		return nil, err
	}
	return payload, nil
}
