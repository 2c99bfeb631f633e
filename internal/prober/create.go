package prober

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/rand"
	"time"

	"dhtprobe/internal/config"
	"dhtprobe/internal/dht"
	"dhtprobe/internal/model"
)

// CreateProbe materializes one new active probe: allocate a single-subkey
// record, write a random payload, wait for it to settle, close it, and
// return the record state with the first evaluation scheduled at creation
// time.
//
// Any failure leaves nothing behind: the caller simply gets an error and no
// partially initialized record ever reaches the store.
func CreateProbe(ctx context.Context, sess dht.Session, cfg config.Config, now func() time.Time) (model.ProbeRecord, error) {
	payload, err := randomPayload(cfg.PayloadMinB, cfg.PayloadMaxB)
	if err != nil {
		return model.ProbeRecord{}, err
	}

	h, err := sess.CreateRecord(ctx, 1)
	if err != nil {
		return model.ProbeRecord{}, fmt.Errorf("create record: %w", err)
	}

	if err := h.WriteSubkey(ctx, 0, payload); err != nil {
		_ = h.Close(ctx)
		return model.ProbeRecord{}, fmt.Errorf("write payload: %w", err)
	}

	poll := time.Duration(cfg.SettlePollSec) * time.Second
	if err := waitSettled(ctx, h, poll, cfg.SettleMaxAttempts); err != nil {
		_ = h.Close(ctx)
		return model.ProbeRecord{}, fmt.Errorf("settle %s: %w", h.Key(), err)
	}

	if err := h.Close(ctx); err != nil {
		return model.ProbeRecord{}, fmt.Errorf("close record: %w", err)
	}

	next := model.Unix(now())
	return model.ProbeRecord{
		RecordKey:           h.Key(),
		PayloadSizeB:        len(payload),
		EvaluationIntervalH: cfg.IntervalsH[rand.Intn(len(cfg.IntervalsH))],
		NextEvaluationUnix:  &next,
	}, nil
}

// randomPayload draws a length uniformly from [minB, maxB] and fills it
// with random bytes.
func randomPayload(minB, maxB int) ([]byte, error) {
	n := minB + rand.Intn(maxB-minB+1)
	buf := make([]byte, n)
	if _, err := crand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
