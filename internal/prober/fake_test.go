package prober

import (
	"context"
	"fmt"
	"sync"

	"dhtprobe/internal/dht"
)

// fakeSession is an in-memory stand-in for the node daemon. Records settle
// after offlinePolls propagation inspections; individual reads and
// creations can be forced to fail.
type fakeSession struct {
	mu      sync.Mutex
	nextKey int
	records map[string][]byte

	offlinePolls int
	inspects     map[string]int

	readErr      map[string]error
	readTruncate map[string]int

	createFailures int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		records:      map[string][]byte{},
		inspects:     map[string]int{},
		readErr:      map[string]error{},
		readTruncate: map[string]int{},
	}
}

// put seeds an existing record directly, bypassing creation.
func (s *fakeSession) put(key string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = payload
}

func (s *fakeSession) DebugPurge(ctx context.Context, scope string) error { return nil }

func (s *fakeSession) CreateRecord(ctx context.Context, subkeys int) (dht.RecordHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFailures > 0 {
		s.createFailures--
		return nil, fmt.Errorf("simulated allocation failure")
	}
	s.nextKey++
	key := fmt.Sprintf("VLD0:%06d", s.nextKey)
	s.records[key] = nil
	return &fakeHandle{sess: s, key: key}, nil
}

func (s *fakeSession) OpenRecord(ctx context.Context, key string) (dht.RecordHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return nil, fmt.Errorf("no such record %s", key)
	}
	return &fakeHandle{sess: s, key: key}, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeHandle struct {
	sess *fakeSession
	key  string
}

func (h *fakeHandle) Key() string { return h.key }

func (h *fakeHandle) WriteSubkey(ctx context.Context, subkey int, data []byte) error {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	h.sess.records[h.key] = data
	return nil
}

func (h *fakeHandle) ReadSubkey(ctx context.Context, subkey int, forceRefresh bool) ([]byte, error) {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	if err := h.sess.readErr[h.key]; err != nil {
		return nil, err
	}
	payload := h.sess.records[h.key]
	if n, ok := h.sess.readTruncate[h.key]; ok && n < len(payload) {
		payload = payload[:n]
	}
	return payload, nil
}

func (h *fakeHandle) InspectOffline(ctx context.Context) ([]dht.SubkeyRange, error) {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	h.sess.inspects[h.key]++
	if h.sess.inspects[h.key] <= h.sess.offlinePolls {
		return []dht.SubkeyRange{{Start: 0, End: 0}}, nil
	}
	return nil, nil
}

func (h *fakeHandle) Close(ctx context.Context) error { return nil }
