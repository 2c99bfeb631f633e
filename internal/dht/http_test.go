package dht

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// daemonStub implements just enough of the node daemon API to exercise the
// client: records live in memory and settle after a fixed number of
// propagation inspections.
type daemonStub struct {
	mu           sync.Mutex
	nextKey      int
	subkeys      map[string][]byte
	inspects     map[string]int
	offlinePolls int
}

func newDaemonStub(offlinePolls int) *daemonStub {
	return &daemonStub{
		subkeys:      map[string][]byte{},
		inspects:     map[string]int{},
		offlinePolls: offlinePolls,
	}
}

func (d *daemonStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"attached"}`))
	})
	mux.HandleFunc("POST /v1/debug/purge", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/records", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.nextKey++
		key := fmt.Sprintf("VLD0:%06d", d.nextKey)
		d.subkeys[key] = nil
		d.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"record_key": key})
	})
	mux.HandleFunc("POST /v1/records/{key}/open", func(w http.ResponseWriter, r *http.Request) {
		if !d.exists(r.PathValue("key")) {
			http.Error(w, "no such record", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/records/{key}/close", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /v1/records/{key}/subkeys/0", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.subkeys[r.PathValue("key")] = body
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/records/{key}/subkeys/0", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		data, ok := d.subkeys[r.PathValue("key")]
		d.mu.Unlock()
		if !ok {
			http.Error(w, "no such record", http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("GET /v1/records/{key}/offline", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.inspects[r.PathValue("key")]++
		settled := d.inspects[r.PathValue("key")] > d.offlinePolls
		d.mu.Unlock()

		resp := map[string][]SubkeyRange{"offline_subkeys": nil}
		if !settled {
			resp["offline_subkeys"] = []SubkeyRange{{Start: 0, End: 0}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func (d *daemonStub) exists(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.subkeys[key]
	return ok
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := Connect(context.Background(), srv.URL)
	if !errors.Is(err, ErrConnectionUnavailable) {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_RecordLifecycle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newDaemonStub(1).handler())
	defer srv.Close()

	ctx := context.Background()
	sess, err := Connect(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if err := sess.DebugPurge(ctx, "routes"); err != nil {
		t.Fatalf("DebugPurge: %v", err)
	}

	h, err := sess.CreateRecord(ctx, 1)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if h.Key() == "" {
		t.Fatalf("empty record key")
	}

	payload := []byte("hello dht")
	if err := h.WriteSubkey(ctx, 0, payload); err != nil {
		t.Fatalf("WriteSubkey: %v", err)
	}

	// One inspection still offline, then settled.
	ranges, err := h.InspectOffline(ctx)
	if err != nil {
		t.Fatalf("InspectOffline: %v", err)
	}
	if OfflineTotal(ranges) != 1 {
		t.Fatalf("offline total=%d", OfflineTotal(ranges))
	}
	ranges, err = h.InspectOffline(ctx)
	if err != nil {
		t.Fatalf("InspectOffline #2: %v", err)
	}
	if OfflineTotal(ranges) != 0 {
		t.Fatalf("offline total=%d after settle", OfflineTotal(ranges))
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := sess.OpenRecord(ctx, h.Key())
	if err != nil {
		t.Fatalf("OpenRecord: %v", err)
	}
	got, err := h2.ReadSubkey(ctx, 0, true)
	if err != nil {
		t.Fatalf("ReadSubkey: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload=%q", got)
	}
	if err := h2.Close(ctx); err != nil {
		t.Fatalf("Close #2: %v", err)
	}
}

func TestClient_OpenMissingRecordIncludesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newDaemonStub(0).handler())
	defer srv.Close()

	sess, err := Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	_, err = sess.OpenRecord(context.Background(), "VLD0:missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no such record") {
		t.Fatalf("error=%q", err.Error())
	}
}

func TestOfflineTotal(t *testing.T) {
	t.Parallel()

	if got := OfflineTotal(nil); got != 0 {
		t.Fatalf("empty=%d", got)
	}
	ranges := []SubkeyRange{{Start: 0, End: 0}, {Start: 2, End: 5}}
	if got := OfflineTotal(ranges); got != 5 {
		t.Fatalf("total=%d", got)
	}
}
