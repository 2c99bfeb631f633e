package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dhtprobe/internal/model"
)

// HTTPStore reads and writes the snapshot at a remote URL. The same document
// the analysis tooling fetches over HTTP is also the prober's durable state,
// so one deployment can serve both.
type HTTPStore struct {
	url  string
	http *http.Client
}

// NewHTTPStore creates a store backed by the given snapshot URL.
func NewHTTPStore(url string) *HTTPStore {
	return &HTTPStore{
		url: url,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Load fetches the snapshot. 404 means no snapshot has been written yet.
func (s *HTTPStore) Load(ctx context.Context) (map[string]model.ProbeRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	res, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return map[string]model.ProbeRecord{}, nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError(res)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// Save uploads the full snapshot with a single PUT.
func (s *HTTPStore) Save(ctx context.Context, records map[string]model.ProbeRecord) error {
	data, err := encodeSnapshot(records)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(res)
	}
	return nil
}

func statusError(res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("snapshot request failed: %s: %s", res.Status, msg)
	}
	return fmt.Errorf("snapshot request failed: %s", res.Status)
}
