package dht

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrConnectionUnavailable means no session to the node daemon could be
// established at all. This is the one fatal network condition: without a
// session nothing in a maintenance cycle can proceed.
var ErrConnectionUnavailable = errors.New("dht: node daemon unreachable")

// Client talks JSON over HTTP to a local node daemon exposing the record
// API. It implements Session.
type Client struct {
	baseURL string
	http    *http.Client
}

// Connect verifies the daemon is reachable and returns a session. Reads can
// block on network consensus for a while, hence the generous timeout.
func Connect(ctx context.Context, baseURL string) (*Client, error) {
	c := &Client{
		baseURL: normalizeBaseURL(baseURL),
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	if err := c.getJSON(ctx, "/v1/status", nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	return c, nil
}

// DebugPurge asks the daemon to drop stale state for the given scope.
func (c *Client) DebugPurge(ctx context.Context, scope string) error {
	req := struct {
		Scope string `json:"scope"`
	}{Scope: scope}
	return c.postJSON(ctx, "/v1/debug/purge", req, nil)
}

// CreateRecord allocates a record and returns it opened.
func (c *Client) CreateRecord(ctx context.Context, subkeys int) (RecordHandle, error) {
	req := struct {
		SubkeyCount int `json:"subkey_count"`
	}{SubkeyCount: subkeys}
	var resp struct {
		RecordKey string `json:"record_key"`
	}
	if err := c.postJSON(ctx, "/v1/records", req, &resp); err != nil {
		return nil, err
	}
	if resp.RecordKey == "" {
		return nil, fmt.Errorf("daemon returned empty record key")
	}
	return &httpHandle{client: c, key: resp.RecordKey}, nil
}

// OpenRecord opens an existing record by key.
func (c *Client) OpenRecord(ctx context.Context, key string) (RecordHandle, error) {
	if err := c.postJSON(ctx, "/v1/records/"+url.PathEscape(key)+"/open", struct{}{}, nil); err != nil {
		return nil, err
	}
	return &httpHandle{client: c, key: key}, nil
}

// Close ends the session. The daemon keeps running.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type httpHandle struct {
	client *Client
	key    string
}

func (h *httpHandle) Key() string { return h.key }

func (h *httpHandle) WriteSubkey(ctx context.Context, subkey int, data []byte) error {
	endpoint := h.path("/subkeys/" + strconv.Itoa(subkey))
	return h.client.putBytes(ctx, endpoint, data)
}

func (h *httpHandle) ReadSubkey(ctx context.Context, subkey int, forceRefresh bool) ([]byte, error) {
	endpoint := h.path("/subkeys/" + strconv.Itoa(subkey))
	if forceRefresh {
		endpoint += "?force_refresh=true"
	}
	return h.client.getBytes(ctx, endpoint)
}

func (h *httpHandle) InspectOffline(ctx context.Context) ([]SubkeyRange, error) {
	var resp struct {
		OfflineSubkeys []SubkeyRange `json:"offline_subkeys"`
	}
	if err := h.client.getJSON(ctx, h.path("/offline"), &resp); err != nil {
		return nil, err
	}
	return resp.OfflineSubkeys, nil
}

func (h *httpHandle) Close(ctx context.Context) error {
	return h.client.postJSON(ctx, h.path("/close"), struct{}{}, nil)
}

func (h *httpHandle) path(suffix string) string {
	return "/v1/records/" + url.PathEscape(h.key) + suffix
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) putBytes(ctx context.Context, path string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	return checkStatus(res)
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return nil, err
	}
	return io.ReadAll(res.Body)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("daemon request failed: %s: %s", res.Status, msg)
	}
	return fmt.Errorf("daemon request failed: %s", res.Status)
}

func normalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}
