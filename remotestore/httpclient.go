// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mobiletoly/syncmw/batch"
	"github.com/mobiletoly/syncmw/model"
)

// HTTPClient talks to an opaque REST endpoint over JSON, grounded on
// oversqlite.Client's sendUploadRequest/sendDownloadRequest: a bearer
// token is attached from whatever Authenticate last bound, requests marshal
// to JSON, and the response status maps to §4.3's failure taxonomy.
//
// Request bodies at or above Compressor.Threshold are gzipped with a
// Content-Encoding: gzip header, realizing §4.7's compression rule at the
// transport this client owns. NewHTTPClient turns compression off by
// raising the threshold to 1<<30 bytes.
type HTTPClient struct {
	baseURL    string
	http       *http.Client
	compressor *batch.Compressor

	mu    sync.RWMutex
	token string
}

// NewHTTPClient builds an HTTPClient against baseURL (no trailing slash
// required). timeout mirrors oversqlite.Client's 120s upload allowance;
// pass 0 to use that default. compressionEnabled/compressionThreshold
// implement §3's compression_enabled/compression_threshold_bytes config
// pair: when compressionEnabled is false, request bodies are always sent
// uncompressed regardless of size, matching the config option's meaning
// rather than only accepting a threshold that happens to disable it.
func NewHTTPClient(baseURL string, timeout time.Duration, compressionEnabled bool, compressionThreshold int) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if !compressionEnabled || compressionThreshold <= 0 {
		compressionThreshold = 1 << 30 // effectively disabled
	}
	return &HTTPClient{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		compressor: batch.NewCompressor(compressionThreshold),
	}
}

func (c *HTTPClient) Authenticate(ctx context.Context, token string) error {
	if token == "" {
		return model.AuthError(false, "empty token")
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	var gzipped bool
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return model.UnknownError(fmt.Errorf("encode request: %w", err))
		}
		encoded, compressed, err := c.compressor.Encode(buf)
		if err != nil {
			return model.UnknownError(fmt.Errorf("compress request: %w", err))
		}
		gzipped = compressed
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return model.NetworkError(true, 0, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if gzipped {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure or timeout: always retryable per §4.3.
		return model.NetworkError(true, 0, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.UnknownError(fmt.Errorf("read response: %w", err))
	}
	respBody, err = batch.Decode(respBody)
	if err != nil {
		return model.UnknownError(fmt.Errorf("decompress response: %w", err))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return model.UnknownError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusToError implements §4.3's failure-kind mapping exactly:
// 401 -> Auth{requires_refresh:false}, transport/5xx -> Network{retryable:true},
// other 4xx -> Network{retryable:false, status}.
func statusToError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return model.AuthError(false, string(body))
	}
	if resp.StatusCode >= 500 {
		return model.NetworkError(true, resp.StatusCode, fmt.Errorf("server error: %s", body))
	}
	if resp.StatusCode >= 400 {
		return model.NetworkError(false, resp.StatusCode, fmt.Errorf("client error: %s", body))
	}
	return model.UnknownError(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
}

type executeSQLRequest struct {
	SQL string `json:"sql"`
}

type executeSQLResponse struct {
	Rows     []json.RawMessage `json:"rows"`
	Count    *int              `json:"count,omitempty"`
	HasMore  bool              `json:"has_more,omitempty"`
	Cursor   string            `json:"cursor,omitempty"`
}

func (c *HTTPClient) ExecuteSQL(ctx context.Context, sql string) (*ExecuteResult, error) {
	var resp executeSQLResponse
	if err := c.do(ctx, http.MethodPost, "/remote/execute", executeSQLRequest{SQL: sql}, &resp); err != nil {
		return nil, err
	}
	rows := make([]*model.Row, 0, len(resp.Rows))
	for _, raw := range resp.Rows {
		row, err := model.UnmarshalRowJSON(raw)
		if err != nil {
			return nil, model.UnknownError(fmt.Errorf("decode row: %w", err))
		}
		rows = append(rows, row)
	}
	return &ExecuteResult{Rows: rows, Count: resp.Count, HasMore: resp.HasMore, Cursor: resp.Cursor}, nil
}

type uploadRequest struct {
	Table string            `json:"table"`
	Rows  []json.RawMessage `json:"rows"`
}

func (c *HTTPClient) Upload(ctx context.Context, table string, rows []*model.Row) error {
	wireRows := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		raw, err := model.MarshalRowJSON(r)
		if err != nil {
			return model.ValidationError("rows", []model.ValidationDetail{{Path: "rows", Message: err.Error()}})
		}
		wireRows = append(wireRows, raw)
	}
	return c.do(ctx, http.MethodPost, "/remote/upload", uploadRequest{Table: table, Rows: wireRows}, nil)
}

type downloadResponse struct {
	Rows []json.RawMessage `json:"rows"`
}

func (c *HTTPClient) Download(ctx context.Context, table string, sinceTS *int64) ([]*model.Row, error) {
	q := url.Values{}
	q.Set("table", table)
	if sinceTS != nil {
		q.Set("since", fmt.Sprintf("%d", *sinceTS))
	}
	var resp downloadResponse
	if err := c.do(ctx, http.MethodGet, "/remote/download?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	rows := make([]*model.Row, 0, len(resp.Rows))
	for _, raw := range resp.Rows {
		row, err := model.UnmarshalRowJSON(raw)
		if err != nil {
			return nil, model.UnknownError(fmt.Errorf("decode row: %w", err))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var _ Client = (*HTTPClient)(nil)
