package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"airr.io/student-analytics/internal/store"
)

// DemoRemoteURL marks a remote channel populated from the bundled demo set.
const DemoRemoteURL = "DEMO_MOCK_API"

const defaultRemoteMaxBytes = 10 << 20

// RemoteConfig is the connector form as submitted by the user. Headers and
// Body are raw text and are validated here, not by the caller.
type RemoteConfig struct {
	URL     string `json:"url"`
	Method  string `json:"method"`
	Headers string `json:"headers"`
	Body    string `json:"body"`
}

type RemoteFetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewRemoteFetcher builds a fetcher. A zero timeout keeps the transport
// default, which is no overall deadline. Response bodies larger than maxBytes
// are rejected; a non-positive maxBytes uses 10 MiB.
func NewRemoteFetcher(timeout time.Duration, maxBytes int64, logger *zap.Logger) *RemoteFetcher {
	if maxBytes <= 0 {
		maxBytes = defaultRemoteMaxBytes
	}
	return &RemoteFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch issues a single request and extracts the record array from the
// response. Records are decoded as-is; no per-field defaults are applied.
func (f *RemoteFetcher) Fetch(ctx context.Context, cfg RemoteConfig) (store.Dataset, error) {
	req, err := f.buildRequest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	f.logger.Info("fetching remote records", zap.String("url", cfg.URL), zap.String("method", req.Method))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Msg: "request to " + cfg.URL + " failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, &RemoteError{StatusCode: resp.StatusCode, Msg: "Endpoint not found. Use 'Demo Data' in the connector."}
		}
		return nil, &RemoteError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("API responded with %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Msg: "failed to read response body", Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("API response exceeds %d bytes", f.maxBytes)}
	}
	records, err := extractRecords(body)
	if err != nil {
		return nil, err
	}
	f.logger.Info("remote records retrieved", zap.String("url", cfg.URL), zap.Int("count", len(records)))
	return records, nil
}

func (f *RemoteFetcher) buildRequest(ctx context.Context, cfg RemoteConfig) (*http.Request, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, &ConfigurationError{Msg: "Endpoint URL is required"}
	}
	endpoint, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, &ConfigurationError{Msg: "Invalid endpoint URL: an absolute http or https URL is required"}
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method != http.MethodGet && method != http.MethodPost {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("Unsupported HTTP method %q", cfg.Method)}
	}

	var headers map[string]string
	if err := json.Unmarshal([]byte(cfg.Headers), &headers); err != nil {
		return nil, &ConfigurationError{Msg: "Invalid Headers JSON"}
	}
	for k, v := range headers {
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("Invalid header %q", k)}
		}
	}

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("Invalid endpoint URL: %v", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// extractRecords applies the body precedence: a bare array, then the
// "documents" field, then "records".
func extractRecords(body []byte) (store.Dataset, error) {
	trimmed := bytes.TrimSpace(body)

	var candidate json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		candidate = trimmed
	} else {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, &RemoteError{StatusCode: http.StatusOK, Msg: "response is not valid JSON", Err: err}
		}
		for _, key := range []string{"documents", "records"} {
			if raw, ok := envelope[key]; ok && !isJSONNull(raw) {
				candidate = raw
				break
			}
		}
	}

	if len(candidate) == 0 {
		return nil, &NoDataError{}
	}
	if first := bytes.TrimSpace(candidate); len(first) == 0 || first[0] != '[' {
		return nil, &NoDataError{}
	}

	var records store.Dataset
	if err := json.Unmarshal(candidate, &records); err != nil {
		return nil, &RemoteError{StatusCode: http.StatusOK, Msg: "response records do not match the student record shape", Err: err}
	}
	if len(records) == 0 {
		return nil, &NoDataError{}
	}
	return records, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
