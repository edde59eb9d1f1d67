// Package backend implements the core ports against the finance API over
// HTTP. The API parses the CSV files, stores transactions and keeps the
// import history; this package only moves bytes and translates failures
// into the core error types.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
)

// Endpoint paths relative to the base URL.
const (
	pathImportInfo         = "import_info"
	pathImportTransactions = "import_transactions"
	pathImportHistory      = "import_history"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	// Timeout bounds each call. Zero means no client-side timeout.
	Timeout time.Duration

	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the finance API. It implements core.Backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

var _ core.Backend = (*Client)(nil)

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{base: base, http: hc, limiter: limiter}, nil
}

// inspectResponse is the body of import_info.
type inspectResponse struct {
	Headers             []string            `json:"headers"`
	FirstValuesByHeader map[string][]string `json:"firstValuesByHeader"`
}

// Inspect uploads file and returns its headers and sample values.
func (c *Client) Inspect(ctx context.Context, file core.File) (core.Inspection, error) {
	body, contentType, err := multipartBody(file, nil)
	if err != nil {
		return core.Inspection{}, err
	}

	var resp inspectResponse
	if err := c.do(ctx, "inspect", http.MethodPost, c.endpoint(pathImportInfo, nil), contentType, body, &resp); err != nil {
		return core.Inspection{}, err
	}

	samples := resp.FirstValuesByHeader
	if samples == nil {
		samples = map[string][]string{}
	}
	return core.Inspection{Headers: resp.Headers, Samples: samples}, nil
}

// Import uploads file together with the serialized mapping.
func (c *Client) Import(ctx context.Context, file core.File, filename string, mapping core.SerializedMapping) (core.ImportResult, error) {
	mappingJSON, err := mapping.JSON()
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("encode mapping: %w", err)
	}

	body, contentType, err := multipartBody(file, map[string]string{"form_mapping": string(mappingJSON)})
	if err != nil {
		return core.ImportResult{}, err
	}

	query := url.Values{"file_name": {filename}}
	var raw json.RawMessage
	if err := c.do(ctx, "import", http.MethodPost, c.endpoint(pathImportTransactions, query), contentType, body, &raw); err != nil {
		return core.ImportResult{}, err
	}

	count, err := decodeImportedCount(raw)
	if err != nil {
		return core.ImportResult{}, &core.ServiceError{Service: "import", Message: err.Error(), Err: err}
	}
	return core.ImportResult{ImportedCount: count}, nil
}

// historyRecord is one entry of import_history.
type historyRecord struct {
	At       string `json:"at"`
	FileName string `json:"fileName"`
	Imported int    `json:"imported"`
}

// ListImportHistory returns past imports in the order the API sends them.
func (c *Client) ListImportHistory(ctx context.Context) ([]core.HistoryRecord, error) {
	var resp []historyRecord
	if err := c.do(ctx, "history", http.MethodGet, c.endpoint(pathImportHistory, nil), "", nil, &resp); err != nil {
		return nil, err
	}

	records := make([]core.HistoryRecord, 0, len(resp))
	for _, r := range resp {
		at, err := parseTimestamp(r.At)
		if err != nil {
			return nil, &core.ServiceError{Service: "history", Message: err.Error(), Err: err}
		}
		records = append(records, core.HistoryRecord{
			ImportedAt:    at,
			Filename:      r.FileName,
			ImportedCount: r.Imported,
		})
	}
	return records, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one call and decodes a 2xx JSON body into out. Failures are
// returned as core error types; service names the remote operation.
func (c *Client) do(ctx context.Context, service, method, target, contentType string, body []byte, out any) error {
	logger := logging.WithFields(ctx, "service", service, "method", method, "url", target)

	if err := c.limiter.Wait(ctx); err != nil {
		return &core.ServiceError{Service: service, Message: "rate limit wait: " + err.Error(), Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", service, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("finance api unreachable", "error", err)
		return &core.ServiceError{Service: service, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	logger.Debug("finance api responded", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return translateStatus(service, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.ServiceError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    "invalid response body: " + err.Error(),
			Err:        err,
		}
	}
	return nil
}

// translateStatus maps a non-2xx response to a core error. Client errors on
// inspect and import are the API rejecting the file or mapping; everything
// else is an availability problem.
func translateStatus(service string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(data)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("%s: HTTP %d", service, resp.StatusCode)

	clientError := resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests
	switch {
	case clientError && service == "inspect":
		return &core.InspectionError{Message: msg, Err: cause}
	case clientError && service == "import":
		return &core.ImportError{Message: msg, Err: cause}
	default:
		return &core.ServiceError{Service: service, StatusCode: resp.StatusCode, Message: msg, Err: cause}
	}
}

// errorMessage extracts a human readable message from an error body. It
// understands {"detail": "..."}, {"detail": [{"msg": "..."}]},
// {"error": "..."} and {"message": "..."}, and falls back to the raw text.
func errorMessage(data []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}

	if len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(body.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if body.Error != "" {
		return body.Error
	}
	if body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

// decodeImportedCount accepts a bare integer or an object carrying
// "imported" or "importedCount".
func decodeImportedCount(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var obj struct {
		Imported      *int `json:"imported"`
		ImportedCount *int `json:"importedCount"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("unexpected import response %s", truncate(string(raw), 100))
	}
	switch {
	case obj.ImportedCount != nil:
		return *obj.ImportedCount, nil
	case obj.Imported != nil:
		return *obj.Imported, nil
	default:
		return 0, errors.New("import response has no imported count")
	}
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid history timestamp %q", s)
}

// multipartBody encodes file as the "file" part plus any extra form fields.
func multipartBody(file core.File, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
