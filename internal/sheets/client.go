package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Fetcher is the data source contract consumed by the sync cache.
// It is implemented by *Client and replaced by fakes in tests.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Row, error)
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

const (
	defaultUserAgent    = "pulse/0.1"
	defaultTimeout      = 20 * time.Second
	defaultAPIKeyHeader = "X-API-Key"
	defaultRowsPath     = "rows"
	maxBodyBytes        = 32 << 20
)

// Columns names the upstream columns the engine interprets.
type Columns struct {
	ID            string
	Status        string
	Approval      string
	LastProcessed string
}

// DefaultColumns returns the column names used by the stock proxy script.
func DefaultColumns() Columns {
	return Columns{
		ID:            "id",
		Status:        "status",
		Approval:      "approval",
		LastProcessed: "lastProcessed",
	}
}

// Options configure a Client.
type Options struct {
	URL          string
	APIKey       string
	APIKeyHeader string
	RowsPath     string // gjson path to the rows array; "@this" for a bare array
	Columns      Columns
	Timeout      time.Duration
}

// Client talks to the spreadsheet-backed API proxy.
type Client struct {
	endpoint     *url.URL
	http         *http.Client
	userAgent    string
	apiKey       string
	apiKeyHeader string
	rowsPath     string
	columns      Columns
}

// NewClient builds a Client for the proxy endpoint in opts.
func NewClient(opts Options) (*Client, error) {
	endpoint, err := parseEndpoint(opts.URL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	header := strings.TrimSpace(opts.APIKeyHeader)
	if header == "" {
		header = defaultAPIKeyHeader
	}
	rowsPath := strings.TrimSpace(opts.RowsPath)
	if rowsPath == "" {
		rowsPath = defaultRowsPath
	}
	return &Client{
		endpoint:     endpoint,
		http:         &http.Client{Timeout: timeout},
		userAgent:    defaultUserAgent,
		apiKey:       strings.TrimSpace(opts.APIKey),
		apiKeyHeader: header,
		rowsPath:     rowsPath,
		columns:      withDefaultColumns(opts.Columns),
	}, nil
}

// Fetch retrieves the current row set. Rate limiting is reported as a
// *QuotaError; every other failure is a plain wrapped error.
func (c *Client) Fetch(ctx context.Context) ([]Row, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.decodeRows(body)
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &QuotaError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    "proxy returned 429",
		}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api %s returned status %d", c.endpoint.Path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (c *Client) decodeRows(body []byte) ([]Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode response: invalid json")
	}
	if errResult := gjson.GetBytes(body, "error"); errResult.Exists() && errResult.Type != gjson.Null {
		if quota := quotaFromBody(errResult); quota != nil {
			return nil, quota
		}
		return nil, fmt.Errorf("upstream error: %s", errorMessage(errResult))
	}

	list := gjson.GetBytes(body, c.rowsPath)
	if !list.Exists() {
		return nil, fmt.Errorf("decode response: %q not found", c.rowsPath)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("decode response: %q is not an array", c.rowsPath)
	}

	items := list.Array()
	if len(items) > 0 && items[0].IsArray() {
		return c.rowsFromValues(items)
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("decode response: row %d is not an object", i)
		}
		rows = append(rows, c.rowFromObject(item))
	}
	return rows, nil
}

// rowsFromValues handles a Sheets-style value matrix whose first row is the
// header. Trailing blank rows are skipped.
func (c *Client) rowsFromValues(items []gjson.Result) ([]Row, error) {
	header := items[0].Array()
	names := make([]string, len(header))
	for i, cell := range header {
		names[i] = strings.TrimSpace(cell.String())
	}

	rows := make([]Row, 0, len(items)-1)
	for i, item := range items[1:] {
		if !item.IsArray() {
			return nil, fmt.Errorf("decode response: value row %d is not an array", i+1)
		}
		record := make(map[string]json.RawMessage, len(names))
		blank := true
		for col, cell := range item.Array() {
			if col >= len(names) || names[col] == "" {
				continue
			}
			if strings.TrimSpace(cell.String()) != "" {
				blank = false
			}
			record[names[col]] = json.RawMessage(cell.Raw)
		}
		if blank {
			continue
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode value row %d: %w", i+1, err)
		}
		rows = append(rows, c.rowFromObject(gjson.ParseBytes(raw)))
	}
	return rows, nil
}

func (c *Client) rowFromObject(item gjson.Result) Row {
	fields := item.Map()
	text := func(name string) string {
		return strings.TrimSpace(fields[name].String())
	}
	return Row{
		ID:            text(c.columns.ID),
		Status:        text(c.columns.Status),
		Approval:      text(c.columns.Approval),
		LastProcessed: text(c.columns.LastProcessed),
		Fields:        json.RawMessage(item.Raw),
	}
}

// quotaFromBody recognises proxies that answer 200 with a Google API style
// error object instead of a real 429.
func quotaFromBody(errResult gjson.Result) *QuotaError {
	code := errResult.Get("code").Int()
	status := strings.ToUpper(strings.TrimSpace(errResult.Get("status").String()))
	if code != http.StatusTooManyRequests && status != "RESOURCE_EXHAUSTED" {
		return nil
	}
	return &QuotaError{
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: time.Duration(errResult.Get("retryAfter").Int()) * time.Second,
		Message:    errorMessage(errResult),
	}
}

func errorMessage(errResult gjson.Result) string {
	if msg := errResult.Get("message"); msg.Exists() {
		return msg.String()
	}
	return errResult.String()
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func parseEndpoint(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("source url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse source url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse source url %q: missing host", raw)
	}
	u.Fragment = ""
	return u, nil
}

func withDefaultColumns(cols Columns) Columns {
	defaults := DefaultColumns()
	if strings.TrimSpace(cols.ID) == "" {
		cols.ID = defaults.ID
	}
	if strings.TrimSpace(cols.Status) == "" {
		cols.Status = defaults.Status
	}
	if strings.TrimSpace(cols.Approval) == "" {
		cols.Approval = defaults.Approval
	}
	if strings.TrimSpace(cols.LastProcessed) == "" {
		cols.LastProcessed = defaults.LastProcessed
	}
	return cols
}
