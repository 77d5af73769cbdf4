// Package sheets provides the data source client for the spreadsheet-backed
// API proxy that feeds the pipeline dashboard.
//
// # Overview
//
// The proxy exposes a single GET endpoint returning the current pipeline rows.
// Two payload shapes are accepted, located by a configurable gjson path:
//
//   - An array of JSON objects, one per row
//   - A Sheets-style value matrix whose first row holds the column names
//
// Only four columns are interpreted (identity, status, approval and
// last-processed). The complete record is kept in Row.Fields so the dashboard
// can show extra columns without this package knowing about them.
//
// # Error Classification
//
// Rate limiting is structural, never textual:
//
//   - HTTP 429 returns *QuotaError with Retry-After parsed when present
//   - A 200 body carrying {"error":{"code":429}} or
//     {"error":{"status":"RESOURCE_EXHAUSTED"}} returns *QuotaError
//   - Anything else (network, 5xx, malformed JSON) is a wrapped plain error
//
// Use IsQuotaExceeded or errors.Is(err, ErrQuotaExceeded) to classify.
//
// # Request Handling
//
// Every request carries Accept, User-Agent and a fresh X-Request-ID so proxy
// logs can be correlated with the engine log. An optional API key is sent in
// a configurable header. The client applies no retries or caching; the sync
// cache owns both policies.
package sheets
