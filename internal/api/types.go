package api

import "encoding/json"

// rawRequest keeps fields undecoded so a wrong type can be reported against
// the field that carries it.
type rawRequest map[string]json.RawMessage

// ExecuteResponse is returned by POST /execute. Snippet failures are encoded
// in Result, never in the status code.
type ExecuteResponse struct {
	Result string `json:"result"`
}

// ChartErrorResponse is returned with status 200 when a chart fails.
type ChartErrorResponse struct {
	Error string `json:"error"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status           string   `json:"status"`
	Database         bool     `json:"database"`
	Languages        []string `json:"languages"`
	AdmissionClients int      `json:"admission_clients"`
	Uptime           string   `json:"uptime"`
}

// Error codes.
const (
	CodeInvalidContentType  = "INVALID_CONTENT_TYPE"
	CodeInvalidJSON         = "INVALID_JSON"
	CodeMissingCode         = "MISSING_CODE"
	CodeUnsupportedLanguage = "UNSUPPORTED_LANGUAGE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeDBUnavailable       = "DB_UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)
