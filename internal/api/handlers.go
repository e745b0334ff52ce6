package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"code-interpreter/internal/chart"
	"code-interpreter/internal/executor"
	"code-interpreter/internal/monitor"
	"code-interpreter/internal/storage"
)

// Executor runs snippets. *executor.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Result, error)
	Supports(language string) bool
	Languages() []string
}

// ChartRenderer turns a plotting snippet into HTML. *chart.Renderer satisfies it.
type ChartRenderer interface {
	Render(ctx context.Context, code string) ([]byte, error)
}

// InstallLister reads the install ledger. *storage.DB satisfies it.
type InstallLister interface {
	ListInstalls(ctx context.Context, filter storage.InstallFilter) ([]storage.Install, error)
}

type Handlers struct {
	executor Executor
	charts   ChartRenderer
	installs InstallLister
	metrics  *monitor.Metrics
}

// NewHandlers wires the endpoint handlers. installs may be nil when no
// database is configured.
func NewHandlers(exec Executor, charts ChartRenderer, installs InstallLister, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		executor: exec,
		charts:   charts,
		installs: installs,
		metrics:  metrics,
	}
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	code, ok := h.requireCode(w, r, raw)
	if !ok {
		return
	}

	language := executor.DefaultLanguage
	if v, present := raw["language"]; present {
		language = ""
		_ = json.Unmarshal(v, &language)
		if language == "" || !h.executor.Supports(language) {
			h.reject(w, r, "Unsupported language", CodeUnsupportedLanguage)
			return
		}
	}

	// The snippet keeps running if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.executor.Execute(ctx, executor.Request{Code: code, Language: language})
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrUnsupportedLanguage):
			h.reject(w, r, "Unsupported language", CodeUnsupportedLanguage)
		case errors.Is(err, executor.ErrEmptyCode):
			h.reject(w, r, "No code provided", CodeMissingCode)
		default:
			log.Error().Err(err).Str("request_id", monitor.RequestIDFromContext(r.Context())).Msg("execution failed")
			writeError(w, "execution failed", CodeInternal, http.StatusInternalServerError, r)
		}
		return
	}

	w.Header().Set("X-Execution-ID", res.ExecID)
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: res.Text})
}

func (h *Handlers) HandleGenerateChart(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	code, ok := h.requireCode(w, r, raw)
	if !ok {
		return
	}

	html, err := h.charts.Render(context.WithoutCancel(r.Context()), code)
	if err != nil {
		if errors.Is(err, chart.ErrEmptyCode) {
			h.reject(w, r, "No code provided", CodeMissingCode)
			return
		}
		writeJSON(w, http.StatusOK, ChartErrorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(html)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(html); err != nil {
		log.Debug().Err(err).Msg("failed to write chart")
	}
}

func (h *Handlers) HandleListInstalls(w http.ResponseWriter, r *http.Request) {
	if h.installs == nil {
		writeError(w, "database not configured", CodeDBUnavailable, http.StatusServiceUnavailable, r)
		return
	}

	q := r.URL.Query()
	filter := storage.InstallFilter{
		Package: q.Get("package"),
		Limit:   100,
	}
	if ok, err := strconv.ParseBool(q.Get("ok")); err == nil {
		filter.OnlyOK = ok
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}

	installs, err := h.installs.ListInstalls(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Str("request_id", monitor.RequestIDFromContext(r.Context())).Msg("listing installs failed")
		writeError(w, "query failed", CodeInternal, http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, installs)
}

// decodeRequest enforces a JSON content type and a body that is a single
// JSON object.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (rawRequest, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		h.reject(w, r, "Content type must be application/json", CodeInvalidContentType)
		return nil, false
	}

	var raw rawRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil || raw == nil {
		h.reject(w, r, "Invalid JSON", CodeInvalidJSON)
		return nil, false
	}
	// The body must hold exactly one value; only whitespace may follow it.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		h.reject(w, r, "Invalid JSON", CodeInvalidJSON)
		return nil, false
	}
	return raw, true
}

func (h *Handlers) requireCode(w http.ResponseWriter, r *http.Request, raw rawRequest) (string, bool) {
	var code string
	if v, ok := raw["code"]; ok {
		_ = json.Unmarshal(v, &code)
	}
	if code == "" {
		h.reject(w, r, "No code provided", CodeMissingCode)
		return "", false
	}
	return code, true
}

// reject answers 400 and counts the validation failure.
func (h *Handlers) reject(w http.ResponseWriter, r *http.Request, msg, code string) {
	if h.metrics != nil {
		h.metrics.InvalidRequests.WithLabelValues(code).Inc()
	}
	writeError(w, msg, code, http.StatusBadRequest, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: monitor.RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
