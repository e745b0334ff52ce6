package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"code-interpreter/internal/executor"
	"code-interpreter/internal/monitor"
	"code-interpreter/internal/storage"
)

// mockExecutor records requests and returns a canned result.
type mockExecutor struct {
	mu     sync.Mutex
	calls  []executor.Request
	result executor.Result
	err    error
	ctxErr error // ctx.Err() observed during Execute
}

func (m *mockExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	m.ctxErr = ctx.Err()
	return m.result, m.err
}

func (m *mockExecutor) Supports(language string) bool {
	return language == "python" || language == "bash"
}

func (m *mockExecutor) Languages() []string { return []string{"bash", "python"} }

type mockRenderer struct {
	html  []byte
	err   error
	calls int
}

func (m *mockRenderer) Render(_ context.Context, _ string) ([]byte, error) {
	m.calls++
	return m.html, m.err
}

type mockLister struct {
	filter   storage.InstallFilter
	installs []storage.Install
	err      error
}

func (m *mockLister) ListInstalls(_ context.Context, f storage.InstallFilter) ([]storage.Install, error) {
	m.filter = f
	return m.installs, m.err
}

func post(t *testing.T, handler http.HandlerFunc, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp
}

func TestHandleExecute_Success(t *testing.T) {
	exec := &mockExecutor{result: executor.Result{ExecID: "exec-1", Text: "4\n"}}
	h := NewHandlers(exec, &mockRenderer{}, nil, monitor.NewMetrics())

	rec := post(t, h.HandleExecute, "application/json", `{"code":"print(2+2)"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result != "4\n" {
		t.Errorf("result = %q", resp.Result)
	}
	if got := rec.Header().Get("X-Execution-ID"); got != "exec-1" {
		t.Errorf("X-Execution-ID = %q", got)
	}
	if len(exec.calls) != 1 || exec.calls[0].Language != "python" || exec.calls[0].Code != "print(2+2)" {
		t.Errorf("executor calls = %+v", exec.calls)
	}
}

func TestHandleExecute_FailureIsData(t *testing.T) {
	exec := &mockExecutor{result: executor.Result{Text: "Error: division by zero", Failed: true}}
	h := NewHandlers(exec, &mockRenderer{}, nil, monitor.NewMetrics())

	rec := post(t, h.HandleExecute, "application/json", `{"code":"1/0","language":"python"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"result":"Error: division by zero"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleExecute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    string
	}{
		{"no content type", "", `{"code":"x"}`, CodeInvalidContentType},
		{"form content type", "application/x-www-form-urlencoded", `code=x`, CodeInvalidContentType},
		{"text content type", "text/plain", `{"code":"x"}`, CodeInvalidContentType},
		{"malformed json", "application/json", `{"code":`, CodeInvalidJSON},
		{"json array", "application/json", `["x"]`, CodeInvalidJSON},
		{"json null", "application/json", `null`, CodeInvalidJSON},
		{"trailing data", "application/json", `{"code":"print(1)"} this is not json`, CodeInvalidJSON},
		{"concatenated objects", "application/json", `{"code":"print(1)"}{"code":"x"}`, CodeInvalidJSON},
		{"missing code", "application/json", `{}`, CodeMissingCode},
		{"empty code", "application/json", `{"code":""}`, CodeMissingCode},
		{"non-string code", "application/json", `{"code":42}`, CodeMissingCode},
		{"unknown language", "application/json", `{"code":"x","language":"ruby"}`, CodeUnsupportedLanguage},
		{"explicit empty language", "application/json", `{"code":"x","language":""}`, CodeUnsupportedLanguage},
		{"null language", "application/json", `{"code":"x","language":null}`, CodeUnsupportedLanguage},
		{"wrong case language", "application/json", `{"code":"x","language":"Python"}`, CodeUnsupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{}
			metrics := monitor.NewMetrics()
			h := NewHandlers(exec, &mockRenderer{}, nil, metrics)

			rec := post(t, h.HandleExecute, tt.contentType, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if len(exec.calls) != 0 {
				t.Errorf("executor was called for an invalid request")
			}
			if got := testutil.ToFloat64(metrics.InvalidRequests.WithLabelValues(tt.wantCode)); got != 1 {
				t.Errorf("invalid_requests_total{code=%q} = %v, want 1", tt.wantCode, got)
			}
		})
	}
}

func TestHandleExecute_ContentTypeParameters(t *testing.T) {
	exec := &mockExecutor{result: executor.Result{Text: "ok"}}
	h := NewHandlers(exec, &mockRenderer{}, nil, monitor.NewMetrics())

	rec := post(t, h.HandleExecute, "application/json; charset=utf-8", `{"code":"x","language":"bash"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(exec.calls) != 1 || exec.calls[0].Language != "bash" {
		t.Errorf("executor calls = %+v", exec.calls)
	}
}

func TestHandleExecute_TrailingWhitespace(t *testing.T) {
	exec := &mockExecutor{result: executor.Result{Text: "ok"}}
	h := NewHandlers(exec, &mockRenderer{}, nil, monitor.NewMetrics())

	rec := post(t, h.HandleExecute, "application/json", "{\"code\":\"x\"}\n\t \n")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor calls = %d, want 1", len(exec.calls))
	}
}

func TestHandleExecute_DetachedFromClient(t *testing.T) {
	exec := &mockExecutor{result: executor.Result{Text: "ok"}}
	h := NewHandlers(exec, &mockRenderer{}, nil, monitor.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"code":"x"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	h.HandleExecute(httptest.NewRecorder(), req)

	if exec.ctxErr != nil {
		t.Errorf("executor saw a cancelled context: %v", exec.ctxErr)
	}
}

func TestHandleExecute_ExecutorErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{&executor.ExecutionError{Op: "validate", Err: executor.ErrUnsupportedLanguage}, http.StatusBadRequest, CodeUnsupportedLanguage},
		{&executor.ExecutionError{Op: "validate", Err: executor.ErrEmptyCode}, http.StatusBadRequest, CodeMissingCode},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		h := NewHandlers(&mockExecutor{err: tt.err}, &mockRenderer{}, nil, monitor.NewMetrics())
		rec := post(t, h.HandleExecute, "application/json", `{"code":"x"}`)
		if rec.Code != tt.wantStatus {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.wantStatus)
		}
		if resp := decodeError(t, rec); resp.Code != tt.wantCode {
			t.Errorf("%v: code = %q, want %q", tt.err, resp.Code, tt.wantCode)
		}
	}
}

func TestHandleGenerateChart(t *testing.T) {
	t.Run("html", func(t *testing.T) {
		r := &mockRenderer{html: []byte("<html>chart</html>")}
		h := NewHandlers(&mockExecutor{}, r, nil, monitor.NewMetrics())

		rec := post(t, h.HandleGenerateChart, "application/json", `{"code":"fig.add_trace(go.Bar(y=[1]))"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Body.String() != "<html>chart</html>" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("failure is a 200 json error", func(t *testing.T) {
		r := &mockRenderer{err: &executor.SnippetError{Type: "NameError", Message: "name 'foo' is not defined"}}
		h := NewHandlers(&mockExecutor{}, r, nil, monitor.NewMetrics())

		rec := post(t, h.HandleGenerateChart, "application/json", `{"code":"foo"}`)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var resp ChartErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Error != "name 'foo' is not defined" {
			t.Errorf("error = %q", resp.Error)
		}
	})

	t.Run("validation", func(t *testing.T) {
		r := &mockRenderer{}
		h := NewHandlers(&mockExecutor{}, r, nil, monitor.NewMetrics())

		for _, body := range []string{`{}`, `{"code":""}`, `{"code":"x"} trailing`, `{"code":"x"}{"code":"y"}`} {
			rec := post(t, h.HandleGenerateChart, "application/json", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", body, rec.Code)
			}
		}
		if rec := post(t, h.HandleGenerateChart, "text/html", `{"code":"x"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("wrong content type: status = %d", rec.Code)
		}
		if r.calls != 0 {
			t.Errorf("renderer called %d times for invalid requests", r.calls)
		}
	})
}

func TestHandleListInstalls(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		h := NewHandlers(&mockExecutor{}, &mockRenderer{}, nil, monitor.NewMetrics())
		rec := httptest.NewRecorder()
		h.HandleListInstalls(rec, httptest.NewRequest(http.MethodGet, "/installs", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("filters", func(t *testing.T) {
		lister := &mockLister{installs: []storage.Install{
			{ID: "1", Package: "requests", OK: true, CreatedAt: time.Unix(0, 0).UTC()},
		}}
		h := NewHandlers(&mockExecutor{}, &mockRenderer{}, lister, monitor.NewMetrics())
		rec := httptest.NewRecorder()
		h.HandleListInstalls(rec, httptest.NewRequest(http.MethodGet, "/installs?package=requests&ok=true&limit=5", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if lister.filter.Package != "requests" || !lister.filter.OnlyOK || lister.filter.Limit != 5 {
			t.Errorf("filter = %+v", lister.filter)
		}
		var got []storage.Install
		if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Package != "requests" {
			t.Errorf("installs = %+v", got)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		h := NewHandlers(&mockExecutor{}, &mockRenderer{}, &mockLister{err: errors.New("db down")}, monitor.NewMetrics())
		rec := httptest.NewRecorder()
		h.HandleListInstalls(rec, httptest.NewRequest(http.MethodGet, "/installs", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
