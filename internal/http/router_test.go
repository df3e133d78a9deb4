package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/service/chat"
	"github.com/intelli-123/observability-copilot/internal/service/mcpagent"
	"github.com/intelli-123/observability-copilot/internal/store"
)

type fetchCall struct {
	vendor string
	bypass bool
}

type fakeAggregator struct {
	payload  json.RawMessage
	fetchErr error
	pingErr  error
	statuses []domain.ToolStatus
	calls    []fetchCall
}

func (f *fakeAggregator) FetchVendorLogs(ctx context.Context, vendor string, bypassCache bool) (json.RawMessage, error) {
	f.calls = append(f.calls, fetchCall{vendor: vendor, bypass: bypassCache})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payload, nil
}

func (f *fakeAggregator) Ping(ctx context.Context, vendor string) error {
	return f.pingErr
}

func (f *fakeAggregator) ToolStatus(ctx context.Context) ([]domain.ToolStatus, error) {
	return f.statuses, nil
}

type fakeChat struct {
	answer string
	err    error
}

func (f fakeChat) Ask(ctx context.Context, question, logContext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type agentCall struct {
	vendor string
	query  string
}

type fakeAgent struct {
	result string
	err    error
	calls  []agentCall
}

func (f *fakeAgent) Query(ctx context.Context, vendor, query string) (string, error) {
	f.calls = append(f.calls, agentCall{vendor: vendor, query: query})
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

type fakeSettingsStore struct {
	settings domain.Settings
	saved    []domain.Settings
	loadErr  error
	saveErr  error
}

func (f *fakeSettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	if f.loadErr != nil {
		return domain.Settings{}, f.loadErr
	}
	return f.settings, nil
}

func (f *fakeSettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, settings)
	f.settings = settings
	return nil
}

type routerDeps struct {
	aggregator  *fakeAggregator
	chat        fakeChat
	agent       *fakeAgent
	settings    *fakeSettingsStore
	storeHealth func(context.Context) error
}

func newTestRouter(t *testing.T, deps routerDeps) *Router {
	t.Helper()
	if deps.aggregator == nil {
		deps.aggregator = &fakeAggregator{payload: json.RawMessage(`{}`)}
	}
	if deps.agent == nil {
		deps.agent = &fakeAgent{}
	}
	if deps.settings == nil {
		deps.settings = &fakeSettingsStore{settings: domain.Settings{Configs: domain.Configs{}}}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(log, deps.settings, deps.aggregator, deps.chat, deps.agent, nil, deps.storeHealth)
	t.Cleanup(router.Close)
	return router
}

func doRequest(router *Router, method, target string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.1:51000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestVendorLogsReturnsEnvelopeVerbatim(t *testing.T) {
	payload := json.RawMessage(`{"logGroups":[{"region":"us-east-1","logGroupName":"/aws/x","logs":"line"}]}`)
	agg := &fakeAggregator{payload: payload}
	router := newTestRouter(t, routerDeps{aggregator: agg})

	rec := doRequest(router, http.MethodGet, "/api/cloudwatch/log", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.String() != string(payload) {
		t.Fatalf("payload not passed through verbatim:\n%s", rec.Body.String())
	}
	if len(agg.calls) != 1 || agg.calls[0].vendor != domain.VendorCloudWatch || agg.calls[0].bypass {
		t.Fatalf("unexpected aggregator calls: %+v", agg.calls)
	}
}

func TestVendorLogsCacheBustSetsBypass(t *testing.T) {
	agg := &fakeAggregator{payload: json.RawMessage(`{}`)}
	router := newTestRouter(t, routerDeps{aggregator: agg})

	doRequest(router, http.MethodGet, "/api/gcp/log?cacheBust=1693400000", "")
	doRequest(router, http.MethodGet, "/api/gcp/log", "")
	if len(agg.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(agg.calls))
	}
	if !agg.calls[0].bypass {
		t.Fatal("cacheBust param did not trigger bypass")
	}
	if agg.calls[1].bypass {
		t.Fatal("bypass set without cacheBust param")
	}
}

func TestVendorLogsErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"config error", domain.NewConfigError(domain.VendorJenkins), http.StatusInternalServerError},
		{"store unavailable", fmt.Errorf("%w: load settings", store.ErrUnavailable), http.StatusServiceUnavailable},
		{"vendor failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, routerDeps{aggregator: &fakeAggregator{fetchErr: tc.err}})
			rec := doRequest(router, http.MethodGet, "/api/jenkins/log", "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestVendorLogsUnconfiguredIsSingleError(t *testing.T) {
	cfgErr := domain.NewConfigError(domain.VendorGCP, "GCP_PROJECT_KEYS_JSON")
	router := newTestRouter(t, routerDeps{aggregator: &fakeAggregator{fetchErr: cfgErr}})

	rec := doRequest(router, http.MethodGet, "/api/gcp/log", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing configuration, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body["error"] != cfgErr.Error() {
		t.Fatalf("expected single top-level error message, got %s", rec.Body.String())
	}
}

func TestVendorPingStatusCodes(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		want      int
		connected bool
	}{
		{"ok", nil, http.StatusOK, true},
		{"unconfigured", domain.NewConfigError(domain.VendorGitLab), http.StatusBadRequest, false},
		{"unreachable", errors.New("dial tcp: timeout"), http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, routerDeps{aggregator: &fakeAggregator{pingErr: tc.err}})
			rec := doRequest(router, http.MethodGet, "/api/gitlab/ping", "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			var body struct {
				Connected bool `json:"connected"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Connected != tc.connected {
				t.Fatalf("expected connected=%v, got %v", tc.connected, body.Connected)
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	settings := &fakeSettingsStore{settings: domain.Settings{Configs: domain.Configs{}}}
	router := newTestRouter(t, routerDeps{settings: settings})

	body := `{"configs":{"jenkins":{"JENKINS_URL":"https://ci.example.com","JENKINS_USER":"bot","JENKINS_API_TOKEN":"tok","JENKINS_JOB_NAMES":"deploy"}}}`
	rec := doRequest(router, http.MethodPost, "/api/settings", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("save failed: %d %s", rec.Code, rec.Body.String())
	}
	if len(settings.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(settings.saved))
	}

	rec = doRequest(router, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load failed: %d", rec.Code)
	}
	var loaded domain.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if _, ok := loaded.Configs[domain.VendorJenkins]; !ok {
		t.Fatalf("saved section missing from loaded settings: %s", rec.Body.String())
	}
}

func TestSettingsRejectsInvalidBody(t *testing.T) {
	router := newTestRouter(t, routerDeps{})
	rec := doRequest(router, http.MethodPost, "/api/settings", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestToolStatus(t *testing.T) {
	agg := &fakeAggregator{statuses: []domain.ToolStatus{
		{Name: "AWS CloudWatch", Active: true},
		{Name: "Jenkins", Active: false},
	}}
	router := newTestRouter(t, routerDeps{aggregator: agg})

	rec := doRequest(router, http.MethodGet, "/api/tool-status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tools []domain.ToolStatus `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Tools) != 2 || !body.Tools[0].Active || body.Tools[1].Active {
		t.Fatalf("unexpected tool statuses: %+v", body.Tools)
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	router := newTestRouter(t, routerDeps{chat: fakeChat{answer: "deploy #42 failed on tests"}})

	rec := doRequest(router, http.MethodPost, "/api/gemini/ask", `{"question":"why did the deploy fail?","context":"### Jenkins\nBuild #42"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Answer != "deploy #42 failed on tests" {
		t.Fatalf("unexpected answer %q", body.Answer)
	}
}

func TestAskBlankQuestionIsBadRequest(t *testing.T) {
	router := newTestRouter(t, routerDeps{chat: fakeChat{err: chat.ErrQuestionRequired}})
	rec := doRequest(router, http.MethodPost, "/api/gemini/ask", `{"question":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAgentQueryRouting(t *testing.T) {
	agent := &fakeAgent{result: "three resource groups"}
	router := newTestRouter(t, routerDeps{agent: agent})

	rec := doRequest(router, http.MethodPost, "/api/mcp-azure/query", `{"query":"list resource groups"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(agent.calls) != 1 || agent.calls[0].vendor != mcpagent.VendorAzure || agent.calls[0].query != "list resource groups" {
		t.Fatalf("unexpected agent calls: %+v", agent.calls)
	}
	var body struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Result != "three resource groups" {
		t.Fatalf("unexpected result %q", body.Result)
	}
}

func TestAgentQueryErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"blank query", mcpagent.ErrQueryRequired, http.StatusBadRequest},
		{"unconfigured", domain.NewConfigError(mcpagent.VendorKubernetes), http.StatusBadRequest},
		{"subprocess failure", errors.New("exit status 1"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, routerDeps{agent: &fakeAgent{err: tc.err}})
			rec := doRequest(router, http.MethodPost, "/api/mcp-kubernetes/query", `{"query":"list pods"}`)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, routerDeps{})
	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/cloudwatch/log"},
		{http.MethodGet, "/api/gemini/ask"},
		{http.MethodGet, "/api/mcp-azure/query"},
		{http.MethodDelete, "/api/settings"},
	} {
		rec := doRequest(router, tc.method, tc.target, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestHealthzReportsRedis(t *testing.T) {
	router := newTestRouter(t, routerDeps{storeHealth: func(ctx context.Context) error { return nil }})
	rec := doRequest(router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	router = newTestRouter(t, routerDeps{storeHealth: func(ctx context.Context) error { return errors.New("connection refused") }})
	rec = doRequest(router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when redis is down, got %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	router := newTestRouter(t, routerDeps{agent: &fakeAgent{result: "ok"}})
	var last *httptest.ResponseRecorder
	for i := 0; i < rateLimitAgent+1; i++ {
		last = doRequest(router, http.MethodPost, "/api/mcp-salesforce/query", `{"query":"recent cases"}`)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d requests, got %d", rateLimitAgent+1, last.Code)
	}
	if last.Header().Get("X-RateLimit-Limit") == "" {
		t.Fatal("rate limit headers missing")
	}
}
