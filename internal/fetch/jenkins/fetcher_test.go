package jenkins

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/intelli-123/observability-copilot/internal/domain"
)

func testFetcher(client doer) *Fetcher {
	return &Fetcher{
		client:        client,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		targetTimeout: 5 * time.Second,
	}
}

func testConfig(base, jobs string) domain.JenkinsConfig {
	return domain.JenkinsConfig{
		BaseURL:  base,
		User:     "ci-bot",
		APIToken: "token",
		JobNames: jobs,
	}
}

func TestFetchMissingFieldsFailsWhole(t *testing.T) {
	f := testFetcher(http.DefaultClient)
	_, err := f.Fetch(context.Background(), domain.JenkinsConfig{BaseURL: "http://jenkins"})
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cfgErr.Missing) != 3 {
		t.Fatalf("unexpected missing fields: %v", cfgErr.Missing)
	}
}

func TestFetchJoinsBuildsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Basic ") {
			t.Errorf("missing basic auth header, got %q", got)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/json"):
			io.WriteString(w, `{"builds":[{"number":7},{"number":9},{"number":8}]}`)
		case strings.HasSuffix(r.URL.Path, "/9/consoleText"):
			io.WriteString(w, "build nine ok\n")
		case strings.HasSuffix(r.URL.Path, "/8/consoleText"):
			io.WriteString(w, "build eight ok\n")
		case strings.HasSuffix(r.URL.Path, "/7/consoleText"):
			io.WriteString(w, "build seven ok\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	records, err := f.Fetch(context.Background(), testConfig(srv.URL, "deploy-app"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	logs := records[0].Logs
	nine := strings.Index(logs, "Build #9")
	eight := strings.Index(logs, "Build #8")
	seven := strings.Index(logs, "Build #7")
	if nine == -1 || eight == -1 || seven == -1 || !(nine < eight && eight < seven) {
		t.Fatalf("builds not newest-first:\n%s", logs)
	}
}

func TestFetchIsolatesJobFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/job/broken/") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/json"):
			io.WriteString(w, `{"builds":[{"number":1}]}`)
		default:
			io.WriteString(w, "console output")
		}
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	records, err := f.Fetch(context.Background(), testConfig(srv.URL, "healthy, broken"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Job != "healthy" || !strings.Contains(records[0].Logs, "console output") {
		t.Fatalf("healthy job affected by failing sibling: %+v", records[0])
	}
	if !strings.Contains(records[1].Logs, "Error fetching logs:") {
		t.Fatalf("broken job should carry its error text: %q", records[1].Logs)
	}
}

func TestFetchCapsBuildHistory(t *testing.T) {
	var consoleFetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/json"):
			var sb strings.Builder
			sb.WriteString(`{"builds":[`)
			for i := 40; i > 0; i-- {
				if i < 40 {
					sb.WriteString(",")
				}
				sb.WriteString(`{"number":` + strconv.Itoa(i) + `}`)
			}
			sb.WriteString(`]}`)
			io.WriteString(w, sb.String())
		default:
			consoleFetches++
			io.WriteString(w, "line")
		}
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	records, err := f.Fetch(context.Background(), testConfig(srv.URL, "big-history"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if consoleFetches != maxBuilds {
		t.Fatalf("expected %d console fetches, got %d", maxBuilds, consoleFetches)
	}
	if !strings.Contains(records[0].Logs, "Build #40") {
		t.Fatalf("newest build missing from record:\n%s", records[0].Logs)
	}
	if strings.Contains(records[0].Logs, "Build #25\n") {
		t.Fatalf("builds past the cap should be dropped:\n%s", records[0].Logs)
	}
}

func TestFetchFailedConsoleKeepsBuildSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/json"):
			io.WriteString(w, `{"builds":[{"number":2},{"number":1}]}`)
		case strings.HasSuffix(r.URL.Path, "/2/consoleText"):
			http.Error(w, "gone", http.StatusNotFound)
		default:
			io.WriteString(w, "fine")
		}
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	records, err := f.Fetch(context.Background(), testConfig(srv.URL, "flaky"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !strings.Contains(records[0].Logs, "Build #2\n<log fetch failed>") {
		t.Fatalf("missing placeholder for failed console fetch:\n%s", records[0].Logs)
	}
	if !strings.Contains(records[0].Logs, "Build #1\nfine") {
		t.Fatalf("healthy build missing:\n%s", records[0].Logs)
	}
}

func TestFetchNoBuildsGetsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"builds":[]}`)
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	records, err := f.Fetch(context.Background(), testConfig(srv.URL, "idle-job"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if records[0].Logs != "No builds found." {
		t.Fatalf("unexpected placeholder: %q", records[0].Logs)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/json" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"mode":"NORMAL"}`)
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	if err := f.Ping(context.Background(), testConfig(srv.URL, "any")); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if err := f.Ping(context.Background(), domain.JenkinsConfig{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
