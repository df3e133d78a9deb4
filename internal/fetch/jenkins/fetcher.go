// Package jenkins fetches recent build console logs for every configured job.
package jenkins

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/fetch"
)

// maxBuilds caps how much build history is pulled per job.
const maxBuilds = 15

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher aggregates console logs from a Jenkins controller, one target per job.
type Fetcher struct {
	client        doer
	logger        *slog.Logger
	targetTimeout time.Duration
}

// New constructs a fetcher with a default HTTP client; per-target deadlines
// come from the context, not the client.
func New(logger *slog.Logger, targetTimeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{}, logger: logger, targetTimeout: targetTimeout}
}

// Fetch fans out one build-history walk per configured job and settles every
// job into a record, success or failure.
func (f *Fetcher) Fetch(ctx context.Context, cfg domain.JenkinsConfig) ([]domain.JobLogRecord, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, domain.NewConfigError(domain.VendorJenkins, missing...)
	}

	jobs := cfg.Jobs()
	records := fetch.Settle(len(jobs), func(i int) domain.JobLogRecord {
		return f.fetchJob(ctx, cfg, jobs[i])
	})
	return records, nil
}

func (f *Fetcher) fetchJob(ctx context.Context, cfg domain.JenkinsConfig, job string) domain.JobLogRecord {
	record := domain.JobLogRecord{Job: job}

	ctx, cancel := context.WithTimeout(ctx, f.targetTimeout)
	defer cancel()

	f.logger.Info("fetching jenkins builds", "job", job)

	numbers, err := f.listBuilds(ctx, cfg, job)
	if err != nil {
		f.logger.Error("jenkins job fetch failed", "job", job, "error", err)
		record.Logs = "Error fetching logs: " + err.Error()
		return record
	}
	if len(numbers) == 0 {
		record.Logs = "No builds found."
		return record
	}

	// Newest build first; the API already lists them that way, the sort is a
	// guarantee rather than an assumption.
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))
	if len(numbers) > maxBuilds {
		numbers = numbers[:maxBuilds]
	}

	sections := make([]string, 0, len(numbers))
	for _, number := range numbers {
		text, err := f.consoleText(ctx, cfg, job, number)
		if err != nil {
			f.logger.Warn("jenkins console fetch failed", "job", job, "build", number, "error", err)
			text = "<log fetch failed>"
		}
		sections = append(sections, fmt.Sprintf("Build #%d\n%s", number, strings.TrimSpace(text)))
	}
	record.Logs = strings.Join(sections, "\n\n")
	return record
}

func (f *Fetcher) listBuilds(ctx context.Context, cfg domain.JenkinsConfig, job string) ([]int, error) {
	endpoint := fmt.Sprintf("%s/job/%s/api/json?tree=builds[number]{0,%d}",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(job), maxBuilds)
	body, err := f.get(ctx, cfg, endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Builds []struct {
			Number int `json:"number"`
		} `json:"builds"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode build list: %w", err)
	}
	numbers := make([]int, 0, len(payload.Builds))
	for _, build := range payload.Builds {
		numbers = append(numbers, build.Number)
	}
	return numbers, nil
}

func (f *Fetcher) consoleText(ctx context.Context, cfg domain.JenkinsConfig, job string, build int) (string, error) {
	endpoint := fmt.Sprintf("%s/job/%s/%d/consoleText",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(job), build)
	body, err := f.get(ctx, cfg, endpoint)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, cfg domain.JenkinsConfig, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", basicAuth(cfg.User, cfg.APIToken))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("jenkins returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Ping hits the controller root API with the configured credentials.
func (f *Fetcher) Ping(ctx context.Context, cfg domain.JenkinsConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return domain.NewConfigError(domain.VendorJenkins, "JENKINS_BASE_URL")
	}
	_, err := f.get(ctx, cfg, strings.TrimRight(cfg.BaseURL, "/")+"/api/json")
	return err
}

func basicAuth(user, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+token))
}
