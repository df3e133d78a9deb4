// Package gitlab fetches project audit events for every configured project id.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/fetch"
)

const defaultBaseURL = "https://gitlab.com"

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher aggregates GitLab audit events, one target per project id.
type Fetcher struct {
	client        doer
	logger        *slog.Logger
	targetTimeout time.Duration
}

// New constructs a fetcher with a default HTTP client.
func New(logger *slog.Logger, targetTimeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{}, logger: logger, targetTimeout: targetTimeout}
}

type auditEvent struct {
	CreatedAt  time.Time `json:"created_at"`
	AuthorName string    `json:"author_name"`
	Details    struct {
		Action        string `json:"action"`
		TargetType    string `json:"target_type"`
		TargetDetails string `json:"target_details"`
	} `json:"details"`
}

// Fetch fans out one audit-event call per project and settles every project
// into a record, success or failure. The vendor API returns a single page in
// its own order; no pagination or re-sorting is applied.
func (f *Fetcher) Fetch(ctx context.Context, cfg domain.GitLabConfig) ([]domain.ProjectLogRecord, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, domain.NewConfigError(domain.VendorGitLab, missing...)
	}

	projects := cfg.Projects()
	records := fetch.Settle(len(projects), func(i int) domain.ProjectLogRecord {
		return f.fetchProject(ctx, cfg, projects[i])
	})
	return records, nil
}

func (f *Fetcher) fetchProject(ctx context.Context, cfg domain.GitLabConfig, projectID string) domain.ProjectLogRecord {
	record := domain.ProjectLogRecord{ProjectID: projectID}

	ctx, cancel := context.WithTimeout(ctx, f.targetTimeout)
	defer cancel()

	events, err := f.auditEvents(ctx, cfg, projectID)
	if err != nil {
		f.logger.Error("gitlab target fetch failed", "project", projectID, "error", err)
		record.Logs = "Error fetching logs: " + err.Error()
		return record
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("%s | %s | %s: %s %q",
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.AuthorName,
			event.Details.Action,
			event.Details.TargetType,
			event.Details.TargetDetails,
		))
	}
	if len(lines) == 0 {
		record.Logs = "No recent audit events found."
		return record
	}
	record.Logs = strings.Join(lines, "\n")
	return record
}

func (f *Fetcher) auditEvents(ctx context.Context, cfg domain.GitLabConfig, projectID string) ([]auditEvent, error) {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/audit_events", baseURL(cfg), url.PathEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", cfg.APIToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitLab API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var events []auditEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode audit events: %w", err)
	}
	return events, nil
}

// Ping fetches audit events for the first configured project to verify the
// token and project access.
func (f *Fetcher) Ping(ctx context.Context, cfg domain.GitLabConfig) error {
	if missing := cfg.Missing(); len(missing) > 0 {
		return domain.NewConfigError(domain.VendorGitLab, missing...)
	}
	_, err := f.auditEvents(ctx, cfg, cfg.Projects()[0])
	return err
}

func baseURL(cfg domain.GitLabConfig) string {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}
