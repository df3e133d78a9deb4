// Package gcp fetches recent Cloud Logging entries for every configured
// service-account key, one project per key.
package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"log/slog"

	logging "google.golang.org/api/logging/v2"
	"google.golang.org/api/option"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/fetch"
)

const (
	lookback = 24 * time.Hour
	pageSize = 50
)

// EntryLister is the slice of the Cloud Logging API the fetcher uses. The
// vendor SDK handles paging internally; one call returns one bounded page.
type EntryLister interface {
	ListEntries(ctx context.Context, req *logging.ListLogEntriesRequest) (*logging.ListLogEntriesResponse, error)
}

// ServiceFactory builds a logging client from one raw service-account key.
type ServiceFactory func(ctx context.Context, credentialsJSON []byte) (EntryLister, error)

type liveService struct {
	svc *logging.Service
}

func (l liveService) ListEntries(ctx context.Context, req *logging.ListLogEntriesRequest) (*logging.ListLogEntriesResponse, error) {
	return l.svc.Entries.List(req).Context(ctx).Do()
}

func defaultServiceFactory(ctx context.Context, credentialsJSON []byte) (EntryLister, error) {
	svc, err := logging.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, err
	}
	return liveService{svc: svc}, nil
}

// Fetcher aggregates Cloud Logging entries per configured project key.
type Fetcher struct {
	services      ServiceFactory
	logger        *slog.Logger
	targetTimeout time.Duration
}

// New constructs a fetcher backed by real Cloud Logging clients.
func New(logger *slog.Logger, targetTimeout time.Duration) *Fetcher {
	return &Fetcher{services: defaultServiceFactory, logger: logger, targetTimeout: targetTimeout}
}

// Fetch fans out one list call per service-account key and settles every key
// into a record, success or failure.
func (f *Fetcher) Fetch(ctx context.Context, cfg domain.GCPConfig) ([]domain.ProjectLogRecord, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, domain.NewConfigError(domain.VendorGCP, missing...)
	}

	records := fetch.Settle(len(cfg.ProjectKeys), func(i int) domain.ProjectLogRecord {
		return f.fetchProject(ctx, cfg.ProjectKeys[i])
	})
	return records, nil
}

func (f *Fetcher) fetchProject(ctx context.Context, keyJSON string) domain.ProjectLogRecord {
	ctx, cancel := context.WithTimeout(ctx, f.targetTimeout)
	defer cancel()

	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(keyJSON), &key); err != nil || key.ProjectID == "" {
		f.logger.Error("invalid gcp service-account key", "error", err)
		return domain.ProjectLogRecord{ProjectID: "Error processing a key", Logs: "invalid service account key JSON"}
	}

	record := domain.ProjectLogRecord{ProjectID: key.ProjectID}

	svc, err := f.services(ctx, []byte(keyJSON))
	if err != nil {
		f.logger.Error("gcp client init failed", "project", key.ProjectID, "error", err)
		record.Logs = "Error fetching logs: " + err.Error()
		return record
	}

	resp, err := svc.ListEntries(ctx, &logging.ListLogEntriesRequest{
		ResourceNames: []string{"projects/" + key.ProjectID},
		Filter:        entryFilter(time.Now().Add(-lookback)),
		OrderBy:       "timestamp desc",
		PageSize:      pageSize,
	})
	if err != nil {
		f.logger.Error("gcp target fetch failed", "project", key.ProjectID, "error", err)
		record.Logs = "Error fetching logs: " + err.Error()
		return record
	}

	f.logger.Info("found gcp log entries", "project", key.ProjectID, "count", len(resp.Entries))

	lines := make([]string, 0, len(resp.Entries))
	for _, entry := range resp.Entries {
		lines = append(lines, formatEntry(entry))
	}
	if len(lines) == 0 {
		record.Logs = "No recent logs found."
		return record
	}
	record.Logs = strings.Join(lines, "\n")
	return record
}

// entryFilter bounds the query to the lookback window and drops audit noise.
func entryFilter(since time.Time) string {
	return fmt.Sprintf(`timestamp>=%q AND logName !~ "cloudaudit.googleapis.com"`, since.UTC().Format(time.RFC3339))
}

func formatEntry(entry *logging.LogEntry) string {
	severity := entry.Severity
	if severity == "" {
		severity = "DEFAULT"
	}
	return fmt.Sprintf("%s | %s | %s", entry.Timestamp, severity, strings.TrimSpace(entryMessage(entry)))
}

func entryMessage(entry *logging.LogEntry) string {
	if entry.TextPayload != "" {
		return entry.TextPayload
	}
	if len(entry.JsonPayload) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, entry.JsonPayload, "", "  "); err == nil {
			return pretty.String()
		}
		return string(entry.JsonPayload)
	}
	if len(entry.ProtoPayload) > 0 {
		return string(entry.ProtoPayload)
	}
	return ""
}

// Ping lists a single entry for the first configured project to verify the
// key is valid and the API reachable.
func (f *Fetcher) Ping(ctx context.Context, cfg domain.GCPConfig) error {
	if missing := cfg.Missing(); len(missing) > 0 {
		return domain.NewConfigError(domain.VendorGCP, missing...)
	}
	keyJSON := cfg.ProjectKeys[0]
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(keyJSON), &key); err != nil || key.ProjectID == "" {
		return fmt.Errorf("invalid service account key JSON")
	}
	svc, err := f.services(ctx, []byte(keyJSON))
	if err != nil {
		return err
	}
	_, err = svc.ListEntries(ctx, &logging.ListLogEntriesRequest{
		ResourceNames: []string{"projects/" + key.ProjectID},
		PageSize:      1,
	})
	return err
}
