// Package aggregate is the per-request entry point of the log aggregation
// layer: cache check, fetcher dispatch, cache write-back.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/store"
)

// ErrUnknownVendor is returned for vendor keys outside the supported set.
var ErrUnknownVendor = errors.New("unknown vendor")

// CloudWatchFetcher fetches and pings AWS CloudWatch Logs.
type CloudWatchFetcher interface {
	Fetch(ctx context.Context, cfg domain.CloudWatchConfig) ([]domain.GroupLogRecord, error)
	Ping(ctx context.Context, cfg domain.CloudWatchConfig) error
}

// GCPFetcher fetches and pings GCP Cloud Logging.
type GCPFetcher interface {
	Fetch(ctx context.Context, cfg domain.GCPConfig) ([]domain.ProjectLogRecord, error)
	Ping(ctx context.Context, cfg domain.GCPConfig) error
}

// JenkinsFetcher fetches and pings a Jenkins controller.
type JenkinsFetcher interface {
	Fetch(ctx context.Context, cfg domain.JenkinsConfig) ([]domain.JobLogRecord, error)
	Ping(ctx context.Context, cfg domain.JenkinsConfig) error
}

// GitLabFetcher fetches and pings GitLab audit events.
type GitLabFetcher interface {
	Fetch(ctx context.Context, cfg domain.GitLabConfig) ([]domain.ProjectLogRecord, error)
	Ping(ctx context.Context, cfg domain.GitLabConfig) error
}

// Service orchestrates cache reads, vendor fetches and cache write-backs.
type Service struct {
	settings   store.SettingsStore
	cache      store.LogCache
	cloudwatch CloudWatchFetcher
	gcp        GCPFetcher
	jenkins    JenkinsFetcher
	gitlab     GitLabFetcher
	logger     *slog.Logger
	ttl        time.Duration
}

// New constructs the orchestrator.
func New(settings store.SettingsStore, cache store.LogCache, cw CloudWatchFetcher, gcp GCPFetcher, jenkins JenkinsFetcher, gitlab GitLabFetcher, logger *slog.Logger, ttl time.Duration) *Service {
	initCacheMetrics()
	return &Service{
		settings:   settings,
		cache:      cache,
		cloudwatch: cw,
		gcp:        gcp,
		jenkins:    jenkins,
		gitlab:     gitlab,
		logger:     logger,
		ttl:        ttl,
	}
}

// FetchVendorLogs returns the vendor's envelope as JSON. Without bypassCache a
// fresh cache entry short-circuits vendor I/O entirely; on miss or bypass the
// matching fetcher runs and its result overwrites the cache entry.
func (s *Service) FetchVendorLogs(ctx context.Context, vendor string, bypassCache bool) (json.RawMessage, error) {
	if !bypassCache {
		payload, ok, err := s.cache.Get(ctx, vendor)
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("returning logs from cache", "vendor", vendor)
			recordCacheResult(vendor, "hit")
			return payload, nil
		}
	}
	recordCacheResult(vendor, "miss")
	s.logger.Info("cache miss or refresh requested, fetching fresh logs", "vendor", vendor)

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	envelope, err := s.fetchEnvelope(ctx, vendor, settings.Configs)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", vendor, err)
	}
	if err := s.cache.Set(ctx, vendor, payload, s.ttl); err != nil {
		return nil, err
	}
	s.logger.Info("saved fresh logs to cache", "vendor", vendor)
	return payload, nil
}

func (s *Service) fetchEnvelope(ctx context.Context, vendor string, configs domain.Configs) (any, error) {
	switch vendor {
	case domain.VendorCloudWatch:
		cfg, err := sectionOf(configs.CloudWatch())
		if err != nil {
			return nil, err
		}
		records, err := s.cloudwatch.Fetch(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return domain.CloudWatchEnvelope{LogGroups: records}, nil
	case domain.VendorGCP:
		cfg, err := sectionOf(configs.GCP())
		if err != nil {
			return nil, err
		}
		records, err := s.gcp.Fetch(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return domain.GCPEnvelope{ProjectLogs: records}, nil
	case domain.VendorJenkins:
		cfg, err := sectionOf(configs.Jenkins())
		if err != nil {
			return nil, err
		}
		records, err := s.jenkins.Fetch(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return domain.JenkinsEnvelope{Logs: records}, nil
	case domain.VendorGitLab:
		cfg, err := sectionOf(configs.GitLab())
		if err != nil {
			return nil, err
		}
		records, err := s.gitlab.Fetch(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return domain.GitLabEnvelope{ProjectLogs: records}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVendor, vendor)
	}
}

// Ping issues one low-cost read against the vendor, independent of the cache
// and aggregation path.
func (s *Service) Ping(ctx context.Context, vendor string) error {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	configs := settings.Configs
	switch vendor {
	case domain.VendorCloudWatch:
		cfg, err := sectionOf(configs.CloudWatch())
		if err != nil {
			return err
		}
		return s.cloudwatch.Ping(ctx, cfg)
	case domain.VendorGCP:
		cfg, err := sectionOf(configs.GCP())
		if err != nil {
			return err
		}
		return s.gcp.Ping(ctx, cfg)
	case domain.VendorJenkins:
		cfg, err := sectionOf(configs.Jenkins())
		if err != nil {
			return err
		}
		return s.jenkins.Ping(ctx, cfg)
	case domain.VendorGitLab:
		cfg, err := sectionOf(configs.GitLab())
		if err != nil {
			return err
		}
		return s.gitlab.Ping(ctx, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVendor, vendor)
	}
}

// ToolStatus reports, per vendor, whether its settings section is complete.
func (s *Service) ToolStatus(ctx context.Context) ([]domain.ToolStatus, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	configs := settings.Configs

	cw, cwOK, cwErr := configs.CloudWatch()
	gcp, gcpOK, gcpErr := configs.GCP()
	jenkins, jenkinsOK, jenkinsErr := configs.Jenkins()
	gitlab, gitlabOK, gitlabErr := configs.GitLab()

	return []domain.ToolStatus{
		{Name: "AWS CloudWatch", Active: cwOK && cwErr == nil && len(cw.Missing()) == 0},
		{Name: "GCP Logs", Active: gcpOK && gcpErr == nil && len(gcp.Missing()) == 0},
		{Name: "Jenkins", Active: jenkinsOK && jenkinsErr == nil && len(jenkins.Missing()) == 0},
		{Name: "GitLab", Active: gitlabOK && gitlabErr == nil && len(gitlab.Missing()) == 0},
	}, nil
}

// sectionOf converts the accessor triple into the error contract: an absent
// section and a malformed section both abort the whole vendor request.
func sectionOf[T any](cfg T, ok bool, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, fmt.Errorf("invalid vendor settings: %w", err)
	}
	if !ok {
		return zero, &domain.ConfigError{Vendor: vendorName(cfg)}
	}
	return cfg, nil
}

func vendorName(cfg any) string {
	switch cfg.(type) {
	case domain.CloudWatchConfig:
		return domain.VendorCloudWatch
	case domain.GCPConfig:
		return domain.VendorGCP
	case domain.JenkinsConfig:
		return domain.VendorJenkins
	case domain.GitLabConfig:
		return domain.VendorGitLab
	default:
		return "vendor"
	}
}

var (
	cacheMetricsOnce sync.Once
	cacheResults     *prometheus.CounterVec
)

func initCacheMetrics() {
	cacheMetricsOnce.Do(func() {
		collector := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Subsystem: "aggregate",
			Name:      "cache_requests_total",
			Help:      "Cache lookup outcomes per vendor",
		}, []string{"vendor", "result"})
		if err := prometheus.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				collector = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return
			}
		}
		cacheResults = collector
	})
}

func recordCacheResult(vendor, result string) {
	if cacheResults == nil {
		return
	}
	cacheResults.With(prometheus.Labels{"vendor": vendor, "result": result}).Inc()
}
