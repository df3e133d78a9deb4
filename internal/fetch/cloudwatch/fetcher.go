// Package cloudwatch fetches log events from AWS CloudWatch Logs across every
// configured (region, log group) pair.
package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/fetch"
)

const (
	// lookback bounds the query window per target.
	lookback = 48 * time.Hour
	// maxEvents caps accumulation across pages; pageLimit is the per-page cap,
	// so at most three pages are fetched per target.
	maxEvents = 1500
	pageLimit = 500
)

// API is the slice of the CloudWatch Logs client the fetcher uses.
type API interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

// ClientFactory builds a regional client from static credentials.
type ClientFactory func(region, accessKeyID, secretAccessKey string) API

func defaultClientFactory(region, accessKeyID, secretAccessKey string) API {
	cfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	}
	return cloudwatchlogs.NewFromConfig(cfg)
}

// Fetcher aggregates CloudWatch log events per (region, log group) target.
type Fetcher struct {
	clients       ClientFactory
	logger        *slog.Logger
	targetTimeout time.Duration
}

// New constructs a fetcher backed by real AWS clients.
func New(logger *slog.Logger, targetTimeout time.Duration) *Fetcher {
	return &Fetcher{clients: defaultClientFactory, logger: logger, targetTimeout: targetTimeout}
}

type target struct {
	region   string
	logGroup string
	client   API
}

// Fetch fans out one bounded, paginated query per configured (region, log
// group) pair and settles every target into a record, success or failure.
func (f *Fetcher) Fetch(ctx context.Context, cfg domain.CloudWatchConfig) ([]domain.GroupLogRecord, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, domain.NewConfigError(domain.VendorCloudWatch, missing...)
	}
	regions, err := cfg.RegionConfigs()
	if err != nil {
		return nil, domain.NewConfigError(domain.VendorCloudWatch, "AWS_REGIONS_LOG_GROUPS")
	}

	var targets []target
	for _, rc := range regions {
		if rc.Region == "" || len(rc.LogGroups) == 0 {
			continue
		}
		client := f.clients(rc.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
		for _, group := range rc.LogGroups {
			targets = append(targets, target{region: rc.Region, logGroup: group, client: client})
		}
	}

	records := fetch.Settle(len(targets), func(i int) domain.GroupLogRecord {
		return f.fetchTarget(ctx, targets[i])
	})
	return records, nil
}

func (f *Fetcher) fetchTarget(ctx context.Context, tgt target) domain.GroupLogRecord {
	record := domain.GroupLogRecord{Region: tgt.region, LogGroupName: tgt.logGroup}

	ctx, cancel := context.WithTimeout(ctx, f.targetTimeout)
	defer cancel()

	f.logger.Info("fetching cloudwatch logs", "region", tgt.region, "log_group", tgt.logGroup)

	now := time.Now()
	start := now.Add(-lookback)
	events, err := f.collectEvents(ctx, tgt, start)
	if err != nil {
		f.logger.Error("cloudwatch target fetch failed", "region", tgt.region, "log_group", tgt.logGroup, "error", err)
		record.Logs = "Error fetching logs: " + err.Error()
		return record
	}

	sort.SliceStable(events, func(i, j int) bool {
		return timestampOf(events[i]) > timestampOf(events[j])
	})

	var lines []string
	for _, event := range events {
		if msg := strings.TrimSpace(aws.ToString(event.Message)); msg != "" {
			lines = append(lines, msg)
		}
	}
	if len(lines) == 0 {
		record.Logs = fmt.Sprintf("No logs found from %s to %s.", formatUTC(start), formatUTC(now))
		return record
	}
	record.Logs = strings.Join(lines, "\n")
	return record
}

func (f *Fetcher) collectEvents(ctx context.Context, tgt target, start time.Time) ([]event, error) {
	var events []event
	var nextToken *string
	for {
		out, err := tgt.client.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
			LogGroupName: aws.String(tgt.logGroup),
			StartTime:    aws.Int64(start.UnixMilli()),
			Interleaved:  aws.Bool(true),
			NextToken:    nextToken,
			Limit:        aws.Int32(pageLimit),
		})
		if err != nil {
			return nil, err
		}
		for _, e := range out.Events {
			events = append(events, event{Message: e.Message, Timestamp: e.Timestamp})
		}
		if out.NextToken != nil && len(events) < maxEvents {
			nextToken = out.NextToken
			continue
		}
		return events, nil
	}
}

type event struct {
	Message   *string
	Timestamp *int64
}

func timestampOf(e event) int64 {
	if e.Timestamp == nil {
		return 0
	}
	return *e.Timestamp
}

// Ping issues one low-cost DescribeLogGroups against the first configured
// target to verify credentials and connectivity.
func (f *Fetcher) Ping(ctx context.Context, cfg domain.CloudWatchConfig) error {
	if missing := cfg.Missing(); len(missing) > 0 {
		return domain.NewConfigError(domain.VendorCloudWatch, missing...)
	}
	regions, err := cfg.RegionConfigs()
	if err != nil {
		return domain.NewConfigError(domain.VendorCloudWatch, "AWS_REGIONS_LOG_GROUPS")
	}
	for _, rc := range regions {
		if rc.Region == "" || len(rc.LogGroups) == 0 {
			continue
		}
		client := f.clients(rc.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
		_, err := client.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
			LogGroupNamePrefix: aws.String(rc.LogGroups[0]),
			Limit:              aws.Int32(1),
		})
		return err
	}
	return domain.NewConfigError(domain.VendorCloudWatch, "AWS_REGIONS_LOG_GROUPS")
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("Jan 02, 2006 15:04") + " UTC"
}
