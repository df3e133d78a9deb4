// Package mcpagent routes natural-language queries to vendor tool-agent
// subprocesses. The agents are opaque collaborators: credentials go in via the
// environment, the query via stdin, the answer comes back on stdout.
package mcpagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"log/slog"

	"github.com/intelli-123/observability-copilot/internal/domain"
	"github.com/intelli-123/observability-copilot/internal/store"
)

// Agent vendor keys, matching both the route names and the settings sections.
const (
	VendorAzure      = "mcp-azure"
	VendorSalesforce = "mcp-salesforce"
	VendorKubernetes = "mcp-kubernetes"
	VendorCloudWatch = "mcp-cloudwatch"
)

var (
	// ErrUnknownAgent is returned for vendors without a configured agent command.
	ErrUnknownAgent = errors.New("unknown agent vendor")
	// ErrQueryRequired is returned when the query is blank.
	ErrQueryRequired = errors.New("query is required")
)

// Runner executes one agent subprocess invocation.
type Runner interface {
	Run(ctx context.Context, command string, env map[string]string, query string) (string, error)
}

type execRunner struct {
	logger *slog.Logger
}

// NewRunner returns the subprocess-backed Runner.
func NewRunner(logger *slog.Logger) Runner {
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, command string, env map[string]string, query string) (string, error) {
	cmd := exec.CommandContext(ctx, command)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.Stdin = strings.NewReader(query)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running agent subprocess", "command", command)
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("agent %s: %s: %w", command, msg, err)
		}
		return "", fmt.Errorf("agent %s: %w", command, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Service resolves agent credentials from settings and dispatches queries.
type Service struct {
	settings store.SettingsStore
	runner   Runner
	commands map[string]string
	timeout  time.Duration
	logger   *slog.Logger
}

// New constructs the service. commands maps agent vendor keys to executables.
func New(settings store.SettingsStore, runner Runner, commands map[string]string, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{settings: settings, runner: runner, commands: commands, timeout: timeout, logger: logger}
}

// Query runs the vendor's agent with the saved credentials in its environment.
// For the CloudWatch agent the query runs once per configured region and the
// answers are joined under region headers, as the dashboard expects.
func (s *Service) Query(ctx context.Context, vendor, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrQueryRequired
	}
	command, ok := s.commands[vendor]
	if !ok || command == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, vendor)
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return "", err
	}
	section, ok, err := settings.Configs.MCPSection(vendor)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &domain.ConfigError{Vendor: vendor}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if vendor == VendorCloudWatch {
		return s.queryPerRegion(ctx, command, section, query)
	}
	return s.runner.Run(ctx, command, section, query)
}

func (s *Service) queryPerRegion(ctx context.Context, command string, section map[string]string, query string) (string, error) {
	regions := splitList(section["AWS_REGIONS"])
	if len(regions) == 0 {
		return "", domain.NewConfigError(VendorCloudWatch, "AWS_REGIONS")
	}
	results := make([]string, 0, len(regions))
	for _, region := range regions {
		env := make(map[string]string, len(section)+1)
		for key, value := range section {
			env[key] = value
		}
		env["AWS_REGION"] = region
		s.logger.Info("sending query to cloudwatch agent", "region", region)
		answer, err := s.runner.Run(ctx, command, env, query)
		if err != nil {
			return "", err
		}
		results = append(results, fmt.Sprintf("**Region: %s**\n%s", region, answer))
	}
	return strings.Join(results, "\n\n"), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
