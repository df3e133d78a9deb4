package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/intelli-123/observability-copilot/internal/config"
	"github.com/intelli-123/observability-copilot/internal/fetch/cloudwatch"
	"github.com/intelli-123/observability-copilot/internal/fetch/gcp"
	"github.com/intelli-123/observability-copilot/internal/fetch/gitlab"
	"github.com/intelli-123/observability-copilot/internal/fetch/jenkins"
	httpx "github.com/intelli-123/observability-copilot/internal/http"
	"github.com/intelli-123/observability-copilot/internal/logger"
	"github.com/intelli-123/observability-copilot/internal/service/aggregate"
	"github.com/intelli-123/observability-copilot/internal/service/chat"
	"github.com/intelli-123/observability-copilot/internal/service/mcpagent"
	"github.com/intelli-123/observability-copilot/internal/store"
)

func main() {
	cfg := config.LoadAPIConfig()
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := logger.New("api", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStore := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	defer redisStore.Close()

	cloudwatchFetcher := cloudwatch.New(log, cfg.FetchTargetTimeout)
	gcpFetcher := gcp.New(log, cfg.FetchTargetTimeout)
	jenkinsFetcher := jenkins.New(log, cfg.FetchTargetTimeout)
	gitlabFetcher := gitlab.New(log, cfg.FetchTargetTimeout)

	aggregateSvc := aggregate.New(redisStore, redisStore, cloudwatchFetcher, gcpFetcher, jenkinsFetcher, gitlabFetcher, log, cfg.CacheTTL)

	chatSvc := chat.New(newGenerator(ctx, cfg, log), chat.NewBuilder(cfg.ContextCharBudget), log)

	agentCommands := map[string]string{
		mcpagent.VendorAzure:      cfg.MCPAzureCommand,
		mcpagent.VendorSalesforce: cfg.MCPSalesforceCmd,
		mcpagent.VendorKubernetes: cfg.MCPKubernetesCmd,
		mcpagent.VendorCloudWatch: cfg.MCPCloudWatchCmd,
	}
	agentSvc := mcpagent.New(redisStore, mcpagent.NewRunner(log), agentCommands, cfg.MCPQueryTimeout, log)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, falling back to in-memory", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, redisStore, aggregateSvc, chatSvc, agentSvc, limiter, redisStore.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// newGenerator keeps the service usable without a Gemini key: only the ask
// endpoint fails, with a message that names the missing variable.
func newGenerator(ctx context.Context, cfg config.APIConfig, log *slog.Logger) chat.Generator {
	gemini, err := chat.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Warn("gemini client unavailable, ask endpoint disabled", "error", err)
		return unavailableGenerator{err: err}
	}
	return gemini
}

type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", g.err
}
