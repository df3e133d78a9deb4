package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// APIConfig holds runtime configuration for the copilot API service.
type APIConfig struct {
	Environment        string
	Debug              bool
	Addr               string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CacheTTL           time.Duration
	FetchTargetTimeout time.Duration
	ContextCharBudget  int
	GeminiAPIKey       string
	GeminiModel        string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	MCPAzureCommand    string
	MCPSalesforceCmd   string
	MCPKubernetesCmd   string
	MCPCloudWatchCmd   string
	MCPQueryTimeout    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Debug:              GetBool("DEBUG", false),
		Addr:               GetString("API_ADDR", ":4000"),
		RedisAddr:          GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		CacheTTL:           time.Duration(GetInt("LOG_CACHE_TTL_SECONDS", 300)) * time.Second,
		FetchTargetTimeout: time.Duration(GetInt("FETCH_TARGET_TIMEOUT_SECONDS", 30)) * time.Second,
		ContextCharBudget:  GetInt("CHAT_CONTEXT_CHAR_BUDGET", 25000),
		GeminiAPIKey:       GetString("GEMINI_API_KEY", ""),
		GeminiModel:        GetString("GEMINI_MODEL", "gemini-1.5-flash"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		MCPAzureCommand:    GetString("MCP_AZURE_COMMAND", "azure-mcp-server"),
		MCPSalesforceCmd:   GetString("MCP_SALESFORCE_COMMAND", "salesforce-mcp-server"),
		MCPKubernetesCmd:   GetString("MCP_KUBERNETES_COMMAND", "kubernetes-mcp-server"),
		MCPCloudWatchCmd:   GetString("MCP_CLOUDWATCH_COMMAND", "amazon-cloudwatch-logs-mcp-server"),
		MCPQueryTimeout:    time.Duration(GetInt("MCP_QUERY_TIMEOUT_SECONDS", 120)) * time.Second,
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
