package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合参考后端的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Auth   AuthConfig
	Quota  QuotaConfig
}

// Load 从环境变量加载后端配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	quota, err := loadQuotaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Auth: auth, Quota: quota}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr      string
	AccessLog bool
}

func loadServerConfig() (ServerConfig, error) {
	accessLog, err := parseBoolEnv("ACCESS_LOG", true)
	if err != nil {
		return ServerConfig{}, err
	}

	port := getEnvOrDefault("PORT", "8080")
	switch {
	case strings.Contains(port, ":"):
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		port = ":" + port
	}
	return ServerConfig{Addr: port, AccessLog: accessLog}, nil
}

// AIConfig 描述 Ark 大模型配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or AK/SK) and ARK_MODEL")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		cfg.Temperature = &val
	}
	if c.TopP != nil {
		val := float32(*c.TopP)
		cfg.TopP = &val
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit, err := parseIntEnv("AI_HISTORY_LIMIT", 12)
	if err != nil {
		return AIConfig{}, err
	}
	if historyLimit < 1 {
		historyLimit = 1
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model"))),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
	}, nil
}

// AuthConfig 描述会员令牌签发配置。
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		Secret:   getEnvOrDefault("AUTH_JWT_SECRET", "z-tavern-dev-secret"),
		TokenTTL: ttl,
		Issuer:   getEnvOrDefault("AUTH_ISSUER", "z-tavern"),
	}, nil
}

// QuotaConfig 描述匿名与会员两档的限流策略。
type QuotaConfig struct {
	PublicPerMinute float64
	PublicBurst     int
	MemberPerMinute float64
	MemberBurst     int
}

func loadQuotaConfig() (QuotaConfig, error) {
	publicRate, err := parseFloatEnv("QUOTA_PUBLIC_PER_MINUTE", 3)
	if err != nil {
		return QuotaConfig{}, err
	}
	publicBurst, err := parseIntEnv("QUOTA_PUBLIC_BURST", 5)
	if err != nil {
		return QuotaConfig{}, err
	}
	memberRate, err := parseFloatEnv("QUOTA_MEMBER_PER_MINUTE", 30)
	if err != nil {
		return QuotaConfig{}, err
	}
	memberBurst, err := parseIntEnv("QUOTA_MEMBER_BURST", 20)
	if err != nil {
		return QuotaConfig{}, err
	}

	return QuotaConfig{
		PublicPerMinute: publicRate,
		PublicBurst:     publicBurst,
		MemberPerMinute: memberRate,
		MemberBurst:     memberBurst,
	}, nil
}

// EngineConfig 描述会话引擎及终端客户端配置。
type EngineConfig struct {
	BackendURL        string
	AgentID           string
	UserID            string
	PageSize          int
	MaxRecording      time.Duration
	RecordingMimeType string
	ScrollThreshold   float64
	RequestTimeout    time.Duration
}

// DefaultEngineConfig 返回不依赖环境变量的默认值。
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BackendURL:        "http://localhost:8080",
		AgentID:           "harry-potter",
		PageSize:          25,
		MaxRecording:      60 * time.Second,
		RecordingMimeType: "audio/webm",
		ScrollThreshold:   50,
		RequestTimeout:    30 * time.Second,
	}
}

// LoadEngine 从环境变量加载客户端配置。
func LoadEngine() (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	pageSize, err := parseIntEnv("CHAT_PAGE_SIZE", cfg.PageSize)
	if err != nil {
		return EngineConfig{}, err
	}
	maxRecording, err := parseDurationEnv("CHAT_MAX_RECORDING", cfg.MaxRecording)
	if err != nil {
		return EngineConfig{}, err
	}
	threshold, err := parseFloatEnv("CHAT_SCROLL_THRESHOLD", cfg.ScrollThreshold)
	if err != nil {
		return EngineConfig{}, err
	}
	timeout, err := parseDurationEnv("CHAT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return EngineConfig{}, err
	}

	cfg.BackendURL = strings.TrimRight(getEnvOrDefault("CHAT_BACKEND_URL", cfg.BackendURL), "/")
	cfg.AgentID = getEnvOrDefault("CHAT_AGENT_ID", cfg.AgentID)
	cfg.UserID = strings.TrimSpace(os.Getenv("CHAT_USER_ID"))
	cfg.RecordingMimeType = getEnvOrDefault("CHAT_RECORDING_MIME", cfg.RecordingMimeType)
	cfg.PageSize = pageSize
	cfg.MaxRecording = maxRecording
	cfg.ScrollThreshold = threshold
	cfg.RequestTimeout = timeout
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	val, err := parseOptionalFloatEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
