package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	// 鉴权配置
	AuthEnabled bool   // 是否启用 Bearer JWT 鉴权
	JWKSURL     string // 身份提供方的 JWKS 端点
	JWTSecret   string // HMAC Secret，开发环境用
	EventsToken string // 存储桶通知 webhook 的共享令牌
	// 对象存储配置
	S3Endpoint  string // S3/MinIO 端点，不含协议
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool   // 是否使用 HTTPS
	S3KeyPrefix string // 对象 key 前缀，对象 key = 前缀 + "/" + fileId
	// 生命周期策略
	DefaultExpiresDays int           // 未指定时的文件有效期
	MaxExpiresDays     int           // 文件有效期上限
	PresignPutTTL      time.Duration // 上传 URL 有效窗口
	PresignGetTTL      time.Duration // 下载 URL 有效窗口
	// 异步任务配置
	RedisAddr         string
	WorkerConcurrency int
}

// Load 从环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 60)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	defaultExpires, err := parseIntEnv("DEFAULT_EXPIRES_DAYS", 7)
	if err != nil {
		return nil, err
	}

	maxExpires, err := parseIntEnv("MAX_EXPIRES_DAYS", 30)
	if err != nil {
		return nil, err
	}

	putTTL, err := parseDurationEnv("PRESIGN_PUT_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	getTTL, err := parseDurationEnv("PRESIGN_GET_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	workerConcurrency, err := parseIntEnv("WORKER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:           port,
		CORSAllowedOrigins: corsOrigins,
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "sharedrop"),
		DBPassword:         envOrDefault("DB_PASSWORD", "sharedrop"),
		DBName:             envOrDefault("DB_NAME", "sharedrop"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		AuthEnabled:        parseBoolEnv("AUTH_ENABLED", true),
		JWKSURL:            os.Getenv("JWKS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		EventsToken:        os.Getenv("EVENTS_TOKEN"),
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "sharedrop"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3KeyPrefix:        envOrDefault("S3_KEY_PREFIX", "files"),
		DefaultExpiresDays: defaultExpires,
		MaxExpiresDays:     maxExpires,
		PresignPutTTL:      putTTL,
		PresignGetTTL:      getTTL,
		RedisAddr:          envOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		WorkerConcurrency:  workerConcurrency,
	}, nil
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
