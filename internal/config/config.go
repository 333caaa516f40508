package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config corp-access（HTTP API + bot + monitor）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
		MaxConns int
		MaxIdle  int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Panel      PanelConfig
	Bot        BotConfig
	Webhook    WebhookConfig
	Lockout    LockoutConfig
	TwoFA      TwoFAConfig
	Monitor    MonitorConfig
	CorpSecret string // shared secret for the X-Corporate-Secret header
}

// PanelConfig 外部开通面板（provisioning panel）配置
type PanelConfig struct {
	BaseURL string // API base, e.g. "http://panel:8000/api"
	Token   string // exact token match, no Bearer prefix
	Domain  string // public server domain used in connection URLs
	Port    int
	SNI     string
}

// BotConfig 消息机器人配置
type BotConfig struct {
	BridgeURL string   // external messaging bridge base URL
	AdminIDs  []string // messaging identities allowed to run admin commands
}

// WebhookConfig HR webhook 配置
type WebhookConfig struct {
	Secret string
	// Strict: when true a missing X-Hub-Signature-256 header is rejected with 401
	// instead of being accepted unsigned.
	Strict bool
}

// LockoutConfig 账号锁定策略配置
type LockoutConfig struct {
	Threshold    int // failed attempts before the lock applies
	LockDuration time.Duration
}

// TwoFAConfig 两步验证会话配置
type TwoFAConfig struct {
	SessionTTL time.Duration // verification-code window
	StateTTL   time.Duration // FSM state retention per messaging identity
}

// MonitorConfig 健康监控配置
type MonitorConfig struct {
	ProbeInterval     time.Duration
	ProbeTimeout      time.Duration
	FailureThreshold  int
	HeartbeatInterval time.Duration
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "corp_access")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Panel.BaseURL = getEnv("PANEL_API_URL", "http://panel:8000/api")
	cfg.Panel.Token = getEnv("PANEL_API_TOKEN", "")
	cfg.Panel.Domain = getEnv("PANEL_DOMAIN", "vpn.example.com")
	cfg.Panel.Port = parseInt(getEnv("PANEL_PORT", "443"), 443)
	cfg.Panel.SNI = getEnv("PANEL_SNI", "dl.google.com")

	cfg.Bot.BridgeURL = getEnv("BOT_BRIDGE_URL", "http://localhost:8085")
	cfg.Bot.AdminIDs = splitCSV(getEnv("ADMIN_MESSAGING_IDS", ""))

	cfg.Webhook.Secret = getEnv("WEBHOOK_SECRET", "")
	cfg.Webhook.Strict = getEnv("WEBHOOK_STRICT", "false") == "true"

	cfg.Lockout.Threshold = parseInt(getEnv("LOCKOUT_THRESHOLD", "5"), 5)
	cfg.Lockout.LockDuration = time.Duration(parseInt(getEnv("LOCKOUT_MINUTES", "30"), 30)) * time.Minute

	cfg.TwoFA.SessionTTL = time.Duration(parseInt(getEnv("TWOFA_SESSION_TTL_SECONDS", "300"), 300)) * time.Second
	cfg.TwoFA.StateTTL = time.Duration(parseInt(getEnv("TWOFA_STATE_TTL_SECONDS", "3600"), 3600)) * time.Second

	cfg.Monitor.ProbeInterval = time.Duration(parseInt(getEnv("MONITOR_PROBE_SECONDS", "30"), 30)) * time.Second
	cfg.Monitor.ProbeTimeout = time.Duration(parseInt(getEnv("MONITOR_PROBE_TIMEOUT_SECONDS", "5"), 5)) * time.Second
	cfg.Monitor.FailureThreshold = parseInt(getEnv("MONITOR_FAILURE_THRESHOLD", "3"), 3)
	cfg.Monitor.HeartbeatInterval = time.Duration(parseInt(getEnv("MONITOR_HEARTBEAT_SECONDS", "300"), 300)) * time.Second

	cfg.CorpSecret = getEnv("CORPORATE_SECRET", "")

	return cfg
}

// GetDSN 获取数据库连接字符串
func (c *Config) GetDSN() string {
	return "host=" + c.Database.Host +
		" port=" + strconv.Itoa(c.Database.Port) +
		" user=" + c.Database.User +
		" password=" + c.Database.Password +
		" dbname=" + c.Database.Database +
		" sslmode=" + c.Database.SSLMode
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
