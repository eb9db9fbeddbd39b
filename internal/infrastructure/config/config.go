package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Server      ServerConfig    `mapstructure:"server"`
	Shop        ShopConfig      `mapstructure:"shop"`
	Session     SessionConfig   `mapstructure:"session"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Messaging   MessagingConfig `mapstructure:"messaging"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	DedupWindow time.Duration   `mapstructure:"dedup_window"`
	LogLevel    string          `mapstructure:"log_level"`
	LogDir      string          `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ShopConfig 店舖設定
type ShopConfig struct {
	Name            string `mapstructure:"name"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	CountryCode     string `mapstructure:"country_code"`
	SeasonalEnabled bool   `mapstructure:"seasonal_enabled"`
	MenuFile        string `mapstructure:"menu_file"`
}

// PublicOrderURL 網頁下單連結
func (s ShopConfig) PublicOrderURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/order"
}

// SessionConfig 對話狀態設定
type SessionConfig struct {
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig JSON 檔案儲存設定
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// MessagingConfig 外送訊息通道設定
type MessagingConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	HandoffWindow time.Duration `mapstructure:"handoff_window"`
}

// SchedulerConfig 排程設定
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	PromoCron     string        `mapstructure:"promo_cron"`
	PromoText     string        `mapstructure:"promo_text"`
	FollowUpCron  string        `mapstructure:"follow_up_cron"`
	FollowUpDelay time.Duration `mapstructure:"follow_up_delay"`
	FollowUpText  string        `mapstructure:"follow_up_text"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定；.env 由 main 以 godotenv 預先載入
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	v.BindEnv("server.port", "PORT")
	v.BindEnv("shop.public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("shop.seasonal_enabled", "HALLOWEEN_ENABLED")
	v.BindEnv("storage.data_dir", "DATA_DIR")
	v.BindEnv("scheduler.promo_cron", "PROMO_CRON")
	v.BindEnv("session.backend", "SESSION_BACKEND")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("messaging.base_url", "MESSAGING_BASE_URL")
	v.BindEnv("messaging.token", "MESSAGING_TOKEN")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("dedup_window", "DEDUP_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Shop.PublicBaseURL == "" {
		config.Shop.PublicBaseURL = fmt.Sprintf("http://localhost:%d", config.Server.Port)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskSecret 遮罩敏感字串，只顯示前後各 4 個字符
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "gomitas-bot")

	// 伺服器設定
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s") // SSE 長連線不設寫入逾時
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 店舖設定
	v.SetDefault("shop.name", "Gomiladas")
	v.SetDefault("shop.public_base_url", "")
	v.SetDefault("shop.country_code", "52")
	v.SetDefault("shop.seasonal_enabled", true)
	v.SetDefault("shop.menu_file", "")

	// 對話狀態設定
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")

	// Redis 設定
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 儲存設定
	v.SetDefault("storage.data_dir", "data")

	// 外送訊息設定
	v.SetDefault("messaging.base_url", "")
	v.SetDefault("messaging.token", "")
	v.SetDefault("messaging.timeout", "15s")
	v.SetDefault("messaging.workers", 2)
	v.SetDefault("messaging.queue_size", 500)
	v.SetDefault("messaging.handoff_window", "30m")

	// 排程設定
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.promo_cron", "0 12 * * 1") // 週一 12:00
	v.SetDefault("scheduler.promo_text", "Promo semanal de Gomitas: 2x1 en Mix Frutal hoy!")
	v.SetDefault("scheduler.follow_up_cron", "@every 15m")
	v.SetDefault("scheduler.follow_up_delay", "24h")
	v.SetDefault("scheduler.follow_up_text", "Hola {name}, ¿qué tal estuvo tu pedido #{id}? ¡Gracias por tu compra! Responde si quieres volver a pedir.")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	switch config.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid session backend: %s (must be memory or redis)", config.Session.Backend)
	}
	if config.Session.TTL <= 0 {
		return fmt.Errorf("invalid session ttl")
	}
	if config.Session.CleanupInterval <= 0 {
		return fmt.Errorf("invalid session cleanup interval")
	}

	if config.Storage.DataDir == "" {
		return fmt.Errorf("storage data dir is required")
	}

	if config.Messaging.Workers <= 0 {
		return fmt.Errorf("invalid messaging workers")
	}
	if config.Messaging.QueueSize <= 0 {
		return fmt.Errorf("invalid messaging queue size")
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit settings")
	}

	return nil
}
