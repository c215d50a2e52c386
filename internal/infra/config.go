package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации сервиса дашборда и сидера.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Rollout   RolloutConfig   `mapstructure:"rollout"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Seed      SeedConfig      `mapstructure:"seed"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	MetricsAddr    string        `mapstructure:"metrics_addr"` // пусто: /metrics не поднимаем
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 0: наследуем от клиента
	StaticDir      string        `mapstructure:"static_dir"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"` // 0: без лимита
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`

	// TrustProxyHeaders: X-Forwarded-For / X-Real-IP задают адрес клиента.
	// Включать только за ingress, который сам перезаписывает эти заголовки.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// URL имеет приоритет над discrete-параметрами.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// SSL: "true", "false" или пусто (решаем по хосту)
	SSL                   string `mapstructure:"ssl"`
	SSLRejectUnauthorized bool   `mapstructure:"ssl_reject_unauthorized"`

	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig кэш discovery. Пустой Addr отключает кэш.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RolloutConfig: параметры интеграционной платформы.
type RolloutConfig struct {
	ClientSecret  string        `mapstructure:"client_secret"`
	ProjectKey    string        `mapstructure:"project_key"`
	APIBaseURL    string        `mapstructure:"api_base_url"`
	AppKey        string        `mapstructure:"app_key"`
	DefaultUserID string        `mapstructure:"default_user_id"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// DashboardConfig параметры агрегатора.
type DashboardConfig struct {
	Schema            string        `mapstructure:"schema"`
	TablePrefix       string        `mapstructure:"table_prefix"`
	CredentialColumn  string        `mapstructure:"credential_column"`
	CredentialLimit   int           `mapstructure:"credential_limit"`
	DiscoveryCacheTTL time.Duration `mapstructure:"discovery_cache_ttl"`
	DefaultMetric     string        `mapstructure:"default_metric"`
	MinRangeDays      int           `mapstructure:"min_range_days"`
	MaxRangeDays      int           `mapstructure:"max_range_days"`
	DefaultRangeDays  int           `mapstructure:"default_range_days"`
}

// SeedConfig: доступ к CRM API для сидера персон.
type SeedConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	XSystem    string        `mapstructure:"x_system"`
	XSystemKey string        `mapstructure:"x_system_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RPS        float64       `mapstructure:"rps"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из .env, файла и ENV.
func LoadConfig() (*Config, error) {
	// .env не перекрывает уже выставленные переменные окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 0)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.trust_proxy_headers", true)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl", "")
	v.SetDefault("database.ssl_reject_unauthorized", false)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rollout.client_secret", "")
	v.SetDefault("rollout.project_key", "")
	v.SetDefault("rollout.api_base_url", "https://universal.rollout.com/api")
	v.SetDefault("rollout.app_key", "")
	v.SetDefault("rollout.default_user_id", "user123")
	v.SetDefault("rollout.token_ttl", time.Hour)

	v.SetDefault("dashboard.schema", "public")
	v.SetDefault("dashboard.table_prefix", "rollout_")
	v.SetDefault("dashboard.credential_column", "credentialId")
	v.SetDefault("dashboard.credential_limit", 200)
	v.SetDefault("dashboard.discovery_cache_ttl", 60*time.Second)
	v.SetDefault("dashboard.default_metric", "contactsMade")
	v.SetDefault("dashboard.min_range_days", 7)
	v.SetDefault("dashboard.max_range_days", 365)
	v.SetDefault("dashboard.default_range_days", 90)

	v.SetDefault("seed.api_key", "")
	v.SetDefault("seed.base_url", "https://api.followupboss.com/v1")
	v.SetDefault("seed.x_system", "")
	v.SetDefault("seed.x_system_key", "")
	v.SetDefault("seed.timeout", 30*time.Second)
	v.SetDefault("seed.rps", 5)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// bindEnvAliases: исторические имена переменных окружения. Первое найденное побеждает.
func bindEnvAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"database.url":                     {"DATABASE_URL", "DB_URL"},
		"database.host":                    {"DB_HOST"},
		"database.port":                    {"DB_PORT"},
		"database.name":                    {"DB_NAME", "DB_DATABASE"},
		"database.user":                    {"DB_USER", "DB_USERNAME"},
		"database.password":                {"DB_PASSWORD", "DB_PASS", "POSTGRES_PASSWORD"},
		"database.ssl":                     {"DB_SSL"},
		"database.ssl_reject_unauthorized": {"DB_SSL_REJECT_UNAUTHORIZED"},
		"server.port":                      {"PORT", "SERVER_PORT"},
		"server.static_dir":                {"STATIC_DIR", "SERVER_STATIC_DIR"},
		"redis.addr":                       {"REDIS_ADDR"},
		"rollout.client_secret":            {"ROLLOUT_CLIENT_SECRET"},
		"rollout.project_key":              {"ROLLOUT_PROJECT_KEY", "ROLLOUT_CLIENT_ID"},
		"rollout.api_base_url":             {"ROLLOUT_API_BASE_URL"},
		"rollout.app_key":                  {"ROLLOUT_APP_KEY"},
		"rollout.default_user_id":          {"ROLLOUT_USER_ID"},
		"seed.api_key":                     {"FUB_API_KEY"},
		"seed.base_url":                    {"FUB_API_BASE_URL"},
		"seed.x_system":                    {"FOLLOW_UP_BOSS_X_SYSTEM"},
		"seed.x_system_key":                {"FOLLOW_UP_BOSS_X_SYSTEM_KEY"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate ошибки конфигурации фатальны на старте процесса.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("config: missing database connection (DATABASE_URL or DB_HOST)")
	}
	d := c.Dashboard
	if d.MinRangeDays <= 0 || d.MaxRangeDays < d.MinRangeDays {
		return fmt.Errorf("config: invalid range bounds [%d, %d]", d.MinRangeDays, d.MaxRangeDays)
	}
	if d.DefaultRangeDays < d.MinRangeDays || d.DefaultRangeDays > d.MaxRangeDays {
		return fmt.Errorf("config: default range %d outside [%d, %d]", d.DefaultRangeDays, d.MinRangeDays, d.MaxRangeDays)
	}
	if d.CredentialLimit <= 0 {
		return fmt.Errorf("config: credential_limit must be positive, got %d", d.CredentialLimit)
	}
	if d.Schema == "" || d.TablePrefix == "" || d.CredentialColumn == "" {
		return errors.New("config: dashboard schema, table_prefix and credential_column are required")
	}
	return nil
}

// ListenAddr: адрес основного HTTP-сервера.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DSN собирает строку подключения для pgx.
func (d DatabaseConfig) DSN() (string, error) {
	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err != nil {
			return "", fmt.Errorf("config: parse database url: %w", err)
		}
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", d.sslMode(u.Hostname()))
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	if d.Host == "" {
		return "", errors.New("config: database host is empty")
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	u.RawQuery = url.Values{"sslmode": []string{d.sslMode(d.Host)}}.Encode()
	return u.String(), nil
}

// sslMode: DB_SSL=false выключает; не задан и localhost тоже выключает;
// иначе require, либо verify-full при строгой проверке сертификата.
func (d DatabaseConfig) sslMode(host string) string {
	switch strings.ToLower(strings.TrimSpace(d.SSL)) {
	case "false", "0", "off", "disable":
		return "disable"
	case "":
		if isLocalHost(host) {
			return "disable"
		}
	}
	if d.SSLRejectUnauthorized {
		return "verify-full"
	}
	return "require"
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1", "":
		return true
	}
	return false
}
